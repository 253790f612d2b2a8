package netio

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return New(server, "unknown"), client
}

func TestFramingSplitsOnCRLF(t *testing.T) {
	c, client := pipePair(t)

	go func() {
		_, _ = client.Write([]byte("NICK Drew\r\nUSER drew host serv :Drew\r\n"))
	}()

	var msgs []string
	deadline := time.Now().Add(time.Second)
	for len(msgs) < 2 && time.Now().Before(deadline) {
		has, err := c.HasMessages()
		require.NoError(t, err)
		for has {
			msgs = append(msgs, c.NextMessage())
			has = len(c.incoming) > 0
		}
	}

	require.Equal(t, []string{"NICK Drew", "USER drew host serv :Drew"}, msgs)
}

func TestFramingRetainsPartialFrameAcrossPolls(t *testing.T) {
	c, client := pipePair(t)

	go func() {
		_, _ = client.Write([]byte("NICK Dr"))
		time.Sleep(5 * time.Millisecond)
		_, _ = client.Write([]byte("ew\r\n"))
	}()

	var msgs []string
	deadline := time.Now().Add(time.Second)
	for len(msgs) == 0 && time.Now().Before(deadline) {
		has, err := c.HasMessages()
		require.NoError(t, err)
		if has {
			msgs = append(msgs, c.NextMessage())
		}
	}

	require.Equal(t, []string{"NICK Drew"}, msgs)
}

func TestPollMessagesReturnsEOFOnClose(t *testing.T) {
	c, client := pipePair(t)
	_ = client.Close()

	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		err = c.PollMessages()
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrEOF)
}

func TestEnqueueRejectsOverlongFrame(t *testing.T) {
	c, _ := pipePair(t)

	ok := strings.Repeat("x", MaxFrame-2)
	require.NoError(t, c.Enqueue(ok))

	tooLong := strings.Repeat("x", MaxFrame-1)
	err := c.Enqueue(tooLong)
	require.Error(t, err)
}

func TestEnqueueAddsCRLFIfMissing(t *testing.T) {
	c, _ := pipePair(t)
	require.NoError(t, c.Enqueue("PING"))
	require.Equal(t, "PING\r\n", c.outgoing[0])
}

func TestFlushClearsQueueAndIsNoopWhenEmpty(t *testing.T) {
	c, client := pipePair(t)
	require.NoError(t, c.Enqueue("PING"))

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, c.Flush())
	require.Empty(t, c.outgoing)

	select {
	case got := <-done:
		require.Equal(t, "PING\r\n", string(got))
	case <-time.After(time.Second):
		t.Fatal("flush did not write to the peer")
	}

	require.NoError(t, c.Flush())
}

func TestFlushDoesNotRunDuringPoll(t *testing.T) {
	c, client := pipePair(t)
	require.NoError(t, c.Enqueue("PING"))

	go func() { _, _ = client.Write([]byte("NICK a\r\n")) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		has, err := c.HasMessages()
		require.NoError(t, err)
		if has {
			break
		}
	}

	require.Len(t, c.outgoing, 1, "pending outbound message must survive PollMessages")
}

func TestShutdownIsIdempotent(t *testing.T) {
	c, _ := pipePair(t)
	c.Shutdown()
	c.Shutdown()
}

func TestIdleSecondsAdvancesWithoutActivity(t *testing.T) {
	c, _ := pipePair(t)
	first := c.IdleSeconds()
	time.Sleep(5 * time.Millisecond)
	require.Greater(t, c.IdleSeconds(), first)
}
