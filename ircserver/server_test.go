package ircserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClient is a minimal raw IRC client used to drive the server in
// integration tests, mirroring the teacher's own harness style
// (horgh-catbox/internal/client_test.go).
type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New("127.0.0.1", "0")
	s.PingInterval = 50 * time.Millisecond
	s.PongTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = ln
	s.Identity = ln.Addr().String()

	go s.acceptLoop(ctx)
	go s.processLoop(ctx)

	t.Cleanup(func() {
		cancel()
		s.Shutdown()
	})

	return s, ln.Addr().String()
}

func register(t *testing.T, c *testClient, nick string) {
	t.Helper()
	c.send(t, "NICK "+nick)
	c.send(t, fmt.Sprintf("USER %s host serv :%s", nick, nick))

	// JOIN, RPL_NAMEREPLY, RPL_ENDOFNAMES (at least) are expected; consume
	// until we see 366.
	for {
		line := c.readLine(t)
		if strings.Contains(line, " 366 ") {
			return
		}
	}
}

func TestRegistrationJoinsGlobalAndGetsNames(t *testing.T) {
	_, addr := startTestServer(t)
	c := dial(t, addr)

	c.send(t, "NICK Drew")
	c.send(t, "USER drew host serv :Drew")

	join := c.readLine(t)
	require.Contains(t, join, ":Drew JOIN #global")

	names := c.readLine(t)
	require.Contains(t, names, "353")
	require.Contains(t, names, "#global")
	require.Contains(t, names, "Drew")

	end := c.readLine(t)
	require.Contains(t, end, "366")
}

func TestPrivmsgDeliveredOnlyToOtherChannelMembers(t *testing.T) {
	_, addr := startTestServer(t)
	a := dial(t, addr)
	b := dial(t, addr)

	register(t, a, "Wiz")
	register(t, b, "Angel")

	a.send(t, "PRIVMSG #global :Hello")

	line := b.readLine(t)
	require.Equal(t, ":Wiz PRIVMSG #global :Hello\r\n", line)
}

func TestNickCollisionWithNoPriorNickIsKill(t *testing.T) {
	_, addr := startTestServer(t)
	a := dial(t, addr)
	b := dial(t, addr)

	register(t, a, "Wiz")

	b.send(t, "NICK Wiz")
	line := b.readLine(t)
	require.Contains(t, line, "436")
	require.Contains(t, line, "Wiz")
}

func TestNickChangeBroadcastsToAllConnections(t *testing.T) {
	_, addr := startTestServer(t)
	a := dial(t, addr)
	b := dial(t, addr)

	register(t, a, "Wiz")
	register(t, b, "Angel")

	a.send(t, "NICK WiZ2")

	// a was already in #global when b registered, so Angel's JOIN comes first.
	_ = a.readLine(t)
	line := a.readLine(t)
	require.Equal(t, ":Wiz NICK WiZ2\r\n", line)
	require.Equal(t, ":Wiz NICK WiZ2\r\n", b.readLine(t))
}

func TestPingTimeoutDropsIdleConnection(t *testing.T) {
	_, addr := startTestServer(t)
	c := dial(t, addr)
	register(t, c, "Idle")

	ping := c.readLine(t)
	require.Contains(t, ping, "PING")

	// No PONG sent: the connection should be closed within PongTimeout.
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err := c.conn.Read(buf)
	require.Error(t, err)
}

func TestFoldNick(t *testing.T) {
	require.Equal(t, "abc", foldNick("ABC"))
	require.Equal(t, "{}|~", foldNick("[]\\~"))
}

func TestIsValidNick(t *testing.T) {
	require.True(t, isValidNick("Drew"))
	require.False(t, isValidNick(""))
	require.False(t, isValidNick("2cool"))
	require.False(t, isValidNick("toolongnickname"))
	require.True(t, isValidNick("a-b[c]"))
}
