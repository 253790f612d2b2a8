package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindDeliversToGeneralHandler(t *testing.T) {
	d := New()
	var gotParams []string
	var gotPrefix string
	calls := 0

	d.Bind("PRIVMSG", func(ctx context.Context, conn any, params []string, prefix string) {
		calls++
		gotParams = params
		gotPrefix = prefix
	})

	d.Dispatch(context.Background(), "conn-a", ":Wiz PRIVMSG #global :hello\r\n")

	require.Equal(t, 1, calls)
	require.Equal(t, []string{"#global", "hello"}, gotParams)
	require.Equal(t, "Wiz", gotPrefix)
}

func TestUnbindStopsDelivery(t *testing.T) {
	d := New()
	calls := 0
	h := func(ctx context.Context, conn any, params []string, prefix string) { calls++ }
	d.Bind("PING", h)
	d.Unbind("PING", nil)

	d.Dispatch(context.Background(), "conn-a", "PING\r\n")

	require.Equal(t, 0, calls)
}

func TestBindOnceFiresAtMostOnce(t *testing.T) {
	d := New()
	calls := 0
	d.BindOnce("PONG", func(ctx context.Context, conn any, params []string, prefix string) {
		calls++
	})

	d.Dispatch(context.Background(), "conn-a", "PONG\r\n")
	d.Dispatch(context.Background(), "conn-a", "PONG\r\n")

	require.Equal(t, 1, calls)
}

func TestBindOnceForOnlyAnswersItsOwnConnection(t *testing.T) {
	d := New()
	calls := 0
	d.BindOnceFor("conn-a", "PONG", func(ctx context.Context, conn any, params []string, prefix string) {
		calls++
	})

	// A PONG from a different connection must not satisfy conn-a's check.
	d.Dispatch(context.Background(), "conn-b", "PONG\r\n")
	require.Equal(t, 0, calls)

	d.Dispatch(context.Background(), "conn-a", "PONG\r\n")
	require.Equal(t, 1, calls)

	// The binding removed itself; a second PONG from conn-a does nothing.
	d.Dispatch(context.Background(), "conn-a", "PONG\r\n")
	require.Equal(t, 1, calls)
}

func TestDispatchRunsGeneralAndSpecificBindingsConcurrently(t *testing.T) {
	d := New()
	var generalCalled, specificCalled bool

	d.Bind("JOIN", func(ctx context.Context, conn any, params []string, prefix string) {
		generalCalled = true
	})
	d.BindFor("conn-a", "JOIN", func(ctx context.Context, conn any, params []string, prefix string) {
		specificCalled = true
	})

	d.Dispatch(context.Background(), "conn-a", "JOIN #global\r\n")

	require.True(t, generalCalled)
	require.True(t, specificCalled)
}

func TestDispatchIgnoresUnknownCommand(t *testing.T) {
	d := New()
	// Must not panic even though nothing is bound.
	d.Dispatch(context.Background(), "conn-a", "BOGUS\r\n")
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := New()
	d.Bind("PRIVMSG", func(ctx context.Context, conn any, params []string, prefix string) {
		panic("boom")
	})
	// Must not panic out of Dispatch.
	d.Dispatch(context.Background(), "conn-a", "PRIVMSG #global :hi\r\n")
}
