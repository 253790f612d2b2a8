// Package ircclient implements the client-side half of the protocol (spec
// §4.5): connect and register, a receive-handler set that mirrors the
// server's dispatch style, and a prompt-driven input router used during
// registration.
package ircclient

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/anthony2v/goircd/config"
	"github.com/anthony2v/goircd/dispatch"
	"github.com/anthony2v/goircd/message"
	"github.com/anthony2v/goircd/netio"
	"github.com/pkg/errors"
)

// tickInterval matches the server's process loop cadence (spec §5
// "Suspension points": process-loop sleep 10 ms per iteration).
const tickInterval = 10 * time.Millisecond

// nickReplyTimeout bounds how long register waits for a rejection after
// sending NICK. The server sends no explicit success echo for a NICK sent
// before registration (see ircserver.handleNick), so "no error within this
// window" is treated as acceptance — replacing the source's blind 1-second
// sleep (spec §9 Open Question (c)) with an explicit wait on the relevant
// error numerics that returns early the moment one arrives.
const nickReplyTimeout = 500 * time.Millisecond

// globalChannel is the channel a freshly registered client chats in by
// default (mirrors ircserver's auto-join; spec §9 supplemented feature).
const globalChannel = "#global"

// Client holds one connection's worth of client-side state (spec §4.5
// "State"): the connection, registration identity, the view collaborator,
// and the dispatcher driving receive handlers.
type Client struct {
	Nickname string
	Username string
	Realname string

	View View

	conn       *netio.Conn
	dispatcher *dispatch.Dispatcher
	prompts    *promptRouter

	mu          sync.Mutex
	namesBuffer map[string][]string // channel -> nicks collected so far

	stopCh chan struct{}
}

// New constructs a Client. Username defaults to $USER or $USERNAME (spec
// §6 "Environment") when empty.
func New(view View) *Client {
	c := &Client{
		Username:    config.DefaultUsername(),
		View:        view,
		dispatcher:  dispatch.New(),
		prompts:     newPromptRouter(),
		namesBuffer: make(map[string][]string),
		stopCh:      make(chan struct{}),
	}
	registerReceiveHandlers(c)
	return c
}

// Connect resolves host:port, dials a TCP connection, and starts the
// client's own process loop (spec §4.5 "Connect": "read -> handle ->
// flush, 10 ms cadence"). On failure it reports via the view and returns
// the error; the caller decides the process exit code.
//
// The view's input subscriber is wired before registration begins and
// registration itself runs in its own goroutine, because prompt_nickname
// and prompt_realname (spec §4.5) need the view's input loop already
// feeding update() to be satisfied — and that loop is what View.Run,
// called afterward by the caller, provides.
func (c *Client) Connect(ctx context.Context, host, port string) error {
	addr := net.JoinHostPort(host, port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		c.View.AddMsg("SYSTEM", fmt.Sprintf("could not connect to %s: %s", addr, err))
		return errors.Wrapf(err, "dialing %s", addr)
	}

	c.conn = netio.New(conn, host)

	go c.processLoop(ctx)

	c.View.AddSubscriber(c.update)

	go func() {
		if err := c.register(ctx); err != nil {
			c.View.AddMsg("SYSTEM", fmt.Sprintf("registration failed: %s", err))
			c.Close()
		}
	}()

	return nil
}

// register drives the NICK/USER handshake, prompting the view for a
// nickname when Nickname is unset (spec §4.5 "prompt_nickname"). It
// retries NICK, reprompting for a new nickname, until the server accepts
// one or ctx is cancelled, before ever sending USER.
func (c *Client) register(ctx context.Context) error {
	if c.Realname == "" {
		c.View.AddMsg("SYSTEM", "enter a real name:")
		realname, ok := c.prompts.ask(ctx)
		if !ok {
			return errors.New("registration cancelled before a real name was chosen")
		}
		c.Realname = realname
	}

	for {
		if c.Nickname == "" {
			c.View.AddMsg("SYSTEM", "enter a nickname:")
			nick, ok := c.prompts.ask(ctx)
			if !ok {
				return errors.New("registration cancelled before a nickname was chosen")
			}
			c.Nickname = nick
		}

		accepted, err := c.attemptNick(ctx, c.Nickname)
		if err != nil {
			return err
		}
		if accepted {
			break
		}
		c.Nickname = ""
	}

	c.sendRaw("USER", c.Username, "0", "*", c.Realname)
	return c.conn.Flush()
}

// attemptNick sends NICK and awaits either a rejection numeric
// (ERR_ERRONEUSNICKNAME/ERR_NICKNAMEINUSE/ERR_NICKCOLLISION) or
// nickReplyTimeout elapsing, whichever comes first (spec §9 Open Question
// (c)). The general handlers bound in handlers.go already display the
// rejection to the view; this only reports whether to retry.
func (c *Client) attemptNick(ctx context.Context, nick string) (accepted bool, err error) {
	rejected := make(chan struct{}, 1)
	onReject := func(context.Context, any, []string, string) {
		select {
		case rejected <- struct{}{}:
		default:
		}
	}
	c.dispatcher.BindOnceFor(c, errErroneusNickname, onReject)
	c.dispatcher.BindOnceFor(c, errNicknameInUse, onReject)
	c.dispatcher.BindOnceFor(c, errNickCollision, onReject)
	defer func() {
		c.dispatcher.Unbind(errErroneusNickname, c)
		c.dispatcher.Unbind(errNicknameInUse, c)
		c.dispatcher.Unbind(errNickCollision, c)
	}()

	c.sendRaw("NICK", nick)
	if err := c.conn.Flush(); err != nil {
		return false, errors.Wrap(err, "sending NICK")
	}

	select {
	case <-rejected:
		return false, nil
	case <-time.After(nickReplyTimeout):
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// update is the view's input subscriber (spec §4.5 "Input callback
// stack"). A prompt outstanding during registration consumes the line
// first; otherwise a leading '/' sends the remainder as a raw message and
// anything else is echoed locally and sent as a #global PRIVMSG.
func (c *Client) update(text string) {
	if c.prompts.deliver(text) {
		return
	}

	if strings.HasPrefix(text, "/") {
		c.sendLine(strings.TrimPrefix(text, "/"))
		return
	}

	c.View.AddMsg(c.Nickname, text)
	c.sendRaw("PRIVMSG", globalChannel, text)
}

// sendLine enqueues a pre-serialized (but not yet CRLF-terminated) raw
// line, as typed by the user after a leading '/'.
func (c *Client) sendLine(line string) {
	if err := c.conn.Enqueue(line); err != nil {
		c.View.AddMsg("SYSTEM", fmt.Sprintf("could not send: %s", err))
		return
	}
	if err := c.conn.Flush(); err != nil {
		c.View.AddMsg("SYSTEM", fmt.Sprintf("flush error: %s", err))
	}
}

// sendRaw serializes command/params with no prefix and enqueues the
// result.
func (c *Client) sendRaw(command string, params ...string) {
	frame, err := message.Serialize(command, "", params...)
	if err != nil {
		c.View.AddMsg("SYSTEM", fmt.Sprintf("refusing to send malformed message: %s", err))
		return
	}
	if err := c.conn.Enqueue(frame); err != nil {
		c.View.AddMsg("SYSTEM", fmt.Sprintf("could not send: %s", err))
	}
}

// Run starts the view's own blocking input loop. Call this from main
// after Connect succeeds.
func (c *Client) Run() {
	c.View.Run()
}

// Close shuts down the connection and stops the process loop.
func (c *Client) Close() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	if c.conn != nil {
		c.conn.Shutdown()
	}
}

// processLoop mirrors ircserver's single-connection tick: poll for
// complete frames, dispatch each, flush (spec §4.5 "Connect").
func (c *Client) processLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Client) tick(ctx context.Context) {
	has, err := c.conn.HasMessages()
	if err != nil {
		c.View.AddMsg("SYSTEM", "disconnected from server")
		c.Close()
		return
	}

	for has {
		msg := c.conn.NextMessage()
		c.dispatcher.Dispatch(ctx, c, msg)

		has, err = c.conn.HasMessages()
		if err != nil {
			c.View.AddMsg("SYSTEM", "disconnected from server")
			c.Close()
			return
		}
	}

	if err := c.conn.Flush(); err != nil {
		log.Printf("ircclient: flush error: %s", err)
	}
}
