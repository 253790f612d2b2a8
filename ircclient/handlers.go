package ircclient

import (
	"context"
	"strings"
)

// Numeric reply codes the client watches for (mirrors ircserver.Reply*/Err*).
const (
	replyNameReply      = "353"
	replyEndOfNames     = "366"
	errNoNicknameGiven  = "431"
	errErroneusNickname = "432"
	errNicknameInUse    = "433"
	errNickCollision    = "436"
	errNeedMoreParams   = "461"
	errAlreadyRegistrd  = "462"
	errNoTextToSend     = "412"
)

// registerReceiveHandlers installs every built-in receive handler on c's
// dispatcher (spec §4.5 "Receive handlers", §7 "all protocol errors and
// system notices are routed through view.add_msg('SYSTEM', ...)").
func registerReceiveHandlers(c *Client) {
	c.dispatcher.Bind("PRIVMSG", c.handlePrivmsg)
	c.dispatcher.Bind("JOIN", c.handleJoin)
	c.dispatcher.Bind("QUIT", c.handleQuit)
	c.dispatcher.Bind("NICK", c.handleNick)
	c.dispatcher.Bind("PING", c.handlePing)
	c.dispatcher.Bind(replyNameReply, c.handleNameReply)
	c.dispatcher.Bind(replyEndOfNames, c.handleEndOfNames)

	c.dispatcher.Bind(errNoNicknameGiven, c.handleErrNoNicknameGiven)
	c.dispatcher.Bind(errErroneusNickname, c.handleErrErroneusNickname)
	c.dispatcher.Bind(errNicknameInUse, c.handleErrNicknameInUse)
	c.dispatcher.Bind(errNickCollision, c.handleErrNickCollision)
	c.dispatcher.Bind(errNeedMoreParams, c.handleErrNeedMoreParams)
	c.dispatcher.Bind(errAlreadyRegistrd, c.handleErrAlreadyRegistered)
	c.dispatcher.Bind(errNoTextToSend, c.handleErrNoTextToSend)
}

func nickOf(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i != -1 {
		return prefix[:i]
	}
	return prefix
}

func (c *Client) handlePrivmsg(_ context.Context, _ any, params []string, prefix string) {
	if len(params) < 2 {
		return
	}
	c.View.AddMsg(nickOf(prefix), params[1])
}

func (c *Client) handleJoin(_ context.Context, _ any, params []string, prefix string) {
	if len(params) < 1 {
		return
	}
	who := nickOf(prefix)
	c.View.AddMsg("SYSTEM", who+" joined "+params[0])

	if who == c.Nickname {
		c.mu.Lock()
		c.namesBuffer[params[0]] = nil
		c.mu.Unlock()
	}
}

func (c *Client) handleQuit(_ context.Context, _ any, params []string, prefix string) {
	reason := ""
	if len(params) > 0 {
		reason = params[0]
	}
	c.View.AddMsg("SYSTEM", nickOf(prefix)+" quit ("+reason+")")
}

func (c *Client) handleNick(_ context.Context, _ any, params []string, prefix string) {
	if len(params) < 1 {
		return
	}
	old := nickOf(prefix)
	c.View.AddMsg("SYSTEM", old+" is now known as "+params[0])
	if old == c.Nickname {
		c.Nickname = params[0]
	}
}

// handlePing answers with PONG (spec §4.5 "Receive handlers").
func (c *Client) handlePing(_ context.Context, _ any, params []string, _ string) {
	c.sendRaw("PONG", params...)
	_ = c.conn.Flush()
}

// handleNameReply accumulates RPL_NAMEREPLY entries per spec §4.5 "install
// handlers to collect RPL_NAMEREPLY entries until RPL_ENDOFNAMES".
func (c *Client) handleNameReply(_ context.Context, _ any, params []string, _ string) {
	if len(params) < 3 {
		return
	}
	channel := params[1]
	names := strings.Fields(params[2])

	c.mu.Lock()
	c.namesBuffer[channel] = append(c.namesBuffer[channel], names...)
	c.mu.Unlock()
}

// handleEndOfNames flushes the collected names to the view as one line and
// clears the buffer for that channel.
func (c *Client) handleEndOfNames(_ context.Context, _ any, params []string, _ string) {
	if len(params) < 2 {
		return
	}
	channel := params[1]

	c.mu.Lock()
	names := c.namesBuffer[channel]
	delete(c.namesBuffer, channel)
	c.mu.Unlock()

	c.View.AddMsg("SYSTEM", channel+" members: "+strings.Join(names, ", "))
}

// The handlers below display the server's numeric error replies (spec §7),
// mirroring original_source/irc_client/handlers/errors.py's messages.

func (c *Client) handleErrNoNicknameGiven(_ context.Context, _ any, _ []string, _ string) {
	c.View.AddMsg("SYSTEM", "No nickname given")
}

func (c *Client) handleErrErroneusNickname(_ context.Context, _ any, params []string, _ string) {
	nick := ""
	if len(params) > 0 {
		nick = params[0]
	}
	c.View.AddMsg("SYSTEM", "Unable to set nickname. Invalid nickname: "+nick)
	c.View.AddMsg("SYSTEM", "Nicknames must respect the following rules:")
	c.View.AddMsg("SYSTEM", "   1. Between 1 and 9 characters long")
	c.View.AddMsg("SYSTEM", "   2. Start with a letter")
	c.View.AddMsg("SYSTEM", `   3. Contain only letters, numbers, and the following special characters: -[]\|`+"`"+`^{}`)
	c.View.AddMsg("SYSTEM", "Type '/NICK' followed by a nickname to try again")
}

func (c *Client) handleErrNicknameInUse(_ context.Context, _ any, params []string, _ string) {
	nick := ""
	if len(params) > 0 {
		nick = params[0]
	}
	c.View.AddMsg("SYSTEM", "Unable to set nickname. Nickname taken: "+nick)
	c.View.AddMsg("SYSTEM", "Type '/NICK' followed by a nickname to try again")
}

func (c *Client) handleErrNickCollision(_ context.Context, _ any, params []string, _ string) {
	nick := ""
	if len(params) > 0 {
		nick = params[0]
	}
	c.View.AddMsg("SYSTEM", "Nickname taken: "+nick)
	c.View.AddMsg("SYSTEM", "Type '/NICK' followed by a nickname to choose a new one")
}

func (c *Client) handleErrNeedMoreParams(_ context.Context, _ any, params []string, _ string) {
	cmd, msg := "", ""
	if len(params) > 0 {
		cmd = params[0]
	}
	if len(params) > 1 {
		msg = params[1]
	}
	c.View.AddMsg("SYSTEM", "Error in cmd "+cmd+": "+msg)
}

func (c *Client) handleErrAlreadyRegistered(_ context.Context, _ any, params []string, _ string) {
	msg := ""
	if len(params) > 0 {
		msg = params[0]
	}
	c.View.AddMsg("SYSTEM", "Error: "+msg)
}

func (c *Client) handleErrNoTextToSend(_ context.Context, _ any, _ []string, _ string) {
	c.View.AddMsg("SYSTEM", "No text to send")
}
