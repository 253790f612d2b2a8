package ircserver

import (
	"context"
	"strings"
)

// globalChannel is the channel every newly registered connection joins
// automatically (spec §9 supplemented feature; see SPEC_FULL.md).
const globalChannel = "#global"

// RegisterHandlers installs every built-in command handler on s's
// dispatcher. Doing this explicitly at server construction time (rather
// than via import-time decorator side effects) is the REDESIGN FLAGS
// instruction in spec §9.
func RegisterHandlers(s *Server) {
	s.dispatcher.Bind("NICK", s.handleNick)
	s.dispatcher.Bind("USER", s.handleUser)
	s.dispatcher.Bind("JOIN", s.handleJoin)
	s.dispatcher.Bind("PRIVMSG", s.handlePrivmsg)
	s.dispatcher.Bind("QUIT", s.handleQuit)
}

func asSession(conn any) *Session {
	sess, _ := conn.(*Session)
	return sess
}

// handleNick implements spec §4.4 "Nickname rules".
func (s *Server) handleNick(_ context.Context, conn any, params []string, _ string) {
	sess := asSession(conn)

	if len(params) == 0 {
		s.SendTo(sess, ErrNoNicknameGiven, "No nickname given")
		return
	}

	nick := params[0]
	if !isValidNick(nick) {
		s.SendTo(sess, ErrErroneusNickname, nick, "Erroneous nickname")
		return
	}

	folded := foldNick(nick)

	s.mu.Lock()
	existing, taken := s.nicks[folded]
	if taken && existing != sess {
		hadPrior := sess.Nickname != ""
		s.mu.Unlock()
		if !hadPrior {
			s.SendTo(sess, ErrNickCollision, nick, "Nickname collision KILL")
		} else {
			s.SendTo(sess, ErrNicknameInUse, nick, "Nickname is already in use")
		}
		return
	}

	oldNick := sess.Nickname
	if oldNick != "" {
		delete(s.nicks, foldNick(oldNick))
	}
	s.nicks[folded] = sess
	s.mu.Unlock()

	sess.Nickname = nick

	if oldNick != "" {
		s.Send("NICK", []string{nick}, oldNick, nil, nil)
	}
}

// handleUser implements spec §4.4 "USER".
func (s *Server) handleUser(_ context.Context, conn any, params []string, _ string) {
	sess := asSession(conn)

	if sess.Registered {
		s.SendTo(sess, ErrAlreadyRegistrd, "Unauthorized command (already registered)")
		return
	}

	if len(params) != 4 {
		s.SendTo(sess, ErrNeedMoreParams, "USER", "Not enough parameters")
		return
	}

	sess.Username = params[0]
	sess.RealName = params[3]

	if sess.Nickname == "" {
		s.mu.Lock()
		nick := s.nextAnonNick()
		s.nicks[foldNick(nick)] = sess
		s.mu.Unlock()
		sess.Nickname = nick
	}

	sess.Registered = true

	s.addToChannel(sess, globalChannel)
}

// addToChannel implements spec §4.4 "JOIN / channel membership".
func (s *Server) addToChannel(sess *Session, name string) {
	s.mu.Lock()
	ch, exists := s.channels[name]
	if !exists {
		ch = newChannel(name)
		s.channels[name] = ch
	}
	ch.Members[sess] = struct{}{}
	members := make([]*Session, 0, len(ch.Members))
	for m := range ch.Members {
		members = append(members, m)
	}
	s.mu.Unlock()

	sess.channels[name] = ch

	for _, member := range members {
		s.SendFrom(member, sess.Nickname, "JOIN", name)
	}

	batches := ch.namesBatches()
	for _, batch := range batches {
		s.SendTo(sess, ReplyNameReply, sess.Nickname, name, strings.Join(batch, " "))
	}
	s.SendTo(sess, ReplyEndOfNames, sess.Nickname, name, "End of NAMES list")
}

// handleJoin implements the JOIN command by delegating to addToChannel for
// every channel name requested.
func (s *Server) handleJoin(_ context.Context, conn any, params []string, _ string) {
	sess := asSession(conn)
	if !sess.Registered {
		return
	}
	if len(params) == 0 {
		s.SendTo(sess, ErrNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}

	for _, name := range strings.Split(params[0], ",") {
		if !isChannelName(name) {
			continue
		}
		if _, already := sess.channels[name]; already {
			continue
		}
		s.addToChannel(sess, name)
	}
}

// handlePrivmsg implements spec §4.4 "PRIVMSG". Nickname targets are not
// implemented in the core (spec explicitly scopes this out).
func (s *Server) handlePrivmsg(_ context.Context, conn any, params []string, _ string) {
	sess := asSession(conn)
	if !sess.Registered {
		return
	}

	if len(params) < 2 || params[1] == "" {
		s.SendTo(sess, ErrNoTextToSend, "No text to send")
		return
	}

	body := params[1]

	for _, target := range strings.Split(params[0], ",") {
		if !isChannelName(target) {
			continue
		}

		s.mu.Lock()
		ch, exists := s.channels[target]
		var members []*Session
		if exists {
			for m := range ch.Members {
				if m != sess {
					members = append(members, m)
				}
			}
		}
		s.mu.Unlock()

		if !exists {
			continue
		}

		for _, member := range members {
			s.SendFrom(member, sess.Nickname, "PRIVMSG", target, body)
		}
	}
}

// handleQuit implements spec §4.4 "QUIT": the server broadcasts nothing
// itself; RemoveConnection's on-disconnect hooks are responsible for
// informing channel members.
func (s *Server) handleQuit(_ context.Context, conn any, params []string, _ string) {
	sess := asSession(conn)

	msg := sess.Nickname
	if len(params) > 0 && params[0] != "" {
		msg = params[0]
	}

	s.RemoveConnection(sess, msg)
}
