// Package ircserver implements the server-side session state machine (spec
// component 4.4): accept loop, per-connection registration, channel
// membership, broadcast/targeted send, nickname validation and collision,
// ping/pong liveness, and disconnect cleanup.
package ircserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/anthony2v/goircd/dispatch"
	"github.com/anthony2v/goircd/message"
	"github.com/anthony2v/goircd/netio"
	"github.com/pkg/errors"
)

// PingInterval is how long a connection may be idle before the server
// sends it a PING (spec §4.4).
const PingInterval = 60 * time.Second

// PongTimeout is how long the server waits for a PONG reply before
// dropping the connection.
const PongTimeout = 5 * time.Second

// tickInterval is the process loop's cooperative scheduling period.
const tickInterval = 10 * time.Millisecond

// acceptBackoff is how long the accept loop sleeps after a would-block
// Accept attempt (spec §4.4 "Accept loop").
const acceptBackoff = 10 * time.Millisecond

// Session is a server-side connection together with its registration state
// (spec §3's "Connection" fields specific to the server side).
type Session struct {
	Conn *netio.Conn
	ID   uint64

	Nickname   string
	Username   string
	RealName   string
	Host       string
	Registered bool

	pingOutstanding bool
	channels        map[string]*Channel
}

func (s *Session) String() string {
	return fmt.Sprintf("session#%d(%s)", s.ID, s.Conn.RemoteAddr())
}

// Server holds all state for one IRC server instance: the registered
// nickname set, the channel map, and the live connection list. The
// registries and counters (sessions, nicks, channels, nextID, anonCounter)
// are mutated only while holding mu (see SPEC_FULL.md "Concurrency
// translation": the process loop dispatches connections' messages and the
// general/specific handler pair for each one concurrently, so the
// registries need the mutex §5 allows for a threaded model; per-connection
// ordering is still guaranteed because a session's next message is only
// popped after the prior tick's dispatch has fully completed).
type Server struct {
	Identity string // default message prefix: host:port

	// PingInterval and PongTimeout default to the package constants of the
	// same name; tests may shrink them to exercise liveness without waiting
	// a full minute.
	PingInterval time.Duration
	PongTimeout  time.Duration

	mu          sync.Mutex
	sessions    map[uint64]*Session
	nicks       map[string]*Session // folded nickname -> session
	channels    map[string]*Channel
	nextID      uint64
	anonCounter uint64

	dispatcher *dispatch.Dispatcher

	onConnect    []func(*Session)
	onDisconnect []func(*Session, string)

	listener net.Listener
	stopCh   chan struct{}
}

// New creates a Server bound to host:port. Call Start to actually listen
// and serve.
func New(host, port string) *Server {
	s := &Server{
		Identity:     net.JoinHostPort(host, port),
		PingInterval: PingInterval,
		PongTimeout:  PongTimeout,
		sessions:     make(map[uint64]*Session),
		nicks:        make(map[string]*Session),
		channels:     make(map[string]*Channel),
		dispatcher:   dispatch.New(),
		stopCh:       make(chan struct{}),
	}
	RegisterHandlers(s)
	return s
}

// OnConnect registers a hook invoked synchronously for every newly accepted
// connection, in the order registered (spec §4.4 "Accept loop").
func (s *Server) OnConnect(hook func(*Session)) {
	s.onConnect = append(s.onConnect, hook)
}

// OnDisconnect registers a hook invoked for every connection being removed,
// before it is dropped from the registry (spec §4.4 "remove_connection").
func (s *Server) OnDisconnect(hook func(*Session, string)) {
	s.onDisconnect = append(s.onDisconnect, hook)
}

// Start opens the listening socket on s.Identity and runs the accept loop
// and process loop until ctx is cancelled or Shutdown is called. It blocks
// until the process loop exits.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Identity)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.Identity)
	}
	s.listener = ln
	s.Identity = ln.Addr().String()

	go s.acceptLoop(ctx)
	s.processLoop(ctx)

	return nil
}

// Addr returns the listener's bound network address. It is only valid
// after Start has begun listening; useful in tests that bind to port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops the accept/process loops, closes the listener, and shuts
// down every live connection.
func (s *Server) Shutdown() {
	close(s.stopCh)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Conn.Shutdown()
	}
}

// acceptLoop repeatedly accepts connections (spec §4.4). On a listener that
// does not support deadlines we simply Accept; on one that does we poll
// with a short deadline so Shutdown can interrupt it promptly.
func (s *Server) acceptLoop(ctx context.Context) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if dl, ok := s.listener.(deadliner); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptBackoff))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			log.Printf("ircserver: accept error: %s", err)
			time.Sleep(acceptBackoff)
			continue
		}

		host := resolveHost(conn.RemoteAddr())

		s.mu.Lock()
		id := s.nextID
		s.nextID++
		sess := &Session{
			Conn:     netio.New(conn, host),
			ID:       id,
			Host:     host,
			channels: make(map[string]*Channel),
		}
		s.sessions[id] = sess
		s.mu.Unlock()

		for _, hook := range s.onConnect {
			hook(sess)
		}
	}
}

// resolveHost makes a best-effort attempt at a hostname for addr, defaulting
// to "unknown" (spec §3 Connection "resolved host").
func resolveHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "unknown"
	}
	names, err := net.LookupAddr(host)
	if err != nil || len(names) == 0 {
		return "unknown"
	}
	return names[0]
}

// processLoop runs one cooperative iteration every tickInterval (spec
// §4.4 "Process loop") until stopped.
func (s *Server) processLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the process loop's per-iteration work in two separate passes
// over sessions (spec §4.4 "Process loop"): first, schedule and wait out
// every connection's message dispatch; only once every dispatch goroutine
// has returned does the idle/ping pass run. This ordering is required, not
// cosmetic — a PONG answering connection sess's outstanding ping is
// handled by a dispatch goroutine that writes sess.pingOutstanding = false
// (see ping below); running the idle check for sess concurrently with
// that dispatch would be an unsynchronized read/write race on a plain
// bool. Keeping the two passes strictly sequential, rather than guarding
// the field with s.mu, also matches a dispatch already in flight finishing
// before sess is ever considered for a new ping.
func (s *Server) tick(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	var toRemove []*Session
	removed := make(map[*Session]bool)

	for _, sess := range sessions {
		has, err := sess.Conn.HasMessages()
		if err != nil {
			toRemove = append(toRemove, sess)
			removed[sess] = true
			continue
		}
		if has {
			msg := sess.Conn.NextMessage()
			wg.Add(1)
			go func(sess *Session, msg string) {
				defer wg.Done()
				s.dispatcher.Dispatch(ctx, sess, msg)
			}(sess, msg)
		}
	}

	wg.Wait()

	for _, sess := range sessions {
		if removed[sess] {
			continue
		}
		if !sess.pingOutstanding && sess.Conn.IdleSeconds() > s.PingInterval.Seconds() {
			s.ping(sess)
		}
	}

	for _, sess := range toRemove {
		s.RemoveConnection(sess, "EOF")
	}

	for _, sess := range sessions {
		if err := sess.Conn.Flush(); err != nil {
			log.Printf("ircserver: flush error for %s: %s", sess, err)
		}
	}
}

// ping sends a PING to sess, arms PongTimeout, and binds a one-shot,
// connection-scoped PONG handler that cancels the timeout (spec §4.4
// "Ping/pong"). The specific binding is essential: a PONG from a different
// connection must not satisfy this one's liveness check.
func (s *Server) ping(sess *Session) {
	sess.pingOutstanding = true
	s.SendTo(sess, "PING", s.Identity)
	if err := sess.Conn.Flush(); err != nil {
		log.Printf("ircserver: flush error pinging %s: %s", sess, err)
	}

	timer := time.AfterFunc(s.PongTimeout, func() {
		s.dispatcher.Unbind("PONG", sess)
		s.RemoveConnection(sess, "Ping timeout")
	})

	s.dispatcher.BindOnceFor(sess, "PONG", func(_ context.Context, _ any, _ []string, _ string) {
		timer.Stop()
		sess.pingOutstanding = false
	})
}

// Send serializes command/params once and enqueues it on every connection
// except exclude, or only on to if it is set (spec §4.4 "Broadcast /
// send"). If prefix is empty the server's own identity is used.
func (s *Server) Send(command string, params []string, prefix string, exclude, to *Session) {
	if prefix == "" {
		prefix = s.Identity
	}

	frame, err := message.Serialize(command, prefix, params...)
	if err != nil {
		log.Printf("ircserver: refusing to send malformed message: %s", err)
		return
	}

	if to != nil {
		if err := to.Conn.Enqueue(frame); err != nil {
			log.Printf("ircserver: enqueue error for %s: %s", to, err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess == exclude {
			continue
		}
		if err := sess.Conn.Enqueue(frame); err != nil {
			log.Printf("ircserver: enqueue error for %s: %s", sess, err)
		}
	}
}

// SendTo is Send(..., to: sess).
func (s *Server) SendTo(sess *Session, command string, params ...string) {
	s.Send(command, params, "", nil, sess)
}

// SendFrom sends command/params to sess with an explicit prefix, used when
// a reply must appear to come from a specific client rather than the
// server (e.g. PRIVMSG and JOIN fan-out).
func (s *Server) SendFrom(sess *Session, prefix, command string, params ...string) {
	s.Send(command, params, prefix, nil, sess)
}

// RemoveConnection runs every on-disconnect hook, removes sess from every
// registry it belongs to, and shuts down its socket (spec §4.4
// "remove_connection"). It is safe to call more than once; subsequent
// calls are no-ops.
func (s *Server) RemoveConnection(sess *Session, reason string) {
	s.mu.Lock()
	if _, live := s.sessions[sess.ID]; !live {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.ID)
	s.mu.Unlock()

	for _, hook := range s.onDisconnect {
		hook(sess, reason)
	}

	s.mu.Lock()
	if sess.Nickname != "" {
		delete(s.nicks, foldNick(sess.Nickname))
	}
	for name, ch := range sess.channels {
		delete(ch.Members, sess)
		if len(ch.Members) == 0 {
			delete(s.channels, name)
		}
	}
	s.mu.Unlock()

	sess.Conn.Shutdown()
}

// nextAnonNick mints the next anonN fallback nickname (spec §3 "Anonymous
// counter"). The caller must hold s.mu.
func (s *Server) nextAnonNick() string {
	n := s.anonCounter
	s.anonCounter++
	return "anon" + strconv.FormatUint(n, 10)
}
