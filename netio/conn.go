// Package netio implements non-blocking, framed CRLF-terminated message I/O
// over a single TCP connection: an inbound byte buffer that is split into
// complete frames, and an outbound queue flushed in one write.
package netio

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MaxFrame is the maximum size of a single outgoing frame, including the
// trailing CRLF.
const MaxFrame = 512

// readChunk is the size of a single non-blocking read attempt, matching the
// spec's "single recv of up to 512 bytes when the socket reports readable".
const readChunk = 512

// pollDeadline is how long PollMessages waits for readiness on each attempt.
// It is deliberately tiny: PollMessages is meant to be called on a fixed
// tick by the owning event loop, not to block that loop waiting for data.
const pollDeadline = time.Millisecond

// ErrEOF is returned by PollMessages when the peer has closed its half of
// the connection.
var ErrEOF = errors.New("connection closed by peer")

// Conn wraps one TCP socket with the framing behavior the spec's Connection
// component requires: poll/queue-based reads, an outbound queue flushed in
// a single write, idle tracking, and idempotent shutdown.
type Conn struct {
	conn net.Conn
	rw   *bufio.ReadWriter

	remoteAddr string
	host       string

	inbuf    strings.Builder
	incoming []string
	outgoing []string

	lastActivity time.Time

	closed bool
}

// New wraps an already-connected (or accepted) socket. host is the
// best-effort reverse-DNS result the caller resolved for it, or "unknown".
func New(conn net.Conn, host string) *Conn {
	if host == "" {
		host = "unknown"
	}
	return &Conn{
		conn:         conn,
		rw:           bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		remoteAddr:   conn.RemoteAddr().String(),
		host:         host,
		lastActivity: time.Now(),
	}
}

// RemoteAddr returns the string form of the peer's network address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Host returns the resolved hostname, or "unknown".
func (c *Conn) Host() string { return c.host }

// IdleSeconds returns wall-clock seconds since the last inbound byte.
func (c *Conn) IdleSeconds() float64 {
	return time.Since(c.lastActivity).Seconds()
}

// PollMessages performs one non-blocking attempt to read currently-available
// bytes, splits the accumulated buffer on CRLF, and appends every complete
// frame to the incoming queue. A trailing partial frame is retained across
// calls. It returns ErrEOF if the peer has closed the connection.
//
// It never touches the outgoing queue: pending writes survive across any
// number of PollMessages calls (see SPEC_FULL.md Open Question (a)).
func (c *Conn) PollMessages() error {
	if c.closed {
		return ErrEOF
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(pollDeadline)); err != nil {
		return errors.Wrap(err, "setting read deadline")
	}

	buf := make([]byte, readChunk)
	n, err := c.rw.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// Nothing currently readable. Not an error.
			return nil
		}
		if err == io.EOF {
			return ErrEOF
		}
		return errors.Wrap(err, "reading from connection")
	}

	if n == 0 {
		return ErrEOF
	}

	c.lastActivity = time.Now()
	c.inbuf.Write(buf[:n])

	data := c.inbuf.String()
	for {
		idx := strings.Index(data, "\r\n")
		if idx == -1 {
			break
		}
		c.incoming = append(c.incoming, data[:idx])
		data = data[idx+2:]
	}
	c.inbuf.Reset()
	c.inbuf.WriteString(data)

	return nil
}

// HasMessages polls for newly available bytes and reports whether the
// incoming queue is non-empty afterward.
func (c *Conn) HasMessages() (bool, error) {
	if err := c.PollMessages(); err != nil {
		return false, err
	}
	return len(c.incoming) > 0, nil
}

// NextMessage pops the oldest framed message (without its CRLF). It panics
// if the queue is empty; callers must check HasMessages first.
func (c *Conn) NextMessage() string {
	m := c.incoming[0]
	c.incoming = c.incoming[1:]
	return m
}

// Enqueue appends a frame to the outgoing queue, appending CRLF if it is
// not already present. It rejects frames whose total length (including
// CRLF) would exceed MaxFrame.
func (c *Conn) Enqueue(frame string) error {
	if !strings.HasSuffix(frame, "\r\n") {
		if len(frame)+2 > MaxFrame {
			return errors.Errorf("frame too long: %d bytes (max %d including CRLF)", len(frame)+2, MaxFrame)
		}
		frame += "\r\n"
	} else if len(frame) > MaxFrame {
		return errors.Errorf("frame too long: %d bytes (max %d including CRLF)", len(frame), MaxFrame)
	}

	c.outgoing = append(c.outgoing, frame)
	return nil
}

// Flush writes every pending outgoing frame in a single write and clears
// the queue. It is a no-op if nothing is pending.
func (c *Conn) Flush() error {
	if len(c.outgoing) == 0 {
		return nil
	}

	var blob strings.Builder
	for _, f := range c.outgoing {
		blob.WriteString(f)
	}
	c.outgoing = c.outgoing[:0]

	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return errors.Wrap(err, "setting write deadline")
	}

	if _, err := c.rw.WriteString(blob.String()); err != nil {
		return errors.Wrap(err, "writing to connection")
	}
	if err := c.rw.Flush(); err != nil {
		return errors.Wrap(err, "flushing connection")
	}

	return nil
}

// Shutdown half-closes then closes the socket. It is idempotent and silent
// about an already-closed connection.
func (c *Conn) Shutdown() {
	if c.closed {
		return
	}
	c.closed = true

	if tcp, ok := c.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = c.conn.Close()
}
