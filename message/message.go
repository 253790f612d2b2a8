// Package message implements the IRC wire grammar: parsing a received frame
// into a structured Message, and serializing a Message back into a frame.
//
// See RFC 1459/2812 section 2.3.1 for the grammar this follows:
//
//	message = [ ":" prefix SPACE ] command *( SPACE middle ) [ SPACE ":" trailing ]
package message

import (
	"fmt"
	"strings"
)

// MaxLine is the maximum allowed frame length, including the trailing CRLF.
const MaxLine = 512

// MaxParams is the maximum number of parameters a message may carry.
const MaxParams = 15

// Message is an immutable IRC protocol message. Prefix is blank when the
// message carried none.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

func (m Message) String() string {
	return fmt.Sprintf("prefix=%q command=%q params=%q", m.Prefix, m.Command, m.Params)
}

// Serialize renders command, params, and the optional prefix into a wire
// frame without a trailing CRLF (the connection layer appends that). Only
// the last parameter may contain a space, and it is then written with a
// leading ":" so it may be recovered by Parse as a single trailing token. An
// empty last parameter is also written with a leading ":" so it remains
// visible on the wire.
func Serialize(command string, prefix string, params ...string) (string, error) {
	var b strings.Builder

	if prefix != "" {
		if strings.ContainsAny(prefix, " \r\n") {
			return "", fmt.Errorf("invalid prefix %q: contains space or CR/LF", prefix)
		}
		b.WriteByte(':')
		b.WriteString(prefix)
		b.WriteByte(' ')
	}

	if command == "" {
		return "", fmt.Errorf("command is empty")
	}
	if strings.ContainsAny(command, " \r\n") {
		return "", fmt.Errorf("invalid command %q: contains space or CR/LF", command)
	}
	b.WriteString(command)

	if len(params) > MaxParams {
		return "", fmt.Errorf("too many params: %d (max %d)", len(params), MaxParams)
	}

	for i, p := range params {
		if strings.ContainsAny(p, "\r\n") {
			return "", fmt.Errorf("invalid param %q: contains CR/LF", p)
		}

		isLast := i == len(params)-1
		needsColon := p == "" || strings.Contains(p, " ") || strings.HasPrefix(p, ":")

		if needsColon && !isLast {
			return "", fmt.Errorf("invalid param %q: only the last parameter may contain a space or be empty", p)
		}

		b.WriteByte(' ')
		if needsColon {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	out := b.String()
	if len(out)+2 > MaxLine {
		return "", fmt.Errorf("message too long: %d bytes (max %d including CRLF)", len(out)+2, MaxLine)
	}

	return out, nil
}

// Parse decodes a single frame (with or without a trailing CRLF) into its
// command, optional prefix, and ordered parameters.
//
// The trailing parameter starts at the first ':' after the prefix, so a
// middle parameter that contains ':' (such as a host:port) is split there.
//
// Parse is best-effort: a frame with an empty command (e.g. a blank line, or
// one that is only a prefix) returns an empty command and no params, which
// callers are expected to treat as unknown and drop rather than as an
// error.
func Parse(line string) (command string, prefix string, params []string) {
	line = strings.TrimSuffix(line, "\r\n")
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		return "", "", nil
	}

	if line[0] == ':' {
		idx := strings.IndexByte(line, ' ')
		if idx == -1 {
			// Prefix with no command following it: nothing more to parse.
			return "", line[1:], nil
		}
		prefix = line[1:idx]
		line = strings.TrimLeft(line[idx+1:], " ")
	}

	trailing := ""
	hasTrailing := false
	if idx := strings.IndexByte(line, ':'); idx != -1 {
		trailing = line[idx+1:]
		hasTrailing = true
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		if !hasTrailing {
			return "", prefix, nil
		}
		// No command: a stray trailing-only line. Treat as unknown.
		return "", prefix, nil
	}

	command = strings.ToUpper(fields[0])
	params = append(params, fields[1:]...)
	if hasTrailing {
		params = append(params, trailing)
	}

	if len(params) > MaxParams {
		params = params[:MaxParams]
	}

	return command, prefix, params
}
