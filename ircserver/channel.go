package ircserver

// maxNamesPayload bounds a single RPL_NAMEREPLY's "channel SPACE
// space-separated-nicks" payload so the fully framed message (prefix,
// command, numeric target, channel, nick list, CRLF) stays within
// message.MaxLine (512 bytes), per spec §4.4.
const maxNamesPayload = 506

// Channel is a named group of registered connections (spec §3). Names begin
// with '#' or '&'.
type Channel struct {
	Name    string
	Members map[*Session]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[*Session]struct{}),
	}
}

func isChannelName(name string) bool {
	return len(name) > 0 && (name[0] == '#' || name[0] == '&')
}

// namesBatches splits the channel's current membership into one or more
// nickname lists, each short enough that "name SPACE nicks..." stays at or
// under maxNamesPayload bytes.
func (c *Channel) namesBatches() [][]string {
	var nicks []string
	for m := range c.Members {
		nicks = append(nicks, m.Nickname)
	}

	var batches [][]string
	var current []string
	currentLen := len(c.Name) + 1 // "name" + separating space before the list

	for _, n := range nicks {
		add := len(n)
		if len(current) > 0 {
			add++ // separating space
		}
		if currentLen+add > maxNamesPayload && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentLen = len(c.Name) + 1
			add = len(n)
		}
		current = append(current, n)
		currentLen += add
	}

	if len(current) > 0 || len(batches) == 0 {
		batches = append(batches, current)
	}

	return batches
}
