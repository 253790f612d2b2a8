package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExampleFromProtocol(t *testing.T) {
	cmd, prefix, params := Parse(":Angel PRIVMSG Wiz :Hello are you receiving this message ?\r\n")
	require.Equal(t, "PRIVMSG", cmd)
	require.Equal(t, "Angel", prefix)
	require.Equal(t, []string{"Wiz", "Hello are you receiving this message ?"}, params)
}

func TestParseNoPrefixNoTrailing(t *testing.T) {
	cmd, prefix, params := Parse("NICK Drew\r\n")
	require.Equal(t, "NICK", cmd)
	require.Equal(t, "", prefix)
	require.Equal(t, []string{"Drew"}, params)
}

func TestParseEmptyLineIsUnknown(t *testing.T) {
	cmd, prefix, params := Parse("")
	require.Equal(t, "", cmd)
	require.Equal(t, "", prefix)
	require.Nil(t, params)
}

func TestParseCommandIsUppercased(t *testing.T) {
	cmd, _, _ := Parse("nick Drew")
	require.Equal(t, "NICK", cmd)
}

func TestParseEmptyTrailing(t *testing.T) {
	cmd, _, params := Parse("TOPIC #chan :")
	require.Equal(t, "TOPIC", cmd)
	require.Equal(t, []string{"#chan", ""}, params)
}

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		command string
		prefix  string
		params  []string
	}{
		{"no prefix no params", "PING", "", nil},
		{"prefix and simple params", "JOIN", "Drew", []string{"#global"}},
		{"trailing with spaces", "PRIVMSG", "Wiz", []string{"#global", "hello there world"}},
		{"empty trailing", "TOPIC", "", []string{"#global", ""}},
		{"many middles", "NAMES", "", []string{"#a", "#b", "#c"}},
		{"numeric reply", "353", "irc.example.org", []string{"Drew", "=", "#global", "Drew"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Serialize(tt.command, tt.prefix, tt.params...)
			require.NoError(t, err)

			cmd, prefix, params := Parse(out + "\r\n")
			require.Equal(t, tt.command, cmd)
			require.Equal(t, tt.prefix, prefix)
			if len(tt.params) == 0 {
				require.Empty(t, params)
			} else {
				require.Equal(t, tt.params, params)
			}
		})
	}
}

func TestSerializeRejectsSpaceInMiddleParam(t *testing.T) {
	_, err := Serialize("PRIVMSG", "", "has space", "last")
	require.Error(t, err)
}

func TestSerializeRejectsCRLFInParam(t *testing.T) {
	_, err := Serialize("PRIVMSG", "", "#chan", "bad\r\nparam")
	require.Error(t, err)
}

func TestSerializeRejectsTooManyParams(t *testing.T) {
	params := make([]string, MaxParams+1)
	for i := range params {
		params[i] = "x"
	}
	_, err := Serialize("CMD", "", params...)
	require.Error(t, err)
}

func TestSerializeRejectsOverlongFrame(t *testing.T) {
	_, err := Serialize("PRIVMSG", "", "#chan", strings.Repeat("x", 600))
	require.Error(t, err)
}

func TestSerializeEmptyLastParamGetsColon(t *testing.T) {
	out, err := Serialize("TOPIC", "", "#chan", "")
	require.NoError(t, err)
	require.Equal(t, "TOPIC #chan :", out)
}
