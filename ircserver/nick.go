package ircserver

import "strings"

// MaxNickLength is the maximum permitted nickname length (spec §4.4).
const MaxNickLength = 9

// foldReplacer implements IRC case-folding's extra mapping beyond simple
// lowercasing: '[' -> '{', ']' -> '}', '\\' -> '|'.
var foldReplacer = strings.NewReplacer("[", "{", "]", "}", `\`, "|")

// foldNick returns the canonical uniqueness key for a nickname: lowercase
// ASCII, then the bracket/backslash folding RFC 1459 specifies.
func foldNick(nick string) string {
	return foldReplacer.Replace(strings.ToLower(nick))
}

// validNickChars are the characters permitted in a nickname besides letters
// and digits.
const validNickChars = "-[]\\|`^{}"

// isValidNick reports whether nick satisfies spec §4.4: length 1-9, first
// character a letter, remaining characters letters, digits, or
// validNickChars.
func isValidNick(nick string) bool {
	if len(nick) == 0 || len(nick) > MaxNickLength {
		return false
	}

	first := nick[0]
	if !isLetter(first) {
		return false
	}

	for i := 1; i < len(nick); i++ {
		c := nick[i]
		if isLetter(c) || isDigit(c) || strings.IndexByte(validNickChars, c) != -1 {
			continue
		}
		return false
	}

	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
