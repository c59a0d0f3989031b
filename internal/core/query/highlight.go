package query

import (
	"strings"
	"unicode/utf8"
)

// SplitMatch cuts name around the first case-insensitive occurrence of q, the
// same occurrence Filter matched on. ok is false when q is empty or absent.
func SplitMatch(name string, q string) (before, match, after string, ok bool) {
	if q == "" {
		return name, "", "", false
	}
	lowerQ := strings.ToLower(q)
	n := utf8.RuneCountInString(lowerQ)

	// strings.ToLower maps rune for rune, so rune offsets line up.
	for i := range name {
		j := i
		for k := 0; k < n && j < len(name); k++ {
			_, size := utf8.DecodeRuneInString(name[j:])
			j += size
		}
		if strings.ToLower(name[i:j]) == lowerQ {
			return name[:i], name[i:j], name[j:], true
		}
		if j == len(name) {
			break
		}
	}
	return name, "", "", false
}
