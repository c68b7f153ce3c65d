// Package version compares dotted release strings the way the update
// checker needs them compared: purely numeric segments ordered
// numerically with the shorter side zero-padded, anything else ordered
// as plain strings. Release tags like "1.4" and "1.4.0" compare equal.
package version

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 as a orders before, equal to or after b.
// If any dot-separated segment of either string is not an integer, both
// strings are compared lexicographically as a whole.
func Compare(a, b string) int {
	as, aok := segments(a)
	bs, bok := segments(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	for len(as) < len(bs) {
		as = append(as, 0)
	}
	for len(bs) < len(as) {
		bs = append(bs, 0)
	}
	for i := range as {
		switch {
		case as[i] < bs[i]:
			return -1
		case as[i] > bs[i]:
			return 1
		}
	}
	return 0
}

func segments(v string) ([]int, bool) {
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
