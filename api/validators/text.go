package validators

import (
	"strings"
	"unicode"
)

// CleanText trims s, folds runs of whitespace and control characters into a
// single space, and cuts the result to at most maxRunes runes. maxRunes <= 0
// disables the cut.
func CleanText(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if maxRunes > 0 && n == maxRunes {
			break
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			if space {
				continue
			}
			space = true
			r = ' '
		} else {
			space = false
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimRight(b.String(), " ")
}

// CouponCode normalizes a shopper-typed coupon code.
func CouponCode(s string) string {
	return strings.ToUpper(CleanText(s, 64))
}
