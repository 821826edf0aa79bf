package language

// HasHebrewScript reports whether text contains at least one character from
// the Hebrew block (U+0590..U+05FF) or the Hebrew presentation forms
// (U+FB1D..U+FB4F).
func HasHebrewScript(text string) bool {
	for _, r := range text {
		if isHebrewRune(r) {
			return true
		}
	}
	return false
}

func isHebrewRune(r rune) bool {
	return (r >= 0x0590 && r <= 0x05FF) || (r >= 0xFB1D && r <= 0xFB4F)
}
