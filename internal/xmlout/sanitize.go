package xmlout

// XML 1.0 forbids C0 control characters other than TAB, LF and CR. Legacy
// data contains them anyway; they are replaced with '?' byte for byte, the
// same as earlier planet dumps.

func isBadControl(c byte) bool {
	return c < 0x20 && c != '\t' && c != '\n' && c != '\r'
}

// Sanitize replaces disallowed control bytes with '?'. The result has the
// same byte length as s, and s is returned unchanged (no allocation) when
// it is already clean.
func Sanitize(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if isBadControl(s[i]) {
			break
		}
	}
	if i == len(s) {
		return s
	}

	b := []byte(s)
	for ; i < len(b); i++ {
		if isBadControl(b[i]) {
			b[i] = '?'
		}
	}
	return string(b)
}
