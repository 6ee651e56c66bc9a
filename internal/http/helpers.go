package http

func grow(buf []byte) []byte {
	temp := make([]byte, len(buf)*2)
	copy(temp, buf)
	return temp
}

// isDigits reports whether s is a non-empty run of decimal digits, or of hex
// digits when hex is set. Signs and whitespace are rejected.
func isDigits(s string, hex bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case hex && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return false
		}
	}
	return true
}
