package helpers

// Truncate returns prefix of b up to n bytes, for logging.
func Truncate(b []byte, n int) []byte {
	if n < 0 {
		n = 0
	}
	if len(b) <= n {
		return b
	}
	return b[:n]
}
