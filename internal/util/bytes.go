package util

// WipeBytes zeroes the given slice. Best-effort scrubbing of key
// material once it is no longer needed.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
