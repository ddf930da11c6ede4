//go:build race

package opt

// Race_ reports whether the binary was built with the race detector.
// Timing-sensitive tests scale their loops down under it.
const Race_ = true
