package filecopier

import (
	"os"
	"time"
)

// DefaultStabilityWindow is the sample window used when none is configured.
// It matches the producer this tool was built around, an image pipeline that
// writes each file in one quick burst.
const DefaultStabilityWindow = 500 * time.Millisecond

// StabilityChecker decides whether a file has finished being written by
// sampling its size twice across a short window. This is a heuristic, not a
// lock: a writer that pauses longer than the window will slip through, and
// OS-level exclusive locking is deliberately not assumed.
type StabilityChecker struct {
	window time.Duration
}

// NewStabilityChecker returns a checker with the given sample window. A zero
// or negative window falls back to DefaultStabilityWindow.
func NewStabilityChecker(window time.Duration) *StabilityChecker {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	return &StabilityChecker{window: window}
}

// IsStable reports whether the file's size stayed unchanged across the sample
// window and the file remained readable. A file that cannot be stat'ed
// (vanished, or still held by a writer) is not stable; that is a "not yet",
// never an error, because a later modification event retries the file.
func (c *StabilityChecker) IsStable(path string) bool {
	initial, err := fileSize(path)
	if err != nil {
		return false
	}

	time.Sleep(c.window)

	final, err := fileSize(path)
	if err != nil {
		return false
	}
	return initial == final
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
