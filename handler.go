package filecopier

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGracePeriod is how long the handler waits after a notification
// before probing the file, giving the filesystem time to settle.
const DefaultGracePeriod = time.Second

// EventOp is the kind of filesystem change delivered to a Handler.
type EventOp int

const (
	// OpCreate indicates a new file appeared in the watched directory.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was written to.
	OpModify
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "created"
	case OpModify:
		return "modified"
	default:
		return "unknown"
	}
}

// Reporter receives operator-facing notifications about copy activity. The
// console implements it; tests substitute a recorder. Implementations must
// not block for long and must never affect copy correctness.
type Reporter interface {
	CopyStarted(name string, total int64)
	CopyProgress(name string, copied, total int64)
	CopyDone(name, src, dst string, copied int64)
	CopyFailed(name string, err error)
}

// Handler processes change notifications for one source/destination pair.
// The in-flight set is the sole duplicate-suppression mechanism: an event for
// a path already being processed is dropped, and the path is released exactly
// once on every exit path.
type Handler struct {
	// Grace is the settle delay applied before the stability probe.
	Grace time.Duration
	// Stability gates every copy.
	Stability *StabilityChecker

	sourceDir string
	destDir   string
	reporter  Reporter
	log       zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewHandler builds a handler copying settled files from sourceDir into
// destDir, reporting to reporter and logging through log.
func NewHandler(sourceDir, destDir string, reporter Reporter, log zerolog.Logger) *Handler {
	return &Handler{
		Grace:     DefaultGracePeriod,
		Stability: NewStabilityChecker(DefaultStabilityWindow),
		sourceDir: sourceDir,
		destDir:   destDir,
		reporter:  reporter,
		log:       log,
		inFlight:  make(map[string]struct{}),
	}
}

// HandleEvent processes one change notification. It blocks through the grace
// period, the stability probe and the copy, so callers dispatch it on its own
// goroutine; the in-flight set collapses concurrent duplicates to one copy.
func (h *Handler) HandleEvent(path string, op EventOp) {
	// The watch is non-recursive: only direct children of the source
	// directory are eligible.
	if filepath.Dir(path) != h.sourceDir {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	if !h.begin(path) {
		h.log.Debug().Str("file", path).Stringer("op", op).Msg("event dropped, copy already in flight")
		return
	}
	defer h.end(path)

	h.process(path)
}

// InFlight reports how many paths are currently being processed.
func (h *Handler) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inFlight)
}

// begin records path as in flight. The membership check and the insert happen
// under a single lock acquisition so two events for the same path can never
// both observe "absent" and both proceed.
func (h *Handler) begin(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inFlight[path]; ok {
		return false
	}
	h.inFlight[path] = struct{}{}
	return true
}

func (h *Handler) end(path string) {
	h.mu.Lock()
	delete(h.inFlight, path)
	h.mu.Unlock()
}

func (h *Handler) process(path string) {
	name := filepath.Base(path)

	// Give the filesystem a moment to settle after the notification fires.
	time.Sleep(h.Grace)

	if !h.Stability.IsStable(path) {
		h.log.Debug().Str("file", name).Msg("file still being written, deferring to next event")
		return
	}

	total := int64(0)
	if info, err := os.Stat(path); err == nil {
		total = info.Size()
	}

	dst := filepath.Join(h.destDir, name)
	h.reporter.CopyStarted(name, total)

	copied, err := CopyFile(path, dst, func(copied, total int64) {
		h.reporter.CopyProgress(name, copied, total)
	})
	if err != nil {
		h.reporter.CopyFailed(name, err)
		h.log.Error().Err(err).Str("file", name).Str("source", path).Msg("copy failed")
		return
	}

	h.reporter.CopyDone(name, path, dst, copied)
	h.log.Info().
		Str("file", name).
		Str("source", path).
		Str("destination", dst).
		Int64("bytes", copied).
		Msg("copy complete")
}
