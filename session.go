package filecopier

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrSourceMissing is returned when a watch is requested on a source
// directory that does not exist or is not a directory.
var ErrSourceMissing = errors.New("error validating source directory")

// WatchSession owns one active filesystem watch bound to one source
// directory. At most one session is active at a time; Stop blocks until the
// event loop has fully exited, so a replacement session can never observe
// interleaved events from its predecessor.
type WatchSession struct {
	// SourceDir is the directory this session is bound to.
	SourceDir string

	watcher *fsnotify.Watcher
	handler *Handler
	log     zerolog.Logger

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// StartSession validates sourceDir and begins delivering create and modify
// events to handler. The watch is non-recursive: subdirectories are neither
// descended into nor copied.
func StartSession(sourceDir string, handler *Handler, log zerolog.Logger) (*WatchSession, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrSourceMissing, sourceDir)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceMissing, sourceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, sourceDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	if err := watcher.Add(sourceDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", sourceDir, err)
	}

	s := &WatchSession{
		SourceDir: sourceDir,
		watcher:   watcher,
		handler:   handler,
		log:       log,
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.eventLoop()

	log.Debug().Str("dir", sourceDir).Msg("watch session started")
	return s, nil
}

// Stop requests watch termination and blocks until the event loop and every
// dispatched copy have finished. In-progress copies are not cancelled; they
// run to completion or I/O error before Stop returns. Stop is safe to call
// more than once.
func (s *WatchSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()

	s.log.Debug().Str("dir", s.SourceDir).Msg("watch session stopped")
	return err
}

func (s *WatchSession) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			op, relevant := convertOp(event.Op)
			if !relevant {
				continue
			}
			s.log.Debug().Str("file", event.Name).Stringer("op", op).Msg("filesystem event")
			// Handling blocks through the settle delays and the copy, so
			// every event gets its own goroutine. The handler's in-flight
			// set collapses duplicates. Each dispatch is tracked so Stop
			// joins pending copies, not just this loop.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handler.HandleEvent(event.Name, op)
			}()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Str("dir", s.SourceDir).Msg("watch error")
		}
	}
}

// convertOp maps an fsnotify bitmask to the handler's event kinds. Removes,
// renames and chmods are irrelevant to copying and are dropped here.
func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	default:
		return 0, false
	}
}
