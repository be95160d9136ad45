package filecopier

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MenuChoice is an operator's selection from the ESC menu.
type MenuChoice int

const (
	// MenuNone closes the menu without action (unrecognized input).
	MenuNone MenuChoice = iota
	// MenuChangeFolder stops the current session and re-prompts for a folder.
	MenuChangeFolder
	// MenuQuit ends the run.
	MenuQuit
)

// State is the controller's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StatePromptingFolder
	StateMonitoring
	StateMenuOpen
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePromptingFolder:
		return "prompting-folder"
	case StateMonitoring:
		return "monitoring"
	case StateMenuOpen:
		return "menu-open"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// UI is the operator-facing surface the Monitor drives. Read methods block on
// operator input; notification methods must return promptly.
type UI interface {
	// ReadFolder asks for a dated folder identifier and returns the raw
	// input. Validation and re-prompting belong to the Monitor.
	ReadFolder() (string, error)
	// InvalidFolder reports a rejected folder identifier before the
	// Monitor re-prompts.
	InvalidFolder(err error)
	// ReadMenuChoice displays the menu and returns the chosen option.
	ReadMenuChoice() (MenuChoice, error)
	MonitoringStarted(sourceDir, destDir string)
	MonitoringStopped()
	ReportError(msg string, err error)
}

// Monitor coordinates folder selection, the watch session lifecycle and the
// keyboard-triggered menu. All mutable control state lives on the instance;
// nothing is package level.
type Monitor struct {
	// Grace and StabilityWindow seed every Handler this monitor creates.
	Grace           time.Duration
	StabilityWindow time.Duration
	// PollInterval is the idle tick of the run loop while monitoring.
	PollInterval time.Duration

	baseSourceDir string
	destDir       string
	ui            UI
	reporter      Reporter
	log           zerolog.Logger

	// menuRequests is a single-slot signal from the key listener; it is a
	// guard, not a queue.
	menuRequests chan struct{}

	mu      sync.Mutex
	state   State
	session *WatchSession
}

// NewMonitor builds a controller watching dated sub-folders of baseSourceDir
// and copying into destDir.
func NewMonitor(baseSourceDir, destDir string, ui UI, reporter Reporter, log zerolog.Logger) *Monitor {
	return &Monitor{
		Grace:           DefaultGracePeriod,
		StabilityWindow: DefaultStabilityWindow,
		PollInterval:    100 * time.Millisecond,
		baseSourceDir:   baseSourceDir,
		destDir:         destDir,
		ui:              ui,
		reporter:        reporter,
		log:             log,
		menuRequests:    make(chan struct{}, 1),
		state:           StateIdle,
	}
}

// State returns the controller's current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// RequestMenu signals the run loop to open the menu at its next safe point.
// It is called from the key-listener goroutine and never blocks; a request
// while the menu is already open is dropped, not queued.
func (m *Monitor) RequestMenu() {
	m.mu.Lock()
	menuOpen := m.state == StateMenuOpen
	m.mu.Unlock()
	if menuOpen {
		return
	}
	select {
	case m.menuRequests <- struct{}{}:
	default:
	}
}

// Run drives the state machine until the operator quits or ctx is cancelled.
// The active session is stopped on every exit path, including errors.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.shutdown()

	if err := m.selectAndStart(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for m.State() != StateStopped {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("interrupt received, stopping")
			m.setState(StateStopped)

		case <-m.menuRequests:
			if err := m.openMenu(ctx); err != nil {
				return err
			}

		case <-ticker.C:
			// Idle poll; keeps the loop responsive to the channels above.
		}
	}
	return nil
}

// selectAndStart prompts for a folder identifier until one names an existing
// directory, then starts a watch session against it.
func (m *Monitor) selectAndStart(ctx context.Context) error {
	m.setState(StatePromptingFolder)

	for {
		if ctx.Err() != nil {
			m.setState(StateStopped)
			return nil
		}

		raw, err := m.ui.ReadFolder()
		if err != nil {
			m.setState(StateStopped)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		name := strings.TrimSpace(raw)
		if err := ValidateFolderName(name); err != nil {
			m.ui.InvalidFolder(err)
			continue
		}

		sourceDir := filepath.Join(m.baseSourceDir, name)
		if err := m.startSession(sourceDir); err != nil {
			if errors.Is(err, ErrSourceMissing) {
				m.ui.ReportError("cannot monitor folder", err)
				continue
			}
			m.setState(StateStopped)
			return err
		}

		m.setState(StateMonitoring)
		return nil
	}
}

func (m *Monitor) startSession(sourceDir string) error {
	handler := NewHandler(sourceDir, m.destDir, m.reporter, m.log)
	handler.Grace = m.Grace
	handler.Stability = NewStabilityChecker(m.StabilityWindow)

	session, err := StartSession(sourceDir, handler, m.log)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.ui.MonitoringStarted(sourceDir, m.destDir)
	m.log.Info().Str("source", sourceDir).Str("destination", m.destDir).Msg("monitoring started")
	return nil
}

// openMenu runs one menu interaction. The session keeps delivering events
// while the menu is open; only a "change folder" choice tears it down.
func (m *Monitor) openMenu(ctx context.Context) error {
	m.setState(StateMenuOpen)
	defer m.drainMenuRequests()

	choice, err := m.ui.ReadMenuChoice()
	if err != nil {
		m.setState(StateStopped)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	switch choice {
	case MenuChangeFolder:
		m.stopSession()
		return m.selectAndStart(ctx)
	case MenuQuit:
		m.setState(StateStopped)
	default:
		m.setState(StateMonitoring)
	}
	return nil
}

// drainMenuRequests discards a request that arrived while the menu was open
// so the menu does not immediately reopen.
func (m *Monitor) drainMenuRequests() {
	select {
	case <-m.menuRequests:
	default:
	}
}

func (m *Monitor) stopSession() {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()
	if session == nil {
		return
	}

	if err := session.Stop(); err != nil {
		m.log.Error().Err(err).Str("source", session.SourceDir).Msg("error stopping watch session")
	}
	m.ui.MonitoringStopped()
	m.log.Info().Str("source", session.SourceDir).Msg("monitoring stopped")
}

// shutdown is the single cleanup path; it runs however Run exits.
func (m *Monitor) shutdown() {
	m.stopSession()
	m.setState(StateStopped)
}
