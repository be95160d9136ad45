package filecopier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedUI drives the Monitor from a test: prompts block on channels the
// test feeds, notifications are recorded for assertions.
type scriptedUI struct {
	folders chan string
	menus   chan MenuChoice

	mu        sync.Mutex
	invalid   int
	reported  int
	menuReads int
	started   []string
	stopped   int

	folderErr error
}

func newScriptedUI() *scriptedUI {
	return &scriptedUI{
		folders: make(chan string),
		menus:   make(chan MenuChoice),
	}
}

func (u *scriptedUI) ReadFolder() (string, error) {
	if u.folderErr != nil {
		return "", u.folderErr
	}
	return <-u.folders, nil
}

func (u *scriptedUI) InvalidFolder(err error) {
	u.mu.Lock()
	u.invalid++
	u.mu.Unlock()
}

func (u *scriptedUI) ReadMenuChoice() (MenuChoice, error) {
	u.mu.Lock()
	u.menuReads++
	u.mu.Unlock()
	return <-u.menus, nil
}

func (u *scriptedUI) MonitoringStarted(sourceDir, destDir string) {
	u.mu.Lock()
	u.started = append(u.started, sourceDir)
	u.mu.Unlock()
}

func (u *scriptedUI) MonitoringStopped() {
	u.mu.Lock()
	u.stopped++
	u.mu.Unlock()
}

func (u *scriptedUI) ReportError(msg string, err error) {
	u.mu.Lock()
	u.reported++
	u.mu.Unlock()
}

func (u *scriptedUI) snapshot() (invalid, reported, menuReads, started, stopped int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.invalid, u.reported, u.menuReads, len(u.started), u.stopped
}

func newTestMonitor(t *testing.T, ui UI) (*Monitor, string, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "output")
	destination := filepath.Join(root, "inbox")
	for _, dir := range []string{filepath.Join(base, "01-04"), filepath.Join(base, "02-05"), destination} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	m := NewMonitor(base, destination, ui, &recordingReporter{}, zerolog.Nop())
	m.Grace = 10 * time.Millisecond
	m.StabilityWindow = 10 * time.Millisecond
	m.PollInterval = 10 * time.Millisecond
	return m, base, destination
}

func TestMonitorFullLifecycle(t *testing.T) {
	ui := newScriptedUI()
	m, base, _ := newTestMonitor(t, ui)

	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(context.Background()) }()

	if m.State() == StateStopped {
		t.Fatal("Monitor stopped before any input")
	}

	// Invalid identifier is rejected and re-prompted.
	ui.folders <- "bogus"
	// Valid format but missing directory is reported and re-prompted.
	ui.folders <- "09-09"
	// A real folder starts monitoring.
	ui.folders <- "01-04"

	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMonitoring }) {
		t.Fatalf("Expected Monitoring state, got %v", m.State())
	}
	invalid, reported, _, started, _ := ui.snapshot()
	if invalid != 1 {
		t.Errorf("Expected 1 invalid folder report, got %d", invalid)
	}
	if reported != 1 {
		t.Errorf("Expected 1 missing-directory report, got %d", reported)
	}
	if started != 1 {
		t.Errorf("Expected 1 monitoring start, got %d", started)
	}

	// ESC: change folder.
	m.RequestMenu()
	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMenuOpen }) {
		t.Fatalf("Expected MenuOpen state, got %v", m.State())
	}
	ui.menus <- MenuChangeFolder
	ui.folders <- "02-05"

	if !waitFor(t, 2*time.Second, func() bool {
		_, _, _, started, _ := ui.snapshot()
		return started == 2 && m.State() == StateMonitoring
	}) {
		t.Fatalf("Expected second monitoring session, state=%v", m.State())
	}

	ui.mu.Lock()
	second := ui.started[1]
	ui.mu.Unlock()
	if second != filepath.Join(base, "02-05") {
		t.Errorf("Expected second session on 02-05, got %s", second)
	}

	// ESC: quit.
	m.RequestMenu()
	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMenuOpen }) {
		t.Fatalf("Expected MenuOpen state before quit, got %v", m.State())
	}
	ui.menus <- MenuQuit

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after quit")
	}

	if m.State() != StateStopped {
		t.Errorf("Expected Stopped state, got %v", m.State())
	}
	_, _, _, _, stopped := ui.snapshot()
	if stopped != 2 {
		t.Errorf("Expected 2 monitoring stops (change + quit), got %d", stopped)
	}
}

// A second menu request while the menu is open is dropped, not queued.
func TestMonitorMenuReentrancy(t *testing.T) {
	ui := newScriptedUI()
	m, _, _ := newTestMonitor(t, ui)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	ui.folders <- "01-04"
	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMonitoring }) {
		t.Fatalf("Expected Monitoring state, got %v", m.State())
	}

	m.RequestMenu()
	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMenuOpen }) {
		t.Fatalf("Expected MenuOpen state, got %v", m.State())
	}

	// Hammer the trigger while the menu is open.
	for i := 0; i < 5; i++ {
		m.RequestMenu()
	}
	ui.menus <- MenuNone

	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMonitoring }) {
		t.Fatalf("Expected monitoring to resume, got %v", m.State())
	}
	// Give a queued request time to (wrongly) reopen the menu.
	time.Sleep(100 * time.Millisecond)

	_, _, menuReads, _, _ := ui.snapshot()
	if menuReads != 1 {
		t.Errorf("Expected exactly 1 menu interaction, got %d", menuReads)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMonitorInterruptStopsSession(t *testing.T) {
	ui := newScriptedUI()
	m, _, _ := newTestMonitor(t, ui)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	ui.folders <- "01-04"
	if !waitFor(t, 2*time.Second, func() bool { return m.State() == StateMonitoring }) {
		t.Fatalf("Expected Monitoring state, got %v", m.State())
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error on interrupt: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after interrupt")
	}

	if m.State() != StateStopped {
		t.Errorf("Expected Stopped state, got %v", m.State())
	}
	_, _, _, _, stopped := ui.snapshot()
	if stopped != 1 {
		t.Errorf("Expected the session to be stopped on interrupt, got %d stops", stopped)
	}
}

// Losing the operator's input stream ends the run cleanly.
func TestMonitorInputEOF(t *testing.T) {
	ui := newScriptedUI()
	ui.folderErr = io.EOF
	m, _, _ := newTestMonitor(t, ui)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Expected clean return on EOF, got %v", err)
	}
	if m.State() != StateStopped {
		t.Errorf("Expected Stopped state, got %v", m.State())
	}
}
