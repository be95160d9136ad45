package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/progress"
	"golang.org/x/term"

	"filecopier"
)

// Styles mirroring the palette this tool has always used on its console.
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const timestampLayout = "03:04:05 PM"

const (
	keyEscape    = 0x1b
	keyCtrlC     = 0x03
	keyBackspace = 0x7f
)

// Console implements the Monitor's UI and the handler's Reporter on a
// terminal. It owns stdin: one reader goroutine feeds line prompts and
// watches for a lone ESC byte while monitoring, so prompt input and the menu
// key never fight over the descriptor. When stdin is not a terminal (tests,
// pipes) it degrades to plain line reading and the menu key is unavailable.
type Console struct {
	out   io.Writer
	in    *os.File
	isTTY bool

	restore func()
	reader  *bufio.Reader // cooked-mode fallback

	lines   chan string
	prompts chan struct{}

	mu          sync.Mutex
	onMenu      func()
	onInterrupt func()
	pw          progress.Writer
	trackers    map[string]*progress.Tracker
}

// NewConsole wires stdin/stdout. A terminal is switched to raw mode so the
// ESC key can be read without line buffering; Close restores it.
func NewConsole() (*Console, error) {
	c := &Console{
		in:       os.Stdin,
		lines:    make(chan string),
		prompts:  make(chan struct{}, 1),
		trackers: make(map[string]*progress.Tracker),
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("setting raw terminal mode: %w", err)
		}
		c.isTTY = true
		c.restore = func() { term.Restore(fd, state) }
		c.out = &crlfWriter{w: os.Stdout}
		go c.readLoop()
	} else {
		c.out = os.Stdout
		c.reader = bufio.NewReader(os.Stdin)
	}
	return c, nil
}

// Close restores the terminal state.
func (c *Console) Close() {
	if c.restore != nil {
		c.restore()
	}
}

// SetMenuHandler installs the callback fired when ESC is pressed outside a
// prompt.
func (c *Console) SetMenuHandler(f func()) {
	c.mu.Lock()
	c.onMenu = f
	c.mu.Unlock()
}

// SetInterruptHandler installs the callback fired on Ctrl-C, which raw mode
// stops the kernel from turning into SIGINT.
func (c *Console) SetInterruptHandler(f func()) {
	c.mu.Lock()
	c.onInterrupt = f
	c.mu.Unlock()
}

// readLoop is the single stdin reader. Outside a prompt it watches for ESC
// and Ctrl-C; during a prompt it assembles a line, echoing by hand because
// the terminal is raw.
func (c *Console) readLoop() {
	buf := make([]byte, 1)
	var line []byte
	collecting := false

	for {
		n, err := c.in.Read(buf)
		if err != nil {
			close(c.lines)
			return
		}
		if n == 0 {
			continue
		}
		b := buf[0]

		if !collecting {
			select {
			case <-c.prompts:
				collecting = true
			default:
			}
		}

		if !collecting {
			switch b {
			case keyEscape:
				if f := c.menuHandler(); f != nil {
					f()
				}
			case keyCtrlC:
				if f := c.interruptHandler(); f != nil {
					f()
				}
			}
			continue
		}

		switch b {
		case '\r', '\n':
			fmt.Fprint(c.out, "\n")
			c.lines <- string(line)
			line = nil
			collecting = false
		case keyBackspace, 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(c.out, "\b \b")
			}
		case keyCtrlC:
			if f := c.interruptHandler(); f != nil {
				f()
			}
			fmt.Fprint(c.out, "\n")
			c.lines <- ""
			line = nil
			collecting = false
		default:
			if b >= 0x20 && b < 0x7f {
				line = append(line, b)
				fmt.Fprintf(c.out, "%c", b)
			}
		}
	}
}

func (c *Console) menuHandler() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMenu
}

func (c *Console) interruptHandler() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onInterrupt
}

// readLine prints promptText and blocks until the operator finishes a line.
func (c *Console) readLine(promptText string) (string, error) {
	fmt.Fprint(c.out, promptText)

	if !c.isTTY {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	c.prompts <- struct{}{}
	line, ok := <-c.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

// --- filecopier.UI ---

func (c *Console) ReadFolder() (string, error) {
	return c.readLine(labelStyle.Render("Enter the folder name (e.g., 01-04): "))
}

func (c *Console) InvalidFolder(err error) {
	fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
}

func (c *Console) ReadMenuChoice() (filecopier.MenuChoice, error) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, strings.Repeat("=", 50))
	fmt.Fprintln(c.out, noticeStyle.Render("Select an option:"))
	fmt.Fprintln(c.out, "1. Change source folder")
	fmt.Fprintln(c.out, "2. Quit")
	fmt.Fprintln(c.out, strings.Repeat("=", 50))

	line, err := c.readLine("Enter your choice (1 or 2): ")
	if err != nil {
		return filecopier.MenuNone, err
	}
	switch strings.TrimSpace(line) {
	case "1":
		return filecopier.MenuChangeFolder, nil
	case "2":
		return filecopier.MenuQuit, nil
	default:
		// Anything else closes the menu and resumes monitoring.
		return filecopier.MenuNone, nil
	}
}

func (c *Console) MonitoringStarted(sourceDir, destDir string) {
	fmt.Fprintln(c.out, successStyle.Render(fmt.Sprintf("[%s] Monitoring started:", timestamp())))
	fmt.Fprintln(c.out, labelStyle.Render("Source:      ")+sourceDir)
	fmt.Fprintln(c.out, labelStyle.Render("Destination: ")+destDir)
	if c.isTTY {
		fmt.Fprintln(c.out, noticeStyle.Render("Press ESC to open menu"))
	}
	fmt.Fprintln(c.out)
}

func (c *Console) MonitoringStopped() {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, noticeStyle.Render(fmt.Sprintf("[%s] Monitoring stopped", timestamp())))
}

func (c *Console) ReportError(msg string, err error) {
	fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf("Error: %s: %v", msg, err)))
}

// --- filecopier.Reporter ---

// CopyStarted opens a progress tracker for the file. A progress writer is
// created lazily and torn down once no copies remain, so the renderer only
// owns the console while transfers are on screen.
func (c *Console) CopyStarted(name string, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pw == nil {
		pw := progress.NewWriter()
		pw.SetOutputWriter(c.out)
		pw.SetAutoStop(false)
		pw.SetUpdateFrequency(100 * time.Millisecond)
		pw.SetTrackerLength(25)
		pw.Style().Visibility.ETA = false
		pw.Style().Visibility.Speed = true
		pw.Style().Visibility.Percentage = true
		pw.Style().Visibility.Value = true
		c.pw = pw
		go pw.Render()
	}

	t := &progress.Tracker{
		Message: "Copying " + name,
		Total:   total,
		Units:   progress.UnitsBytes,
	}
	c.trackers[name] = t
	c.pw.AppendTracker(t)
}

func (c *Console) CopyProgress(name string, copied, total int64) {
	c.mu.Lock()
	t := c.trackers[name]
	c.mu.Unlock()
	if t != nil {
		t.SetValue(copied)
	}
}

func (c *Console) CopyDone(name, src, dst string, copied int64) {
	c.finishTracker(name, false)
	c.printf("%s", successStyle.Render(fmt.Sprintf("[%s] File copied successfully:", timestamp())))
	c.printf("%s%s (%s)", labelStyle.Render("File: "), name, formatBytes(copied))
	c.printf("%s%s", labelStyle.Render("From: "), src)
	c.printf("%s%s", labelStyle.Render("To:   "), dst)
	c.printf("")
}

func (c *Console) CopyFailed(name string, err error) {
	c.finishTracker(name, true)
	c.printf("%s", errorStyle.Render(fmt.Sprintf("[%s] Error copying %s: %v", timestamp(), name, err)))
}

func (c *Console) finishTracker(name string, failed bool) {
	c.mu.Lock()
	t := c.trackers[name]
	delete(c.trackers, name)
	remaining := len(c.trackers)
	pw := c.pw
	if remaining == 0 {
		c.pw = nil
	}
	c.mu.Unlock()

	if t != nil {
		if failed {
			t.MarkAsErrored()
		} else {
			t.MarkAsDone()
		}
	}
	if remaining == 0 && pw != nil {
		pw.Stop()
	}
}

// printf routes a line through the progress writer's log facility while bars
// are rendering, so status lines and bars do not overwrite each other.
func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	pw := c.pw
	c.mu.Unlock()

	if pw != nil {
		pw.Log(format, args...)
		return
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

func timestamp() string {
	return time.Now().Format(timestampLayout)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// crlfWriter rewrites bare newlines as CRLF; raw mode disables the kernel's
// output post-processing, so without this every println stair-steps.
type crlfWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	for i, b := range p {
		if b != '\n' {
			continue
		}
		if _, err := c.w.Write(p[start:i]); err != nil {
			return start, err
		}
		if _, err := c.w.Write([]byte("\r\n")); err != nil {
			return i, err
		}
		start = i + 1
	}
	if _, err := c.w.Write(p[start:]); err != nil {
		return start, err
	}
	return len(p), nil
}
