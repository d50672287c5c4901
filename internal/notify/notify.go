// Package notify carries user-visible notifications (the toast layer).
// Components emit through the Notifier interface; sinks decide presentation.
// The Hub fans a single stream out to the console and to any subscribed
// views so the TUI can show toasts without the core knowing about it.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Level classifies a notification for presentation.
type Level int

// Notification levels.
const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Notification is one user-visible message.
type Notification struct {
	Level   Level
	Message string
	At      time.Time
}

// Notifier is the emission interface components depend on.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// Nop discards all notifications. Used in tests and for fire-and-forget paths.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}
func (Nop) Info(string)    {}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Console writes notifications as styled lines. Color is applied only when
// the destination is a terminal.
type Console struct {
	w      io.Writer
	styled bool
}

// NewConsole creates a console sink writing to f, coloring output when f is
// a TTY.
func NewConsole(f *os.File) *Console {
	return &Console{
		w:      f,
		styled: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (c *Console) Success(msg string) {
	c.write(successStyle, "✓ "+msg)
}

func (c *Console) Error(msg string) {
	c.write(errorStyle, "✗ "+msg)
}

func (c *Console) Info(msg string) {
	c.write(lipgloss.NewStyle(), msg)
}

func (c *Console) write(style lipgloss.Style, line string) {
	if c.styled {
		line = style.Render(line)
	}

	fmt.Fprintln(c.w, line)
}

// subscriberBuffer bounds each subscriber channel. A slow view drops
// notifications rather than blocking the emitting component.
const subscriberBuffer = 16

// Hub implements Notifier by forwarding to fixed sinks and to dynamic
// subscribers. Safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	sinks []Notifier
	subs  map[int]chan Notification
	next  int
}

// NewHub creates a Hub forwarding to the given sinks.
func NewHub(sinks ...Notifier) *Hub {
	return &Hub{
		sinks: sinks,
		subs:  make(map[int]chan Notification),
	}
}

// Subscribe returns a channel of notifications and a cancel function.
// The channel is closed on cancel.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++

	ch := make(chan Notification, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

func (h *Hub) Success(msg string) { h.publish(LevelSuccess, msg) }
func (h *Hub) Error(msg string)   { h.publish(LevelError, msg) }
func (h *Hub) Info(msg string)    { h.publish(LevelInfo, msg) }

func (h *Hub) publish(level Level, msg string) {
	h.mu.Lock()
	sinks := make([]Notifier, len(h.sinks))
	copy(sinks, h.sinks)

	n := Notification{Level: level, Message: msg, At: time.Now()}

	for _, sub := range h.subs {
		select {
		case sub <- n:
		default: // drop rather than block the emitter
		}
	}
	h.mu.Unlock()

	for _, s := range sinks {
		switch level {
		case LevelSuccess:
			s.Success(msg)
		case LevelError:
			s.Error(msg)
		case LevelInfo:
			s.Info(msg)
		}
	}
}
