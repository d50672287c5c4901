package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/drive"
	"github.com/clouddrive/clouddrive-go/internal/notify"
	"github.com/clouddrive/clouddrive-go/internal/session"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the drive interactively",
		RunE:  runBrowse,
	}
}

func runBrowse(cmd *cobra.Command, _ []string) error {
	a := newApp()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	tree := a.newTree(snap.Identity.ID)
	uploader := drive.NewUploader(a.client, tree, a.uploaderOptions(), a.notifier, a.logger)
	monitor := session.NewMonitor(a.store, a.client, a.cfg.CheckInterval(), a.logger)

	m := newBrowseModel(ctx, tree, uploader, snap)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	uploader.SetProgressFunc(func(pct int) {
		prog.Send(uploadProgressMsg(pct))
	})

	notices, cancelNotices := a.notifier.Subscribe()
	defer cancelNotices()

	sessions, cancelSessions := a.store.Subscribe()
	defer cancelSessions()

	go func() {
		for n := range notices {
			prog.Send(noticeMsg(n))
		}
	}()

	go func() {
		for s := range sessions {
			prog.Send(sessionMsg(s))
		}
	}()

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		monitor.Run(runCtx)
		return nil
	})

	g.Go(func() error {
		defer cancel()
		_, err := prog.Run()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("interactive session ended: %w", err)
	}

	if m.expired {
		return fmt.Errorf("session expired — run 'clouddrive login' to sign in again")
	}

	return nil
}

// inputMode says what the text input at the bottom of the screen is for.
type inputMode int

const (
	inputNone inputMode = iota
	inputNewFolder
	inputUploadPath
)

// Messages delivered into the Bubble Tea loop from outside goroutines.
type (
	noticeMsg         notify.Notification
	sessionMsg        session.Session
	uploadProgressMsg int
	listingMsg        struct{ err error }
	viewURLMsg        struct {
		url string
		err error
	}
)

var (
	browseTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("63"))
	browseCrumbStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	browseCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	browseFolderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	browseHelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	browseErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	browseOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type browseModel struct {
	ctx      context.Context
	tree     *drive.Tree
	uploader *drive.Uploader
	cred     string

	items   []api.Item
	cursor  int
	loading bool

	input     textinput.Model
	inputMode inputMode

	confirmDelete string // item id pending deletion, "" when none

	bar       progress.Model
	uploadPct int

	toast      string
	toastLevel notify.Level

	expired bool
	width   int
	height  int
}

func newBrowseModel(ctx context.Context, tree *drive.Tree, uploader *drive.Uploader, snap session.Session) *browseModel {
	ti := textinput.New()
	ti.CharLimit = 256

	return &browseModel{
		ctx:      ctx,
		tree:     tree,
		uploader: uploader,
		cred:     snap.Credential,
		loading:  true,
		input:    ti,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

func (m *browseModel) Init() tea.Cmd {
	return m.enterFolder("")
}

// enterFolder issues the navigation as a command; the cache refresh happens
// when listingMsg arrives.
func (m *browseModel) enterFolder(folderID string) tea.Cmd {
	m.loading = true

	return func() tea.Msg {
		return listingMsg{err: m.tree.EnterFolder(m.ctx, m.cred, folderID)}
	}
}

func (m *browseModel) refreshItems() {
	m.items = m.tree.CurrentChildren()

	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}

	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 4

		return m, nil

	case listingMsg:
		m.loading = false
		m.refreshItems()

		return m, nil

	case noticeMsg:
		m.toast = msg.Message
		m.toastLevel = msg.Level

		return m, nil

	case sessionMsg:
		if !session.Session(msg).Authenticated() {
			// Forced logout: the monitor found the session dead.
			m.expired = true
			return m, tea.Quit
		}

		return m, nil

	case uploadProgressMsg:
		m.uploadPct = int(msg)

		return m, nil

	case viewURLMsg:
		if msg.err == nil {
			m.toast = msg.url
			m.toastLevel = notify.LevelInfo
		}

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *browseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputMode != inputNone {
		return m.handleInputKey(msg)
	}

	if m.confirmDelete != "" {
		return m.handleConfirmKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter":
		if item, ok := m.selected(); ok {
			if item.IsFolder() {
				m.cursor = 0
				return m, m.enterFolder(item.ID)
			}

			return m, m.resolveView(item)
		}

	case "esc", "backspace":
		if parent, ok := m.parentFolder(); ok {
			m.cursor = 0
			return m, m.enterFolder(parent)
		}

	case "r":
		return m, m.enterFolder(m.tree.ActiveFolder())

	case "n":
		m.openInput(inputNewFolder, "folder name")

	case "u":
		m.openInput(inputUploadPath, "local file path")

	case "d":
		if item, ok := m.selected(); ok {
			m.confirmDelete = item.ID
		}
	}

	return m, nil
}

func (m *browseModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeInput()

		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.inputMode
		m.closeInput()

		switch mode {
		case inputNewFolder:
			return m, m.createFolder(value)
		case inputUploadPath:
			return m, m.startUpload(value)
		}

		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m *browseModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.confirmDelete
	m.confirmDelete = ""

	if msg.String() != "y" {
		return m, nil
	}

	return m, func() tea.Msg {
		// Confirmation already happened in the UI.
		err := m.tree.DeleteItem(m.ctx, m.cred, id, nil)

		return listingMsg{err: err}
	}
}

func (m *browseModel) openInput(mode inputMode, placeholder string) {
	m.inputMode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
}

func (m *browseModel) closeInput() {
	m.inputMode = inputNone
	m.input.Blur()
}

func (m *browseModel) selected() (api.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return api.Item{}, false
	}

	return m.items[m.cursor], true
}

// parentFolder resolves where esc/backspace should go: the parent of the
// active folder, via the cached breadcrumb trail. At root there is nowhere
// to go.
func (m *browseModel) parentFolder() (string, bool) {
	if m.tree.ActiveFolder() == "" {
		return "", false
	}

	trail := m.tree.Breadcrumbs()
	if len(trail) >= 2 {
		return trail[len(trail)-2].ID, true
	}

	return "", true // trail truncated or single-level: fall back to root
}

func (m *browseModel) createFolder(name string) tea.Cmd {
	parentID := m.tree.ActiveFolder()

	return func() tea.Msg {
		_, err := m.tree.CreateFolder(m.ctx, m.cred, name, parentID)

		return listingMsg{err: err}
	}
}

func (m *browseModel) startUpload(path string) tea.Cmd {
	return func() tea.Msg {
		content, err := os.ReadFile(path)
		if err != nil {
			return noticeMsg(notify.Notification{
				Level:   notify.LevelError,
				Message: "Could not read " + path,
			})
		}

		payload := drive.Payload{Name: filepath.Base(path), Content: content}
		if !m.uploader.Start(m.ctx, m.cred, payload) {
			return noticeMsg(notify.Notification{
				Level:   notify.LevelError,
				Message: "An upload is already in progress",
			})
		}

		return nil
	}
}

func (m *browseModel) resolveView(item api.Item) tea.Cmd {
	return func() tea.Msg {
		url, err := m.tree.ResolveViewURL(m.ctx, m.cred, item)

		return viewURLMsg{url: url, err: err}
	}
}

func (m *browseModel) View() string {
	var b strings.Builder

	b.WriteString(browseTitleStyle.Render(" CloudDrive ") + "\n")
	b.WriteString(browseCrumbStyle.Render(m.renderBreadcrumbs()) + "\n\n")

	switch {
	case m.loading:
		b.WriteString("  loading...\n")
	case len(m.items) == 0:
		b.WriteString("  (empty folder)\n")
	default:
		for i, item := range m.items {
			b.WriteString(m.renderItem(i, item) + "\n")
		}
	}

	b.WriteString("\n")

	if m.uploadPct > 0 {
		b.WriteString("  " + m.bar.ViewAs(float64(m.uploadPct)/100) + "\n")
	}

	if m.toast != "" {
		style := browseOKStyle
		if m.toastLevel == notify.LevelError {
			style = browseErrStyle
		}

		b.WriteString("  " + style.Render(m.toast) + "\n")
	}

	switch {
	case m.inputMode != inputNone:
		b.WriteString("\n  " + m.input.View() + "\n")
		b.WriteString(browseHelpStyle.Render("  enter: confirm • esc: cancel"))
	case m.confirmDelete != "":
		b.WriteString("\n  " + browseErrStyle.Render("Are you sure you want to delete this item? [y/N]"))
	default:
		b.WriteString(browseHelpStyle.Render(
			"  ↑/↓: move • enter: open/view • esc: up • n: new folder • u: upload • d: delete • r: refresh • q: quit"))
	}

	return b.String()
}

func (m *browseModel) renderBreadcrumbs() string {
	parts := []string{"Home"}
	for _, crumb := range m.tree.Breadcrumbs() {
		parts = append(parts, crumb.Name)
	}

	return " " + strings.Join(parts, " / ")
}

func (m *browseModel) renderItem(i int, item api.Item) string {
	cursor := "  "
	if i == m.cursor {
		cursor = "> "
	}

	name := item.Name
	if item.IsFolder() {
		name = browseFolderStyle.Render(name + "/")
	}

	line := fmt.Sprintf("%s%-10s %s", cursor, item.Kind, name)
	if i == m.cursor {
		return browseCursorStyle.Render(line)
	}

	return line
}
