// Package tui provides the BubbleTea live view behind glintctl watch.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

const (
	refreshInterval = time.Second
	callTimeout     = 2 * time.Second
)

// Source is the daemon surface the view reads and drives.
type Source interface {
	List(ctx context.Context) ([]model.ListEntry, error)
	Status(ctx context.Context) (model.Status, error)
	Dismiss(ctx context.Context, id uint32) error
	DismissAll(ctx context.Context) (int, error)
	InvokeAction(ctx context.Context, id uint32, key string) error
	SetInhibited(ctx context.Context, on bool) (model.Status, error)
	SetMuted(ctx context.Context, on bool) (model.Status, error)
}

// Model is the watch view model.
type Model struct {
	src    Source
	states <-chan model.Status
	now    func() time.Time

	table table.Model
	help  help.Model
	keys  KeyMap

	entries []model.ListEntry
	status  model.Status
	width   int
	ready   bool

	// Status message
	statusMsg string
	statusErr bool
}

type snapshotMsg struct {
	entries []model.ListEntry
	status  model.Status
	err     error
}

type stateMsg model.Status

type tickMsg time.Time

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type actionDoneMsg struct {
	text string
	err  error
}

// New creates a watch model. states may be nil, in which case the view
// only polls.
func New(src Source, states <-chan model.Status, cfg *config.Config) Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	t := table.New(
		table.WithColumns(columns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12"))
	t.SetStyles(styles)

	h := help.New()
	h.ShowAll = cfg.Watch.ShowHelp

	return Model{
		src:    src,
		states: states,
		now:    time.Now,
		table:  t,
		help:   h,
		keys:   DefaultKeyMap(),
	}
}

func columns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "App", Width: 14},
		{Title: "Summary", Width: 32},
		{Title: "Urgency", Width: 8},
		{Title: "Phase", Width: 9},
		{Title: "Age", Width: 14},
		{Title: "Expires", Width: 8},
	}
}

// Init starts polling and the state subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick(), m.watchState())
}

func (m Model) refresh() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		entries, err := src.List(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		st, err := src.Status(ctx)
		return snapshotMsg{entries: entries, status: st, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) watchState() tea.Cmd {
	if m.states == nil {
		return nil
	}
	states := m.states
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func (m Model) act(text string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return actionDoneMsg{text: text, err: fn(ctx)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.statusMsg = "Daemon unreachable: " + msg.err.Error()
			m.statusErr = true
			return m, nil
		}
		m.entries = msg.entries
		m.status = msg.status
		m.table.SetRows(rows(m.entries, m.now()))
		if c := m.table.Cursor(); c >= len(m.entries) {
			m.table.SetCursor(max(len(m.entries)-1, 0))
		}
		if m.statusErr && strings.HasPrefix(m.statusMsg, "Daemon unreachable") {
			m.statusMsg, m.statusErr = "", false
		}
		return m, nil

	case stateMsg:
		m.status = model.Status(msg)
		return m, tea.Batch(m.refresh(), m.watchState())

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case actionDoneMsg:
		if msg.err != nil {
			return m, m.setStatus(msg.err.Error(), true)
		}
		return m, tea.Batch(m.refresh(), m.setStatus(msg.text, false))

	case statusMsg:
		return m, m.setStatus(msg.text, msg.isErr)

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusMsg = text
	m.statusErr = isErr
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m Model) selected() *model.ListEntry {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.entries) {
		return nil
	}
	return &m.entries[i]
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	src := m.src

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()

	case key.Matches(msg, m.keys.Inhibit):
		on := !m.status.Inhibited
		return m, m.act(onOff("Do not disturb", on), func(ctx context.Context) error {
			_, err := src.SetInhibited(ctx, on)
			return err
		})

	case key.Matches(msg, m.keys.Mute):
		on := !m.status.Muted
		return m, m.act(onOff("Sound muted", on), func(ctx context.Context) error {
			_, err := src.SetMuted(ctx, on)
			return err
		})

	case key.Matches(msg, m.keys.DismissAll):
		return m, m.act("Dismissed all", func(ctx context.Context) error {
			_, err := src.DismissAll(ctx)
			return err
		})
	}

	e := m.selected()
	switch {
	case key.Matches(msg, m.keys.Dismiss):
		if e == nil {
			return m, nil
		}
		id := e.ID
		return m, m.act(fmt.Sprintf("Dismissed %d", id), func(ctx context.Context) error {
			return src.Dismiss(ctx, id)
		})

	case key.Matches(msg, m.keys.Invoke):
		if e == nil {
			return m, nil
		}
		actionKey, ok := defaultAction(e.Actions)
		if !ok {
			return m, m.setStatus("No actions on this notification", true)
		}
		id := e.ID
		return m, m.act(fmt.Sprintf("Invoked %q on %d", actionKey, id), func(ctx context.Context) error {
			return src.InvokeAction(ctx, id, actionKey)
		})

	case key.Matches(msg, m.keys.Copy):
		if e == nil {
			return m, nil
		}
		text := e.Body
		if text == "" {
			text = e.Summary
		}
		return m, copyCmd(text)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// defaultAction picks "default" when offered, otherwise the first action.
func defaultAction(actions []model.Action) (string, bool) {
	if len(actions) == 0 {
		return "", false
	}
	for _, a := range actions {
		if a.Key == model.DefaultActionKey {
			return a.Key, true
		}
	}
	return actions[0].Key, true
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

func rows(entries []model.ListEntry, now time.Time) []table.Row {
	out := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		out = append(out, row(e, now))
	}
	return out
}

func row(e model.ListEntry, now time.Time) table.Row {
	summary := e.Summary
	if e.StackCount > 1 {
		summary = fmt.Sprintf("%s (x%d)", summary, e.StackCount)
	}
	phase := e.Phase
	if !e.Visible {
		phase = "hidden"
	}
	expires := "never"
	if e.ExpiresAt != nil {
		expires = max(e.ExpiresAt.Sub(now), 0).Round(time.Second).String()
	}
	return table.Row{
		strconv.FormatUint(uint64(e.ID), 10),
		e.AppName,
		summary,
		e.Urgency,
		phase,
		humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
		expires,
	}
}

// View renders the watch view.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if e := m.selected(); e != nil && e.Body != "" {
		body := strings.ReplaceAll(e.Body, "\n", " ")
		if m.width > 3 && lipgloss.Width(body) > m.width {
			body = string([]rune(body)[:m.width-1]) + "…"
		}
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("7")).Render(body))
	}
	b.WriteString("\n")

	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		b.WriteString(statusStyle.Render(m.statusMsg))
	} else {
		m.help.Width = m.width
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m Model) header() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render("glint")
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	flag := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))

	st := m.status
	parts := []string{
		title,
		dim.Render(fmt.Sprintf("%d active  %d visible  %d hidden  %d waiting  surface %s",
			st.Active, st.Visible, st.Hidden, st.Waiting, st.Surface)),
	}
	if st.Inhibited {
		parts = append(parts, flag.Render("[DND]"))
	}
	if st.Muted {
		parts = append(parts, flag.Render("[MUTED]"))
	}
	if st.Idle {
		parts = append(parts, dim.Render("[IDLE]"))
	}
	return strings.Join(parts, "  ")
}

// RunOptions configures the watch view.
type RunOptions struct {
	Config *config.Config
	Source Source
	States <-chan model.Status
}

// Run starts the watch view and blocks until the user quits.
func Run(opts RunOptions) error {
	m := New(opts.Source, opts.States, opts.Config)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
