// Package tui renders the live run status board. It follows the Elm
// architecture bubbletea imposes: the Model holds all state, Update reacts to
// messages, View renders a string. Refreshes come from a timer and, when the
// filesystem watcher is active, from artifact change events.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
)

const refreshInterval = 2 * time.Second

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			MarginBottom(1)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B"))
)

// StageRow is one line of the status table.
type StageRow struct {
	Name        string
	Status      string
	Reason      string
	RerunCount  int
	CompletedAt *time.Time
}

// Snapshot is everything the board displays for one refresh.
type Snapshot struct {
	RunName        string
	RunID          string
	Journal        string
	CitationStatus string
	Stages         []StageRow
	UpdatedAt      time.Time
}

// Fetcher produces a fresh snapshot from disk.
type Fetcher func() (Snapshot, error)

type snapshotMsg struct {
	snap Snapshot
	err  error
}

type artifactChangedMsg struct{}

// Model drives the status board.
type Model struct {
	fetch   Fetcher
	watcher *fsnotify.Watcher
	table   table.Model
	spinner spinner.Model
	snap    Snapshot
	loaded  bool
	err     error
	width   int
	height  int
}

// New builds a status board over the fetcher. When watch directories are
// given a filesystem watcher triggers refreshes on artifact changes in
// addition to the timer. fsnotify does not recurse, so every directory to
// observe is listed explicitly.
func New(fetch Fetcher, watchDirs ...string) (*Model, error) {
	columns := []table.Column{
		{Title: "Stage", Width: 12},
		{Title: "Status", Width: 12},
		{Title: "Reruns", Width: 6},
		{Title: "Completed", Width: 20},
		{Title: "Reason", Width: 34},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(9),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{fetch: fetch, table: t, spinner: sp}
	var dirs []string
	for _, dir := range watchDirs {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("tui: start watcher: %w", err)
		}
		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				return nil, fmt.Errorf("tui: watch %s: %w", dir, err)
			}
		}
		m.watcher = watcher
	}
	return m, nil
}

// Close releases the filesystem watcher.
func (m *Model) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// Init starts the spinner, the first fetch, and the watcher pump.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.fetchCmd()}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForChange())
	}
	return tea.Batch(cmds...)
}

// Update reacts to refreshes, watcher events, and key presses.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(maxInt(5, msg.Height-10))
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.snap = msg.snap
			m.loaded = true
			m.table.SetRows(buildRows(msg.snap.Stages))
		}
		return m, m.scheduleRefresh()

	case artifactChangedMsg:
		return m, tea.Batch(m.fetchCmd(), m.waitForChange())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the board.
func (m *Model) View() string {
	title := fmt.Sprintf("scrivener · %s", m.snap.RunName)
	if m.snap.RunName == "" {
		title = "scrivener"
	}
	header := headerStyle.Render(title)

	var body string
	if !m.loaded {
		body = fmt.Sprintf("%s loading run state...", m.spinner.View())
	} else {
		info := []string{
			fmt.Sprintf("run %s", m.snap.RunID),
			fmt.Sprintf("citations: %s", m.snap.CitationStatus),
		}
		if m.snap.Journal != "" {
			info = append(info, fmt.Sprintf("journal: %s", m.snap.Journal))
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			strings.Join(info, "   "),
			"",
			m.table.View(),
		)
	}
	box := boxStyle.Render(body)

	footer := footerStyle.Render("r → refresh    q → quit")
	if m.err != nil {
		footer = errStyle.Render(fmt.Sprintf("⚠ %v", m.err)) + "\n" + footer
	}
	if !m.snap.UpdatedAt.IsZero() {
		footer += footerStyle.Render(fmt.Sprintf("  ·  refreshed %s", m.snap.UpdatedAt.Format("15:04:05")))
	}
	return strings.Join([]string{header, box, footer}, "\n")
}

func buildRows(stages []StageRow) []table.Row {
	rows := make([]table.Row, 0, len(stages))
	for _, row := range stages {
		completed := "—"
		if row.CompletedAt != nil {
			completed = row.CompletedAt.Local().Format("2006-01-02 15:04")
		}
		reason := row.Reason
		if reason == "up_to_date" {
			reason = ""
		} else if reason != "" {
			reason = staleStyle.Render(reason)
		}
		rows = append(rows, table.Row{
			row.Name,
			row.Status,
			fmt.Sprintf("%d", row.RerunCount),
			completed,
			reason,
		})
	}
	return rows
}

func (m *Model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch()
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m *Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		snap, err := m.fetch()
		return snapshotMsg{snap: snap, err: err}
	})
}

// waitForChange blocks on the watcher and converts the next relevant event
// into a refresh. Chmod-only events are noise on most editors and skipped.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				return artifactChangedMsg{}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
				return artifactChangedMsg{}
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
