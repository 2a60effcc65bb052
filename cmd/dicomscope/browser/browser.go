// Package browser is an interactive terminal browser for a scanned DICOM tree.
package browser

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/scan"
)

// Phase is the current screen of the browser.
type Phase int

const (
	PhaseDirectory Phase = iota
	PhaseScanning
	PhaseBrowse
	PhaseError
)

// Options configures the browser.
type Options struct {
	// Dir is scanned on start. When empty the user is asked for it.
	Dir string

	Builder   *hierarchy.Builder
	Registrar scan.ImageRegistrar

	// ScanOptions are passed to every scanner the browser creates, after the
	// browser's own logger, registrar and progress options.
	ScanOptions []scan.Option
	Logger      *slog.Logger

	// OpenFS returns the file system scanned for dir. Defaults to os.DirFS.
	OpenFS func(dir string) fs.FS
}

type progressMsg scan.Progress

type scanDoneMsg struct {
	summary scan.Summary
	err     error
}

// Model is the bubbletea model of the browser.
type Model struct {
	opts  Options
	phase Phase

	dirForm *huh.Form
	dir     string

	spinner  spinner.Model
	progress scan.Progress
	started  time.Time
	updates  chan tea.Msg
	cancel   context.CancelFunc

	rows     []row
	cursor   int
	expanded map[string]bool
	summary  scan.Summary

	width  int
	height int
	err    error
}

// New returns a model for opts.
func New(opts Options) *Model {
	if opts.Builder == nil {
		opts.Builder = hierarchy.NewBuilder()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OpenFS == nil {
		opts.OpenFS = os.DirFS
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	m := &Model{
		opts:     opts,
		dir:      opts.Dir,
		spinner:  s,
		expanded: make(map[string]bool),
	}
	if m.dir == "" {
		m.phase = PhaseDirectory
		m.dirForm = newDirectoryForm(&m.dir)
	} else {
		m.phase = PhaseScanning
	}
	return m
}

func newDirectoryForm(dir *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("dir").
				Title("DICOM directory").
				Description("Directory to scan recursively").
				Value(dir).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("directory is required")
					}
					info, err := os.Stat(s)
					if err != nil {
						return err
					}
					if !info.IsDir() {
						return fmt.Errorf("%s is not a directory", s)
					}
					return nil
				}),
		),
	).WithShowHelp(false)
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.phase == PhaseDirectory {
		return m.dirForm.Init()
	}
	return m.startScan()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wsm.Width
		m.height = wsm.Height
	}

	switch m.phase {
	case PhaseDirectory:
		return m.updateDirectory(msg)
	case PhaseScanning:
		return m.updateScanning(msg)
	case PhaseBrowse:
		return m.updateBrowse(msg)
	case PhaseError:
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch {
			case key.Matches(msg, keys.Rescan):
				return m, m.startScan()
			case key.Matches(msg, keys.Quit), msg.String() == "esc", msg.String() == "enter":
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m *Model) updateDirectory(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	form, cmd := m.dirForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.dirForm = f
	}

	switch m.dirForm.State {
	case huh.StateCompleted:
		return m, m.startScan()
	case huh.StateAborted:
		return m, tea.Quit
	}
	return m, cmd
}

// startScan runs a scan of m.dir in the background. Progress and the final
// result arrive as messages through m.updates.
func (m *Model) startScan() tea.Cmd {
	m.phase = PhaseScanning
	m.progress = scan.Progress{}
	m.started = time.Now()
	m.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	updates := make(chan tea.Msg, 16)
	m.updates = updates

	opts := append([]scan.Option{
		scan.WithLogger(m.opts.Logger),
		scan.WithRegistrar(m.opts.Registrar),
		scan.WithProgress(func(p scan.Progress) {
			select {
			case updates <- progressMsg(p):
			default:
			}
		}),
	}, m.opts.ScanOptions...)
	scanner := scan.NewScanner(m.opts.Builder, opts...)
	fsys := m.opts.OpenFS(m.dir)

	go func() {
		summary, err := scanner.Scan(ctx, fsys, ".")
		updates <- scanDoneMsg{summary: summary, err: err}
	}()

	return tea.Batch(m.spinner.Tick, waitForScan(updates))
}

func (m *Model) stopScan() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func waitForScan(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m *Model) updateScanning(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.stopScan()
			return m, tea.Quit
		}
	case progressMsg:
		m.progress = scan.Progress(msg)
		return m, waitForScan(m.updates)
	case scanDoneMsg:
		m.stopScan()
		if msg.err != nil {
			m.phase = PhaseError
			m.err = msg.err
			return m, nil
		}
		m.summary = msg.summary
		m.phase = PhaseBrowse
		m.cursor = 0
		m.expanded = make(map[string]bool)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, keys.Quit):
		return m, tea.Quit
	case key.Matches(km, keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.selectCursor()
		}
	case key.Matches(km, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
			m.selectCursor()
		}
	case key.Matches(km, keys.Toggle):
		if r, ok := m.current(); ok && r.expandable() {
			m.expanded[r.path()] = !m.expanded[r.path()]
			m.refresh()
		}
	case key.Matches(km, keys.Rescan):
		return m, m.startScan()
	}
	return m, nil
}

// refresh rebuilds the visible rows and keeps the cursor in range.
func (m *Model) refresh() {
	m.opts.Builder.View(func(h *hierarchy.Hierarchy) {
		m.rows = flatten(h, m.expanded)
	})
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
	m.selectCursor()
}

// selectCursor points the builder's cursors at the row under the cursor.
func (m *Model) selectCursor() {
	r, ok := m.current()
	if !ok {
		return
	}
	if err := m.opts.Builder.Select(r.sel); err != nil {
		m.opts.Logger.Debug("select failed", "error", err)
	}
}

func (m *Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// Selection returns the builder's current cursors.
func (m *Model) Selection() hierarchy.Selection {
	return m.opts.Builder.Selection()
}

// Err returns the error of the last scan, if any.
func (m *Model) Err() error {
	return m.err
}

// View implements tea.Model.
func (m *Model) View() string {
	switch m.phase {
	case PhaseDirectory:
		return lipgloss.JoinVertical(lipgloss.Left,
			TitleStyle.Render("dicomscope"),
			m.dirForm.View(),
			"",
			hintStyle.Render("Enter: Scan | Ctrl+C: Quit"),
		)
	case PhaseScanning:
		return m.viewScanning()
	case PhaseBrowse:
		return m.viewBrowse()
	case PhaseError:
		var sb strings.Builder
		sb.WriteString(errorTitleStyle.Render("✗ Scan failed"))
		sb.WriteString("\n\n  ")
		sb.WriteString(m.err.Error())
		sb.WriteString("\n\n")
		sb.WriteString(hintStyle.Render("r: Retry | q: Quit"))
		return sb.String()
	}
	return ""
}

func (m *Model) viewScanning() string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Scanning " + m.dir))
	sb.WriteString("\n\n")
	sb.WriteString(m.spinner.View())
	sb.WriteString(" ")
	if m.progress.Total > 0 {
		sb.WriteString(renderProgressBar(m.progress.Percentage, 40))
		sb.WriteString(fmt.Sprintf(" %d%%  File %d/%d", m.progress.Percentage, m.progress.Processed, m.progress.Total))
	} else {
		sb.WriteString(fmt.Sprintf("%d files", m.progress.Processed))
	}
	if m.progress.Path != "" {
		sb.WriteString("\n")
		sb.WriteString(SubtitleStyle.Render(truncatePath(m.progress.Path, 60)))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Elapsed: %.1fs", time.Since(m.started).Seconds()))
	sb.WriteString("\n\n")
	sb.WriteString(hintStyle.Render("Press q to cancel"))
	return sb.String()
}

func (m *Model) viewBrowse() string {
	stats := m.opts.Builder.Stats()
	header := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("dicomscope · "+m.dir),
		SubtitleStyle.Render(fmt.Sprintf("%d subjects, %d visits, %d series, %d sequences (%d files, %d not DICOM)",
			stats.Subjects, stats.Visits, stats.Series, stats.Sequences, m.summary.Files, m.summary.NotDICOM)),
	)

	if len(m.rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, "No DICOM files found.", "", hintStyle.Render(keys.help()))
	}

	var tree strings.Builder
	for i, r := range m.rows {
		marker := "  "
		if r.expandable() {
			marker = "▸ "
			if m.expanded[r.path()] {
				marker = "▾ "
			}
		}
		line := strings.Repeat(" ", r.indent()) + marker + r.label
		if i == m.cursor {
			line = cursorStyle.Render(line)
		} else {
			line = nodeStyles[r.kind].Render(line)
		}
		tree.WriteString(line)
		tree.WriteString("\n")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, tree.String(), "  ", m.viewDetails())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, "", hintStyle.Render(keys.help()))
}

func (m *Model) viewDetails() string {
	r, ok := m.current()
	if !ok {
		return ""
	}

	stackSize := 0
	if r.kind == kindSeries {
		if seqs, err := m.opts.Builder.SequencesOfSeries(r.sel.SubjectID, r.sel.VisitID, r.sel.SeriesID); err == nil {
			stackSize = len(seqs)
		}
	}

	var sb strings.Builder
	for i, kv := range r.details(stackSize) {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(labelStyle.Render(kv[0] + ":"))
		sb.WriteString(" ")
		sb.WriteString(valueStyle.Render(kv[1]))
	}
	return panelStyle.Render(sb.String())
}

func renderProgressBar(percent, width int) string {
	filled := min(percent*width/100, width)
	return progressBarStyle.Render("["+strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", width-filled)+"]")
}

func truncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	return "..." + p[len(p)-n+3:]
}

// Run starts the browser and blocks until the user quits.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("running browser: %w", err)
	}
	if fm, ok := finalModel.(*Model); ok {
		fm.stopScan()
	}
	return nil
}
