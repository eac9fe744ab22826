package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws reconciliation progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *reconcileModel
	tracker *Tracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}

	// completed is set once Complete is sent; the program then exits itself.
	completed bool
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewTracker()
	model := newReconcileModel(tracker, cfg.Title)
	model.styles = GetStyles(cfg.NoColor || DetectNoColor())

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var ctxRun context.Context
	ctxRun, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(ctxRun)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(event)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Fail(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(ProgressEvent{Stage: StageComplete})
	r.completed = true
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the program to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program, completed := r.program, r.completed
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	if !completed {
		program.Quit()
	}
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

type reconcileModel struct {
	tracker     *Tracker
	width       int
	quitting    bool
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	title       string
}

func newReconcileModel(tracker *Tracker, title string) *reconcileModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &reconcileModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		title:       title,
	}
}

// Init implements tea.Model.
func (m *reconcileModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *reconcileModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *reconcileModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	sections := []string{
		m.styles.Header.Render(m.title),
		m.renderStages(),
		m.renderProgress(),
	}
	snap := m.tracker.Snapshot()
	if snap.File != "" {
		sections = append(sections, m.styles.Dim.Render(truncateName(snap.File, max(m.width-4, 20))))
	}
	if status := m.renderStatus(snap); status != "" {
		sections = append(sections, status)
	}
	for _, line := range snap.Recent {
		sections = append(sections, m.styles.Error.Render("  "+truncateName(line, max(m.width-4, 20))))
	}
	return strings.Join(sections, "\n") + "\n"
}

func (m *reconcileModel) renderStages() string {
	snap := m.tracker.Snapshot()
	var parts []string
	for _, s := range []Stage{StageScanning, StageDiffing, StageEnriching, StageSyncing} {
		switch {
		case s < snap.Stage:
			label := "● " + s.String()
			if d, ok := snap.Elapsed[s]; ok && d >= time.Second {
				label += " " + formatDuration(d)
			}
			parts = append(parts, m.styles.Done.Render(label))
		case s == snap.Stage:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *reconcileModel) renderProgress() string {
	snap := m.tracker.Snapshot()
	if snap.Total == 0 {
		if snap.Message != "" {
			return m.styles.Label.Render(snap.Stage.String() + ": " + snap.Message)
		}
		return m.styles.Label.Render(snap.Stage.String() + "...")
	}
	line := fmt.Sprintf("%s  %s", m.progressBar.ViewAs(snap.Fraction),
		m.styles.Active.Render(fmt.Sprintf("%d/%d", snap.Done, snap.Total)))
	if snap.ETA > 0 {
		line += m.styles.Label.Render("  ETA " + formatDuration(snap.ETA))
	}
	return line
}

func (m *reconcileModel) renderStatus(snap Snapshot) string {
	var parts []string
	if snap.Warnings > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", snap.Warnings)))
	}
	if snap.Errors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", snap.Errors)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *reconcileModel) renderComplete() string {
	label := func(s string) string { return m.styles.Label.Render(fmt.Sprintf("%-10s", s)) }
	value := func(n int) string { return m.styles.Active.Render(fmt.Sprint(n)) }

	lines := []string{
		m.styles.Success.Render("✓ Reconciliation complete"),
		"",
		label("New:") + value(m.stats.New),
		label("Enriched:") + value(m.stats.Enriched),
		label("Skipped:") + value(m.stats.Skipped),
		label("Duration:") + m.styles.Active.Render(formatDuration(m.stats.Duration)),
	}
	if m.stats.Missing > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d records have no file", m.stats.Missing)))
	}
	if m.stats.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d enrichment errors", m.stats.Errors)))
	}
	if m.stats.SyncErrors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d sync errors", m.stats.SyncErrors)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentDim)).
		Padding(0, 2)
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncateName(name string, maxLen int) string {
	r := []rune(name)
	if len(r) <= maxLen || maxLen < 4 {
		return name
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

var _ Renderer = (*TUIRenderer)(nil)
var _ Renderer = (*PlainRenderer)(nil)
