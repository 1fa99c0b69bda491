package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/mabhi256/heaprecorder/internal/recorder"
	"github.com/mabhi256/heaprecorder/internal/simhost"
	"github.com/mabhi256/heaprecorder/internal/simscript"
	"github.com/mabhi256/heaprecorder/utils"
)

var watchPollMS int

var watchCmd = &cobra.Command{
	Use:   "watch [script-file]",
	Short: "Replay an allocation script live, with a trend chart of recorder stats",
	Long: `watch drives the same simulated host and scripted allocation workload as
record, but at wall-clock pace, and renders a live terminal dashboard of the
recorder's EWMA liveness statistics while it runs.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".yaml", ".yml"}, false),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := simscript.Load(args[0])
		if err != nil {
			return err
		}

		model := newWatchModel(script, time.Duration(watchPollMS)*time.Millisecond)
		program := tea.NewProgram(model, tea.WithAltScreen())
		_, err = program.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVarP(&watchPollMS, "poll-ms", "p", 250, "how often to refresh the dashboard, in milliseconds")
}

// watchKeyMap mirrors the teacher dashboard's tab/refresh/quit keybinding
// conventions, with filtering and stack-copy added for this domain.
type watchKeyMap struct {
	Filter key.Binding
	Escape key.Binding
	Copy   key.Binding
	Quit   key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Filter, k.Copy, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Filter, k.Escape, k.Copy, k.Quit}}
}

var watchKeys = watchKeyMap{
	Filter: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter by class")),
	Escape: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear filter")),
	Copy:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy top stack")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg simscript.Tick
type doneMsg struct{ err error }

type classRow struct {
	class string
	count int
}

type watchModel struct {
	host   *simhost.Host
	rec    *recorder.Recorder
	script *simscript.Script

	ticks  chan simscript.Tick
	cancel context.CancelFunc
	poll   time.Duration

	ewmaHistory []float64
	lastStats   map[string]float64
	classCounts []classRow

	filtering   bool
	filterInput string
	copyStatus  string
	finished    bool
	err         error

	width, height int
	help          help.Model
}

func newWatchModel(script *simscript.Script, poll time.Duration) *watchModel {
	host := simhost.New()
	rec := recorder.New(host)

	return &watchModel{
		host:   host,
		rec:    rec,
		script: script,
		ticks:  make(chan simscript.Tick, 8),
		poll:   poll,
		help:   help.New(),
	}
}

func (m *watchModel) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	runErr := make(chan error, 1)
	go func() {
		runErr <- simscript.RunLive(ctx, m.host, m.rec, m.script, m.poll, m.ticks)
	}()

	return tea.Batch(waitForTick(m.ticks), waitForDone(runErr))
}

func waitForTick(ticks <-chan simscript.Tick) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ticks
		if !ok {
			return nil
		}
		return tickMsg(t)
	}
}

func waitForDone(errc <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-errc}
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.lastStats = msg.Stats
		m.ewmaHistory = append(m.ewmaHistory, msg.Stats["lifetime_ewma_objects_alive"])
		if len(m.ewmaHistory) > 120 {
			m.ewmaHistory = m.ewmaHistory[len(m.ewmaHistory)-120:]
		}
		m.refreshClassCounts()
		return m, waitForTick(m.ticks)

	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "esc":
				m.filtering = false
				m.filterInput = ""
			case "enter":
				m.filtering = false
			case "backspace":
				if len(m.filterInput) > 0 {
					m.filterInput = m.filterInput[:len(m.filterInput)-1]
				}
			default:
				if len(msg.String()) == 1 {
					m.filterInput += msg.String()
				}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, watchKeys.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Filter):
			m.filtering = true
			return m, nil
		case key.Matches(msg, watchKeys.Escape):
			m.filterInput = ""
			return m, nil
		case key.Matches(msg, watchKeys.Copy):
			m.copyTopStack()
			return m, nil
		}
	}
	return m, nil
}

// refreshClassCounts rebuilds the per-class live-object breakdown shown in
// the dashboard, by walking a fresh iteration snapshot.
func (m *watchModel) refreshClassCounts() {
	m.host.Lock()
	defer m.host.Unlock()

	if err := m.rec.PrepareIteration(); err != nil {
		return
	}
	defer m.rec.FinishIteration()

	counts := make(map[string]int)
	m.rec.ForEachLiveObject(func(ir recorder.IterationRecord) bool {
		class := "<unknown>"
		if ir.ObjectData.Class != nil {
			class = *ir.ObjectData.Class
		}
		counts[class]++
		return true
	})

	rows := make([]classRow, 0, len(counts))
	for class, n := range counts {
		rows = append(rows, classRow{class: class, count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
	m.classCounts = rows
}

// copyTopStack copies the allocation stack of the most-populous live class
// to the clipboard, for pasting into an issue or chat.
func (m *watchModel) copyTopStack() {
	if len(m.classCounts) == 0 {
		m.copyStatus = "nothing to copy"
		return
	}
	target := m.classCounts[0].class

	m.host.Lock()
	if err := m.rec.PrepareIteration(); err != nil {
		m.host.Unlock()
		m.copyStatus = "copy failed: " + err.Error()
		return
	}
	var stack string
	m.rec.ForEachLiveObject(func(ir recorder.IterationRecord) bool {
		class := "<unknown>"
		if ir.ObjectData.Class != nil {
			class = *ir.ObjectData.Class
		}
		if class != target {
			return true
		}
		for _, loc := range ir.Locations {
			stack += fmt.Sprintf("%s (%s:%d)\n", loc.FunctionName, loc.FileName, loc.Line)
		}
		return false
	})
	m.rec.FinishIteration()
	m.host.Unlock()

	if err := clipboard.WriteAll(stack); err != nil {
		m.copyStatus = "clipboard unavailable: " + err.Error()
		return
	}
	m.copyStatus = fmt.Sprintf("copied stack for %s", target)
}

// filteredClassCounts applies the fuzzy filter query, if any, to the class
// breakdown, ranking matches by fuzzy.Find's score.
func (m *watchModel) filteredClassCounts() []classRow {
	if m.filterInput == "" {
		return m.classCounts
	}

	names := make([]string, len(m.classCounts))
	for i, row := range m.classCounts {
		names[i] = row.class
	}

	matches := fuzzy.Find(m.filterInput, names)
	rows := make([]classRow, len(matches))
	for i, match := range matches {
		rows[i] = m.classCounts[match.Index]
	}
	return rows
}

func (m *watchModel) View() string {
	if m.width == 0 {
		return ""
	}

	header := utils.TitleStyle.Render("heaprecorder watch")
	if m.finished {
		status := utils.GoodStyle.Render("script finished")
		if m.err != nil {
			status = utils.CriticalStyle.Render("error: " + m.err.Error())
		}
		header = lipgloss.JoinHorizontal(lipgloss.Left, header, "  ", status)
	}

	var sections []string
	sections = append(sections, header)

	if m.lastStats != nil {
		sections = append(sections, m.renderStats())
	}

	sections = append(sections, m.renderClassTable())

	if m.filtering {
		sections = append(sections, utils.InfoStyle.Render("filter: "+m.filterInput+"█"))
	} else if m.filterInput != "" {
		sections = append(sections, utils.MutedStyle.Render("filter: "+m.filterInput+" (esc to clear)"))
	}

	if m.copyStatus != "" {
		sections = append(sections, utils.MutedStyle.Render(m.copyStatus))
	}

	sections = append(sections, m.help.View(watchKeys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *watchModel) renderStats() string {
	alive := m.lastStats["lifetime_ewma_objects_alive"]
	dead := m.lastStats["lifetime_ewma_objects_dead"]
	sparkWidth := min(60, max(10, m.width-20))

	line := fmt.Sprintf("ewma alive: %.1f   ewma dead: %.1f", alive, dead)
	spark := utils.CreateSparkline(m.ewmaHistory, sparkWidth)
	return lipgloss.JoinVertical(lipgloss.Left, line, utils.GoodStyle.Render(spark))
}

func (m *watchModel) renderClassTable() string {
	rows := m.filteredClassCounts()
	if len(rows) == 0 {
		return utils.MutedStyle.Render("no live objects")
	}

	total := 0
	for _, row := range rows {
		total += row.count
	}

	var lines []string
	lines = append(lines, utils.InfoStyle.Render(fmt.Sprintf("%-20s %6s  %s", "CLASS", "LIVE", "SHARE")))
	for i, row := range rows {
		if i >= 15 {
			lines = append(lines, utils.MutedStyle.Render(fmt.Sprintf("... and %d more", len(rows)-i)))
			break
		}
		class := utils.TruncateString(row.class, 20)
		gauge := utils.CreateGauge(float64(row.count), 0, float64(total), 20, utils.GoodColor)
		lines = append(lines, fmt.Sprintf("%-20s %6d  %s", class, row.count, gauge))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
