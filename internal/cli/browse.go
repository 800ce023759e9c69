package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/cobra"
)

// Task list filters, cycled with tab.
const (
	filterAll = iota
	filterDue
	filterOverdue
	filterResolved
	filterCount
)

var filterNames = [filterCount]string{"all", "due", "overdue", "resolved"}

type browseModel struct {
	filter     int
	cursor     int
	showDetail bool
	width      int
	height     int

	// Data.
	rows   []taskRow
	alerts []alertSnapshot
	now    string

	// State.
	loading bool
	err     error
	load    tea.Cmd
}

// taskRow is one task instance flattened for display.
type taskRow struct {
	contact string
	id      string
	title   string
	due     string
	state   string
	form    string
	actions []string
}

type alertSnapshot struct {
	severity string
	message  string
	time     string
}

// tasksLoadedMsg carries evaluated tasks back to the model.
type tasksLoadedMsg struct {
	rows   []taskRow
	alerts []alertSnapshot
	now    string
	err    error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))

	stateDue      = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	stateOverdue  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stateResolved = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBrowseModel(load tea.Cmd) browseModel {
	return browseModel{
		filter:  filterAll,
		loading: true,
		load:    load,
	}
}

func (m browseModel) Init() tea.Cmd {
	return m.load
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.filter = (m.filter + 1) % filterCount
			m.cursor = 0
			return m, nil
		case "shift+tab":
			m.filter = (m.filter - 1 + filterCount) % filterCount
			m.cursor = 0
			return m, nil
		case "down", "j":
			if m.cursor < len(m.visible())-1 {
				m.cursor++
			}
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "enter":
			m.showDetail = !m.showDetail
			return m, nil
		case "r":
			m.loading = true
			return m, m.load
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rows = msg.rows
		m.alerts = msg.alerts
		m.now = msg.now
		m.err = nil
		if n := len(m.visible()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, nil
	}

	return m, nil
}

// visible returns the rows matching the current filter.
func (m browseModel) visible() []taskRow {
	if m.filter == filterAll {
		return m.rows
	}
	want := filterNames[m.filter]
	var rows []taskRow
	for _, r := range m.rows {
		if r.state == want {
			rows = append(rows, r)
		}
	}
	return rows
}

// selected returns the row under the cursor.
func (m browseModel) selected() (taskRow, bool) {
	rows := m.visible()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return taskRow{}, false
	}
	return rows[m.cursor], true
}

func (m browseModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" medic-conf tasks ")
	help := helpStyle.Render("↑/↓: move | enter: details | tab: filter | r: re-evaluate | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Evaluating contacts...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panelWidth := m.width - 6
	if panelWidth < 20 {
		panelWidth = 20
	}
	panels := []string{activePanelStyle.Width(panelWidth).Render(m.renderTaskList())}
	if m.showDetail {
		panels = append(panels, panelStyle.Width(panelWidth).Render(m.renderDetail()))
	}
	panels = append(panels, panelStyle.Width(panelWidth).Render(m.renderAlertsPanel()))
	body := lipgloss.JoinVertical(lipgloss.Left, panels...)

	return fmt.Sprintf("%s  %s\n\n%s\n\n%s", title, helpStyle.Render("as of "+m.now), body, help)
}

func (m browseModel) renderTaskList() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Tasks (%s)", filterNames[m.filter])))
	b.WriteString("\n")

	rows := m.visible()
	if len(rows) == 0 {
		b.WriteString("  No tasks.")
		return b.String()
	}

	for i, r := range rows {
		prefix := "  "
		line := fmt.Sprintf("%-12s %s  %s", r.contact, r.due, r.title)
		if r.title == "" {
			line = fmt.Sprintf("%-12s %s  %s", r.contact, r.due, r.id)
		}
		if i == m.cursor {
			prefix = "> "
			line = cursorStyle.Render(line)
		}
		state := styleForState(r.state).Render(fmt.Sprintf("%-8s", r.state))
		b.WriteString(fmt.Sprintf("%s%s %s\n", prefix, state, line))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d of %d task(s)", len(rows), len(m.rows)))

	return b.String()
}

func (m browseModel) renderDetail() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Details"))
	b.WriteString("\n")

	r, ok := m.selected()
	if !ok {
		b.WriteString("  Nothing selected.")
		return b.String()
	}

	fmt.Fprintf(&b, "  %-10s %s\n", "ID", r.id)
	fmt.Fprintf(&b, "  %-10s %s\n", "Contact", r.contact)
	if r.form != "" {
		fmt.Fprintf(&b, "  %-10s %s\n", "Form", r.form)
	}
	fmt.Fprintf(&b, "  %-10s %s\n", "Due", r.due)
	for _, a := range r.actions {
		fmt.Fprintf(&b, "  %-10s %s\n", "Action", a)
	}

	return b.String()
}

func (m browseModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func styleForState(state string) lipgloss.Style {
	switch state {
	case "due":
		return stateDue
	case "overdue":
		return stateOverdue
	case "resolved":
		return stateResolved
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// loadTasks returns a command evaluating the project's contacts.
func loadTasks(p *project, args []string, nowFlag string) tea.Cmd {
	return func() tea.Msg {
		now, err := p.now(nowFlag)
		if err != nil {
			return tasksLoadedMsg{err: fmt.Errorf("parsing --now: %w", err)}
		}
		program, err := p.compile(nil)
		if err != nil {
			return tasksLoadedMsg{err: err}
		}
		contacts, err := p.loadContacts(args)
		if err != nil {
			return tasksLoadedMsg{err: err}
		}
		results, err := program.EvaluateBatch(context.Background(), contacts, now, p.config.Workers)
		if err != nil {
			return tasksLoadedMsg{err: err}
		}

		msg := tasksLoadedMsg{now: now.Format("2006-01-02 15:04 MST")}
		for _, r := range results {
			for _, t := range models.Tasks(r.Emitted) {
				msg.rows = append(msg.rows, rowForTask(r.ContactID, t, taskState(t, now)))
			}
		}

		if AlertEngine != nil {
			alerts, err := AlertEngine.Evaluate()
			if err != nil {
				return tasksLoadedMsg{err: fmt.Errorf("loading alerts: %w", err)}
			}

			// Sort alerts by severity: high first, then medium, then low.
			sort.Slice(alerts, func(i, j int) bool {
				return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
			})

			for _, a := range alerts {
				msg.alerts = append(msg.alerts, alertSnapshot{
					severity: string(a.Severity),
					message:  a.Message,
					time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
				})
			}
		}

		return msg
	}
}

func rowForTask(contact string, t models.TaskInstance, state string) taskRow {
	row := taskRow{
		contact: contact,
		id:      t.ID,
		title:   t.Title,
		due:     t.Date.Format("2006-01-02"),
		state:   state,
		form:    t.Doc.Form,
	}
	for _, a := range t.Actions {
		label := a.Form
		if a.Label != "" {
			label = fmt.Sprintf("%s (%s)", a.Label, a.Form)
		}
		row.actions = append(row.actions, label)
	}
	return row
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var (
	browseProject string
	browseNow     string
)

var browseCmd = &cobra.Command{
	Use:   "browse [contact files or globs...]",
	Short: "Interactive TUI for browsing evaluated tasks",
	Long: `Evaluate the project's contacts and browse the resulting tasks in an
interactive terminal view, alongside active alerts.

Move with the arrow keys, show a task's actions with enter, cycle the
due/overdue/resolved filter with tab, re-evaluate with r, quit with q.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(browseProject)
		if err != nil {
			return err
		}
		prog := tea.NewProgram(newBrowseModel(loadTasks(p, args, browseNow)), tea.WithAltScreen())
		_, err = prog.Run()
		return err
	},
}

func init() {
	browseCmd.Flags().StringVar(&browseProject, "project", "", "Rule project directory (default from .medicconf)")
	browseCmd.Flags().StringVar(&browseNow, "now", "", "Evaluation time as RFC3339 or YYYY-MM-DD (default: now)")
	registerFlagCompletion(browseCmd, "project", completeProjectDirs)
	browseCmd.ValidArgsFunction = completeContactFiles
	rootCmd.AddCommand(browseCmd)
}
