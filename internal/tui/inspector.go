// Package tui provides a read-only interactive browser over a schedule's
// stages.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JThr3e/heterocl/internal/render"
	"github.com/JThr3e/heterocl/internal/schedule"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	detailStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type stageItem struct {
	stage *schedule.Stage
}

func (i stageItem) Title() string { return i.stage.Name() }

func (i stageItem) Description() string {
	desc := i.stage.AttachType.String()
	if i.stage.Scope != "" {
		desc += " @" + i.stage.Scope
	}
	if i.stage.IsOutput {
		desc += " output"
	}
	return desc
}

func (i stageItem) FilterValue() string { return i.stage.Name() }

// Model is the bubbletea model of the schedule inspector.
type Model struct {
	sch      *schedule.Schedule
	list     list.Model
	renderer *render.Renderer
	width    int
	height   int
}

// NewModel builds an inspector over the schedule.
func NewModel(sch *schedule.Schedule) Model {
	items := make([]list.Item, len(sch.Stages))
	for i, s := range sch.Stages {
		items[i] = stageItem{stage: s}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "stages"
	l.SetShowHelp(false)
	return Model{
		sch:      sch,
		list:     l,
		renderer: render.New(true),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width/3, msg.Height-2)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	detail := ""
	if item, ok := m.list.SelectedItem().(stageItem); ok {
		detail = m.renderer.RenderStage(item.stage)
		detail += fmt.Sprintf("\nrelations: %d  all vars: %d  leaves: %d",
			len(item.stage.Relations), len(item.stage.AllIterVars), len(item.stage.LeafIterVars))
	}
	left := m.list.View()
	right := detailStyle.Render(detail)
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("schedule inspector"),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
	)
}

// Run opens the inspector and blocks until the user quits.
func Run(sch *schedule.Schedule) error {
	p := tea.NewProgram(NewModel(sch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
