package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/vsixctl/cli/reader"
)

type section int

const (
	sectionOverview section = iota
	sectionFiles
	sectionTasks
)

var sectionNames = []string{"Overview", "Files", "Tasks"}

// chromeHeight is the number of lines taken by tabs and help.
const chromeHeight = 5

// InspectModel is a Bubble Tea model for inspect views. Each section is
// shown in a scrollable viewport.
type InspectModel struct {
	viewType string
	data     any
	section  section
	viewport viewport.Model
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	m := InspectModel{
		viewType: viewType,
		data:     data,
		viewport: viewport.New(80, 24-chromeHeight),
	}
	m.viewport.SetContent(m.renderSection())
	return m
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.NextSection):
			m.setSection((m.section + 1) % section(len(sectionNames)))
			return m, nil
		case key.Matches(msg, keys.PrevSection):
			m.setSection((m.section + section(len(sectionNames)) - 1) % section(len(sectionNames)))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *InspectModel) setSection(s section) {
	m.section = s
	m.viewport.SetContent(m.renderSection())
	m.viewport.GotoTop()
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	help := HelpStyle.Render("tab/shift+tab switch section • ↑/↓ scroll • q quit")
	return m.renderTabs() + "\n" + m.viewport.View() + "\n" + help
}

func (m InspectModel) renderTabs() string {
	tabs := make([]string, len(sectionNames))
	for i, name := range sectionNames {
		if section(i) == m.section {
			tabs[i] = ActiveTabStyle.Render(name)
		} else {
			tabs[i] = TabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m InspectModel) renderSection() string {
	if m.viewType != ViewInspectExtension {
		return fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	data, ok := m.data.(*reader.ExtensionSummary)
	if !ok {
		return "Invalid data type for " + ViewInspectExtension
	}
	switch m.section {
	case sectionFiles:
		return renderFiles(data)
	case sectionTasks:
		return renderTasks(data)
	default:
		return renderOverview(data)
	}
}

func renderOverview(data *reader.ExtensionSummary) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Extension " + data.Publisher + "." + data.ExtensionID))
	b.WriteString("\n")

	validity := "valid"
	if !data.Valid {
		validity = "invalid"
	}
	rows := [][2]string{
		{"Source", data.Source},
		{"Manifest", data.Manifest},
		{"Version", data.Version},
		{"Name", data.Name},
		{"Public", fmt.Sprintf("%t", data.Public)},
		{"Gallery Flags", strings.Join(data.GalleryFlags, ", ")},
		{"Files", fmt.Sprintf("%d", len(data.Files))},
		{"Tasks", fmt.Sprintf("%d", len(data.Tasks))},
	}
	if data.Description != "" {
		rows = append(rows, [2]string{"Description", data.Description})
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Schema:"), ValidityStyle(data.Valid).Render(validity))
	for _, p := range data.Problems {
		b.WriteString(ErrorStyle.Render("  • "+p) + "\n")
	}
	return BoxStyle.Render(b.String())
}

func renderFiles(data *reader.ExtensionSummary) string {
	if len(data.Files) == 0 {
		return "(no files)"
	}
	var b strings.Builder
	for _, f := range data.Files {
		style := ValueStyle
		if f == data.Manifest {
			style = WarningStyle
		}
		b.WriteString(style.Render(f) + "\n")
	}
	return b.String()
}

func renderTasks(data *reader.ExtensionSummary) string {
	if len(data.Tasks) == 0 {
		return "(no task contributions)"
	}
	var b strings.Builder
	for i, t := range data.Tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		title := t.Name
		if t.FriendlyName != "" {
			title += " (" + t.FriendlyName + ")"
		}
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render(title) + "\n")
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Directory:"), ValueStyle.Render(t.Dir))
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Contribution:"), ValueStyle.Render(t.Contribution))
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("ID:"), ValueStyle.Render(t.ID))
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Version:"), ValueStyle.Render(t.Version))
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Inputs:"), ValueStyle.Render(fmt.Sprintf("%d", t.Inputs)))
	}
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit        key.Binding
	NextSection key.Binding
	PrevSection key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	NextSection: key.NewBinding(
		key.WithKeys("tab", "right", "l"),
		key.WithHelp("tab", "next section"),
	),
	PrevSection: key.NewBinding(
		key.WithKeys("shift+tab", "left", "h"),
		key.WithHelp("shift+tab", "previous section"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	return lipgloss.NewStyle().Padding(1, 2).Render(model.renderSection())
}
