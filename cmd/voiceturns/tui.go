package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/muesli/reflow/wordwrap"
)

const (
	maxLogLines = 8
	levelWidth  = 20
)

type controls interface {
	StartListening() bool
	StopAll() bool
	NewConversation() (string, error)
}

type (
	transitionMsg struct {
		state string
		event events.Kind
	}
	visualMsg     orchestration.VisualState
	logMsg        string
	levelMsg      float64
	transcriptMsg string
	answerMsg     string
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	logStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	visualStyles = map[orchestration.VisualState]lipgloss.Style{
		orchestration.VisualPassive:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		orchestration.VisualListening: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		orchestration.VisualThinking:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		orchestration.VisualSpeaking:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

type model struct {
	controls controls

	spinner  spinner.Model
	viewport viewport.Model
	width    int

	state      string
	lastEvent  events.Kind
	visual     orchestration.VisualState
	level      float64
	transcript string
	answer     strings.Builder
	logs       []string
}

func newModel(controls controls) *model {
	return &model{
		controls: controls,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport: viewport.New(80, 10),
		width:    80,
		state:    orchestration.InitialSnapshot().String(),
		visual:   orchestration.VisualPassive,
	}
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.controls.StartListening()
		case "s":
			m.controls.StopAll()
		case "n":
			id, err := m.controls.NewConversation()
			if err != nil {
				m.addLog(fmt.Sprintf("failed to start a new conversation: %v", err))
			} else {
				m.transcript = ""
				m.answer.Reset()
				m.addLog("new conversation " + id)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case transitionMsg:
		m.state = msg.state
		m.lastEvent = msg.event
	case visualMsg:
		m.visual = orchestration.VisualState(msg)
	case logMsg:
		m.addLog(string(msg))
	case levelMsg:
		m.level = float64(msg)
	case transcriptMsg:
		m.transcript = string(msg)
		m.answer.Reset()
	case answerMsg:
		m.answer.WriteString(string(msg))
	}

	m.viewport.SetContent(m.conversation())
	m.viewport.GotoBottom()
	return m, nil
}

func (m *model) addLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *model) conversation() string {
	width := max(m.width-2, 20)
	var b strings.Builder
	if m.transcript != "" {
		b.WriteString(userStyle.Render(wordwrap.String("you: "+m.transcript, width)))
		b.WriteString("\n\n")
	}
	if m.answer.Len() > 0 {
		b.WriteString(wordwrap.String(m.answer.String(), width))
		b.WriteString("\n\n")
	}
	for _, line := range m.logs {
		b.WriteString(logStyle.Render(wordwrap.String(line, width)))
		b.WriteString("\n")
	}
	return b.String()
}

func levelBar(level float64) string {
	filled := int(level*levelWidth + 0.5)
	filled = min(max(filled, 0), levelWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", levelWidth-filled) + "]"
}

func (m *model) View() string {
	indicator := " "
	if m.visual == orchestration.VisualThinking || m.visual == orchestration.VisualSpeaking {
		indicator = m.spinner.View()
	}

	style, ok := visualStyles[m.visual]
	if !ok {
		style = lipgloss.NewStyle()
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("voiceturns "),
		indicator+" ",
		style.Render(string(m.visual)),
		"  "+levelBar(m.level),
	)
	status := helpStyle.Render(fmt.Sprintf("%s  last event: %s", m.state, m.lastEvent))
	help := helpStyle.Render("space listen • s stop • n new conversation • q quit")

	return strings.Join([]string{header, status, "", m.viewport.View(), help}, "\n")
}
