package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/crew/pkg/config"
	"github.com/nstogner/crew/pkg/model"
	"github.com/nstogner/crew/pkg/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

type state int

const (
	stateDescribing state = iota
	stateStarting
	stateWorking
	stateAnswering
	stateIdle
)

type errMsg struct{ err error }

type crewReadyMsg struct {
	crew *crew
	orch *orchestrator.Orchestrator
}

type replyMsg struct {
	agent string
	text  string
}

type retryMsg struct {
	attempt int
	failure string
}

type questionMsg struct {
	prompt string
	answer chan string
}

type doneMsg struct {
	outcome *orchestrator.Outcome
	err     error
}

// bridge carries orchestrator callbacks into the bubbletea event loop.
type bridge struct {
	ctx    context.Context
	events chan tea.Msg
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.ctx.Done():
	}
}

func (b *bridge) Reply(agent, reply string) {
	b.send(replyMsg{agent: agent, text: reply})
}

func (b *bridge) Retry(attempt int, failure string) {
	b.send(retryMsg{attempt: attempt, failure: failure})
}

// Ask blocks until the user answers in the UI. A closed answer channel
// means the user cancelled.
func (b *bridge) Ask(ctx context.Context, prompt string) (string, error) {
	answer := make(chan string, 1)
	b.send(questionMsg{prompt: prompt, answer: answer})
	select {
	case a, ok := <-answer:
		if !ok {
			return "", orchestrator.ErrCancelled
		}
		return a, nil
	case <-ctx.Done():
		return "", orchestrator.ErrCancelled
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

type tuiModel struct {
	ctx      context.Context
	cfg      *config.Config
	registry *model.Registry
	bridge   *bridge

	crew    *crew
	orch    *orchestrator.Orchestrator
	request string
	answer  chan string

	state  state
	lines  []string
	width  int
	height int
	err    error

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func newTUIModel(ctx context.Context, cfg *config.Config, registry *model.Registry) tuiModel {
	ta := textarea.New()
	ta.Placeholder = "Describe what you want to build..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Please describe what you want to build.")

	// The light style avoids terminal queries that leak into the input.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return tuiModel{
		ctx:      ctx,
		cfg:      cfg,
		registry: registry,
		bridge:   &bridge{ctx: ctx, events: make(chan tea.Msg, 16)},
		state:    stateDescribing,
		viewport: vp,
		textarea: ta,
		renderer: r,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.bridge.events))
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.err = nil
			return m.submit()
		}

	case crewReadyMsg:
		m.crew = msg.crew
		m.orch = msg.orch
		m.note(fmt.Sprintf("[INFO] Using sandbox directory: %s", m.crew.sandbox.Root()))
		m.state = stateWorking
		cmds = append(cmds, m.runCmd(m.request))

	case replyMsg:
		m.lines = append(m.lines, agentStyle.Render(capitalize(msg.agent)+" Agent:")+"\n"+m.render(msg.text))
		m.refresh()
		cmds = append(cmds, waitForEvent(m.bridge.events))

	case retryMsg:
		m.note(fmt.Sprintf("[INFO] Execution failed, asking for a fix (attempt %d)", msg.attempt))
		cmds = append(cmds, waitForEvent(m.bridge.events))

	case questionMsg:
		m.answer = msg.answer
		m.state = stateAnswering
		m.lines = append(m.lines, questionStyle.Render("Question: ")+msg.prompt)
		m.textarea.Placeholder = "Answer the question, or /cancel..."
		m.refresh()
		cmds = append(cmds, waitForEvent(m.bridge.events))

	case doneMsg:
		m.state = stateIdle
		m.textarea.Placeholder = "Ask for changes, or /exit..."
		switch {
		case errors.Is(msg.err, orchestrator.ErrCancelled):
			m.note("[INFO] Request cancelled.")
		case msg.err != nil:
			m.err = msg.err
		case msg.outcome.NeedsManualIntervention:
			m.err = fmt.Errorf("maximum retries reached (%d), manual intervention is needed", msg.outcome.Retries)
		}

	case errMsg:
		m.err = msg.err
		if m.state == stateStarting {
			m.state = stateDescribing
			m.lines = nil
			m.refresh()
		}
	}

	return m, tea.Batch(cmds...)
}

// submit handles Enter according to what the conversation is waiting for.
func (m tuiModel) submit() (tea.Model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()

	if v == "/exit" {
		return m, tea.Quit
	}

	switch m.state {
	case stateDescribing:
		if v == "" {
			m.err = errors.New("you must enter a project description")
			return m, nil
		}
		m.state = stateStarting
		m.request = v
		m.lines = []string{userStyle.Render("You: ") + v}
		m.refresh()
		return m, m.startCmd()

	case stateAnswering:
		answer := m.answer
		m.answer = nil
		m.state = stateWorking
		if v == "/cancel" {
			close(answer)
			return m, nil
		}
		m.lines = append(m.lines, userStyle.Render("You: ")+v)
		m.refresh()
		answer <- v
		return m, nil

	case stateIdle:
		if v == "" {
			return m, nil
		}
		m.state = stateWorking
		m.lines = append(m.lines, userStyle.Render("You: ")+v)
		m.refresh()
		return m, m.runCmd(v)
	}
	return m, nil
}

func (m tuiModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		c, err := newCrew(m.ctx, m.cfg, m.registry)
		if err != nil {
			return errMsg{err}
		}
		orch := orchestrator.New(c.agents, m.bridge,
			orchestrator.WithObserver(m.bridge),
			orchestrator.WithMaxRetries(m.cfg.MaxRetries),
		)
		return crewReadyMsg{crew: c, orch: orch}
	}
}

func (m tuiModel) runCmd(input string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		out, err := orch.Run(m.ctx, input)
		return doneMsg{outcome: out, err: err}
	}
}

func (m *tuiModel) note(s string) {
	m.lines = append(m.lines, infoStyle.Render(s))
	m.refresh()
}

func (m *tuiModel) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m tuiModel) render(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}

func (m tuiModel) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	status := ""
	switch m.state {
	case stateStarting:
		status = "Starting agents..."
	case stateWorking:
		status = "Agents are working..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("crew"),
		"",
		m.viewport.View(),
		infoStyle.Render(status),
		errorView,
		m.textarea.View(),
	)
}

// runTUI runs the conversation in a full-screen terminal UI.
func runTUI(ctx context.Context, cfg *config.Config, registry *model.Registry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTUIModel(ctx, cfg, registry), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	cancel()

	if m, ok := final.(tuiModel); ok && m.crew != nil {
		if cerr := m.crew.Close(); cerr != nil {
			slog.Error("Failed to close run", "error", cerr)
		}
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
