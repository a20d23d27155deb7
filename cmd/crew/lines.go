package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/crew/pkg/config"
	"github.com/nstogner/crew/pkg/model"
	"github.com/nstogner/crew/pkg/orchestrator"
)

var (
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// linePrompter reads answers from the same input as the main loop.
type linePrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// readLine prints the user prompt and returns the next trimmed line.
func (p *linePrompter) readLine() (string, error) {
	fmt.Fprint(p.out, userStyle.Render("You: "))
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *linePrompter) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintln(p.out, agentStyle.Render("Question: ")+prompt)
	answer, err := p.readLine()
	if err != nil || strings.EqualFold(answer, "exit") {
		return "", orchestrator.ErrCancelled
	}
	return answer, nil
}

// lineObserver prints replies as they arrive.
type lineObserver struct {
	out io.Writer
}

func (o lineObserver) Reply(agent, reply string) {
	fmt.Fprintf(o.out, "%s %s\n", agentStyle.Render(capitalize(agent)+" Agent:"), reply)
}

func (o lineObserver) Retry(attempt int, failure string) {
	fmt.Fprintln(o.out, infoStyle.Render(fmt.Sprintf("[INFO] Execution failed, asking for a fix (attempt %d)", attempt)))
}

// runLines runs the plain terminal conversation: one request builds the
// project, then every further line is sent through the chain again.
func runLines(ctx context.Context, cfg *config.Config, registry *model.Registry, in io.Reader, out io.Writer) error {
	p := &linePrompter{in: bufio.NewScanner(in), out: out}
	p.in.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Please describe what you want to build:")
	request, err := p.readLine()
	if err != nil {
		return err
	}
	if request == "" {
		return errors.New("you must enter a project description")
	}

	c, err := newCrew(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Fprintln(out, infoStyle.Render("[INFO] Using sandbox directory: "+c.sandbox.Root()))

	orch := orchestrator.New(c.agents, p,
		orchestrator.WithObserver(lineObserver{out: out}),
		orchestrator.WithMaxRetries(cfg.MaxRetries),
	)

	runTurn(ctx, orch, request, out)
	fmt.Fprintln(out, "\nAgents are now online. Type 'exit' to quit.")

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\nEnding chat. Goodbye!")
			return nil
		}
		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nInput closed. Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}
		if strings.EqualFold(line, "exit") {
			fmt.Fprintln(out, "Ending chat. Goodbye!")
			return nil
		}
		if line == "" {
			continue
		}
		runTurn(ctx, orch, line, out)
	}
}

// runTurn sends one user request through the chain and reports how it ended.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, input string, out io.Writer) {
	outcome, err := orch.Run(ctx, input)
	switch {
	case errors.Is(err, orchestrator.ErrCancelled):
		fmt.Fprintln(out, infoStyle.Render("[INFO] Request cancelled."))
	case err != nil:
		fmt.Fprintln(out, errorStyle.Render("[ERROR] "+err.Error()))
	case outcome.NeedsManualIntervention:
		fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf(
			"[WARN] Maximum retries reached (%d). Manual intervention is needed.", outcome.Retries)))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
