package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/js-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxEntries bounds the transcript kept on screen.
const maxEntries = 200

type entry struct {
	input  string
	output string
	result string
	err    error
}

type interactiveModel struct {
	ctx      context.Context
	rt       *runtime.Runtime
	console  *captureBuffer
	input    textinput.Model
	entries  []entry
	history  []string
	histIdx  int
	busy     bool
	startup  string
	quitting bool
}

type evalResultMsg struct {
	entry entry
}

func newInteractiveModel(ctx context.Context, rt *runtime.Runtime, console *captureBuffer) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("> ")
	ti.Placeholder = "expression"
	ti.Width = 80
	ti.Focus()

	return &interactiveModel{
		ctx:     ctx,
		rt:      rt,
		console: console,
		input:   ti,
		startup: console.Drain(),
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "ctrl+l":
			m.entries = nil
			m.startup = ""
			return m, nil

		case "up":
			if len(m.history) > 0 && m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy {
				return m, nil
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.busy = true
			return m, m.evaluate(src)
		}

	case evalResultMsg:
		m.busy = false
		m.entries = append(m.entries, msg.entry)
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// evaluate runs src off the UI goroutine. Promise results are awaited.
func (m *interactiveModel) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		e := entry{input: src}
		v, err := m.rt.EvalAsync(m.ctx, src, "<repl>")
		if err == nil {
			e.result, err = render(m.ctx, m.rt, v)
		}
		e.err = err
		e.output = strings.TrimRight(m.console.Drain(), "\n")
		return evalResultMsg{entry: e}
	}
}

func (m *interactiveModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("JS Runtime"))
	b.WriteString(" ")
	b.WriteString(m.rt.CoreNamespace())
	b.WriteString("\n\n")

	if s := strings.TrimRight(m.startup, "\n"); s != "" {
		b.WriteString(outputStyle.Render(s))
		b.WriteString("\n")
	}

	for _, e := range m.entries {
		b.WriteString(promptStyle.Render("> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		if e.output != "" {
			b.WriteString(outputStyle.Render(e.output))
			b.WriteString("\n")
		}
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
			b.WriteString("\n")
		case e.result != "":
			b.WriteString(resultStyle.Render(e.result))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(helpStyle.Render("evaluating..."))
	} else {
		b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • ctrl+l clear • esc quit"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, rt *runtime.Runtime, console *captureBuffer) error {
	p := tea.NewProgram(newInteractiveModel(ctx, rt, console), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
