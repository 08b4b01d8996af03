// SPDX-License-Identifier: MIT

// Package recovery provides the daemon-side pieces of the recovery path: a
// terminal prompt for the recovery choices, the host dev-support surface the
// recovery module hooks into, and a reloader that re-executes the daemon.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrPromptCancelled is returned when the user dismisses the prompt.
var ErrPromptCancelled = errors.New("recovery prompt cancelled")

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().PaddingLeft(0).Foreground(lipgloss.Color("170")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Faint(true).MarginTop(1)
)

// TerminalPrompter shows a modal list on a terminal and returns the chosen index.
type TerminalPrompter struct {
	In  io.Reader // defaults to os.Stdin
	Out io.Writer // defaults to os.Stdout
}

// Prompt blocks until an option is chosen, the prompt is dismissed, or ctx ends.
func (p TerminalPrompter) Prompt(ctx context.Context, title string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("recovery prompt: no options")
	}
	in, out := p.In, p.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	prog := tea.NewProgram(
		newPromptModel(title, options),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("recovery prompt: %w", err)
	}
	m, ok := final.(promptModel)
	if !ok || m.cancelled || m.chosen < 0 {
		return -1, ErrPromptCancelled
	}
	return m.chosen, nil
}

type promptModel struct {
	title     string
	options   []string
	cursor    int
	chosen    int
	cancelled bool
}

func newPromptModel(title string, options []string) promptModel {
	return promptModel{title: title, options: options, chosen: -1}
}

func (m promptModel) Init() tea.Cmd { return nil }

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k", "shift+tab":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.chosen = m.cursor
		return m, tea.Quit
	default:
		// digits pick an option directly
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if idx := int(s[0] - '1'); idx < len(m.options) {
				m.cursor, m.chosen = idx, idx
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m promptModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for i, opt := range m.options {
		line := fmt.Sprintf("%d. %s", i+1, opt)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("↑/↓ select • enter confirm • esc cancel"))
	b.WriteString("\n")
	return b.String()
}
