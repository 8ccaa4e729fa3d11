// Package prompt is the interactive single-line editor for the manual
// status override.
package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
	"github.com/Iron-Ham/codestatus/internal/util"
)

const (
	placeholder  = "custom status (leave empty to return to automatic)"
	charLimit    = 256
	defaultWidth = 60
)

// Result is the outcome of a prompt session.
type Result struct {
	// Text is the entered override, already normalized. Empty clears.
	Text string
	// Canceled is set when the user left with esc or ctrl+c. Text is
	// meaningless then and the override must not change.
	Canceled bool
}

// Cleared reports whether the result returns the status to automatic.
func (r Result) Cleared() bool {
	return !r.Canceled && r.Text == ""
}

// Model is the bubbletea model behind Run.
type Model struct {
	input   textinput.Model
	current string
	width   int

	done     bool
	canceled bool
}

// New creates a prompt showing current as the active override.
func New(current string) Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = charLimit
	ti.Width = defaultWidth - 4
	ti.Focus()

	return Model{
		input:   ti,
		current: override.Normalize(current),
		width:   defaultWidth,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 4; w > 10 {
			m.input.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done || m.canceled {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("Set status"))
	b.WriteString("\n")

	current := styles.Muted.Render("automatic")
	if m.current != "" {
		current = styles.Text.Render(util.TruncateWidth(util.SingleLine(m.current), m.width-15))
	}
	b.WriteString(styles.Label.Render("current") + current + "\n\n")

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(styles.Label.Render("preview") + m.preview() + "\n\n")
	b.WriteString(styles.Help("enter", "apply", "esc", "cancel"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) preview() string {
	text := override.Normalize(m.input.Value())
	if text == "" {
		return styles.Badge(styles.StateIdle) + styles.Muted.Render(" back to automatic")
	}
	return styles.Badge(styles.StateOverride) + " " + util.TruncateWidth(text, m.width-24)
}

// Result returns what the session produced. It is only meaningful after
// the program exited.
func (m Model) Result() Result {
	if m.canceled || !m.done {
		return Result{Canceled: true}
	}
	return Result{Text: override.Normalize(m.input.Value())}
}

// Run shows the prompt on in/out until the user confirms or cancels.
func Run(ctx context.Context, current string, in io.Reader, out io.Writer) (Result, error) {
	p := tea.NewProgram(New(current),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return Result{Canceled: true}, fmt.Errorf("run prompt: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return Result{Canceled: true}, nil
	}
	return m.Result(), nil
}

// IsTerminal reports whether f is attached to a terminal, which Run
// requires.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
