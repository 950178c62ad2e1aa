package ui

import (
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

type workDoneMsg struct{ err error }

// waitModel shows a spinner until the work it waits for reports back
type waitModel struct {
	title   string
	spinner spinner.Model
	done    bool
	err     error
}

func newWaitModel(title string) waitModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return waitModel{title: title, spinner: s}
}

func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = ErrAborted
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + SubtleStyle.Render(m.title)
}

// Wait runs work while showing a spinner titled title on stderr. Without a
// terminal the spinner is skipped. Interrupting returns ErrAborted while
// work keeps running in the background.
func Wait(title string, work func() error) error {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return work()
	}

	p := tea.NewProgram(newWaitModel(title), tea.WithOutput(os.Stderr))
	go func() {
		p.Send(workDoneMsg{err: work()})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	return final.(waitModel).err
}
