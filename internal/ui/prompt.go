package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the person at the terminal gives up on a prompt
var ErrAborted = errors.New("prompt aborted")

// Option is one choice of a Select prompt
type Option struct {
	Label string
	Value string
}

// Prompter asks the person at the terminal for answers
type Prompter interface {
	Input(title string, secret bool) (string, error)
	Select(title string, options []Option) (string, error)
}

// FormPrompter prompts with huh forms. Accessible mode reads plain lines,
// which also works when stdin is not a terminal.
type FormPrompter struct {
	Accessible bool
}

// NewFormPrompter picks accessible mode when stdin is not a terminal
func NewFormPrompter() *FormPrompter {
	fd := os.Stdin.Fd()
	return &FormPrompter{Accessible: !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)}
}

func (p *FormPrompter) Input(title string, secret bool) (string, error) {
	var value string
	input := huh.NewInput().
		Title(title).
		Value(&value)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	form := huh.NewForm(huh.NewGroup(input)).WithAccessible(p.Accessible)
	if err := form.Run(); err != nil {
		return "", promptError(err)
	}
	return value, nil
}

func (p *FormPrompter) Select(title string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("nothing to choose for %q", title)
	}
	if len(options) == 1 {
		return options[0].Value, nil
	}

	opts := make([]huh.Option[string], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value)
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(opts...).
				Value(&selected),
		),
	).WithAccessible(p.Accessible)

	if err := form.Run(); err != nil {
		return "", promptError(err)
	}
	return selected, nil
}

func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return fmt.Errorf("prompt failed: %w", err)
}
