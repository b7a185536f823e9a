// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptyInput is returned when the user submits an empty answer.
var ErrEmptyInput = errors.New("no input given")

// Prompter asks questions on Out and reads answers from In.
// Secrets are read without echo when In is the process's terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewPrompter returns a prompter on stdin and stdout.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

func (p *Prompter) lines() *bufio.Reader {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	return p.reader
}

// Ask prints label and returns the trimmed line typed.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	line, err := p.lines().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ErrEmptyInput
	}
	return line, nil
}

// AskSecret prints label and reads a value without echo when possible.
// The prompt line is cleared afterwards on a terminal.
func (p *Prompter) AskSecret(label string) (string, error) {
	f, ok := p.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.Ask(label)
	}

	fmt.Fprint(p.Out, label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	ClearPreviousLines(p.Out, len(label))
	if len(b) == 0 {
		return "", ErrEmptyInput
	}
	return string(b), nil
}
