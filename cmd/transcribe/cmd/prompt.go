package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoInput = errors.New("input closed")

// prompter reads answers line by line from the command's stdin. When stdin
// is a terminal, secrets are read with echo disabled.
type prompter struct {
	in         *bufio.Reader
	out        io.Writer
	readSecret func() ([]byte, error)
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()}
	if file, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fd := int(file.Fd())
		p.readSecret = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", errNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// fill asks for value only if it is still empty.
func (p *prompter) fill(value *string, question string) error {
	if *value != "" {
		return nil
	}
	answer, err := p.ask(question)
	if err != nil {
		return err
	}
	*value = answer
	return nil
}

// fillSecret is fill without echo on a terminal. Piped input is read as a
// plain line.
func (p *prompter) fillSecret(value *string, question string) error {
	if *value != "" {
		return nil
	}
	if p.readSecret == nil {
		return p.fill(value, question)
	}
	fmt.Fprint(p.out, question)
	secret, err := p.readSecret()
	fmt.Fprintln(p.out)
	if err != nil {
		return err
	}
	*value = strings.TrimSpace(string(secret))
	return nil
}

func (p *prompter) confirm(question string) (bool, error) {
	answer, err := p.ask(yesNo(question))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
