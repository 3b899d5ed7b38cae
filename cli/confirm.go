package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/dbmig/db/migrator"
)

// NewConfirmer returns a migrator.Confirmer that asks the operator on the
// given streams. If both streams are terminals, an interactive prompt is
// shown. Otherwise, a yes/no answer is read from a line of stdin.
func NewConfirmer(stdin io.Reader, stdout, stderr io.Writer) migrator.Confirmer {
	in, inOK := stdin.(terminal.FileReader)
	out, outOK := stdout.(terminal.FileWriter)
	if inOK && outOK && isatty.IsTerminal(in.Fd()) && isatty.IsTerminal(out.Fd()) {
		return &surveyConfirmer{in: in, out: out, err: stderr}
	}

	return &lineConfirmer{in: bufio.NewReader(stdin), out: stdout}
}

type surveyConfirmer struct {
	in  terminal.FileReader
	out terminal.FileWriter
	err io.Writer
}

func (c *surveyConfirmer) Confirm(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message}, &ok,
		survey.WithStdio(c.in, c.out, c.err))
	if errors.Is(err, terminal.InterruptErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed prompting for confirmation: %w", err)
	}

	return ok, nil
}

// lineConfirmer reads the answer from a line of input. An empty answer, or
// the end of the input, means no.
type lineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (c *lineConfirmer) Confirm(message string) (bool, error) {
	for {
		if _, err := fmt.Fprintf(c.out, "%s (yes|no) [no]:", message); err != nil {
			return false, fmt.Errorf("failed writing prompt: %w", err)
		}

		line, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed reading answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
			}
			return false, nil
		}

		if errors.Is(err, io.EOF) {
			return false, nil
		}
	}
}
