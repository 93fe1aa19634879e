package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jmcleod/masterkeep/internal/util"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompter reads secrets without echo from a terminal, or one per line from
// any other input.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	w      io.Writer
}

func newPrompter(in io.Reader, w io.Writer) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in), w: w}
}

func (p *prompter) terminal() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	return int(f.Fd()), true
}

// Secret prompts for one secret. Empty input is an error.
func (p *prompter) Secret(label string) (string, error) {
	if _, err := fmt.Fprint(p.w, label+": "); err != nil {
		return "", err
	}

	var s string
	if fd, ok := p.terminal(); ok {
		b, err := readPassword(fd)
		fmt.Fprintln(p.w)
		if err != nil {
			return "", err
		}
		s = string(b)
		util.WipeBytes(b)
	} else {
		line, err := p.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		s = strings.TrimRight(line, "\r\n")
	}

	if s == "" {
		return "", fmt.Errorf("%s must not be empty", strings.ToLower(label))
	}
	return s, nil
}

// NewSecret prompts for a secret and, on a terminal, asks for it again.
func (p *prompter) NewSecret(label string) (string, error) {
	s, err := p.Secret(label)
	if err != nil {
		return "", err
	}
	if _, ok := p.terminal(); !ok {
		return s, nil
	}
	again, err := p.Secret("Repeat " + strings.ToLower(label))
	if err != nil {
		return "", err
	}
	if !util.EqualStrings(s, again) {
		return "", errors.New("entries do not match")
	}
	return s, nil
}
