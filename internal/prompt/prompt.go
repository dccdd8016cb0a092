// Package prompt reads the chat client's interactive answers and message
// lines from a terminal or a pipe.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Mode is the client's chat encoding.
type Mode int

const (
	// Raw sends each line as plain bytes.
	Raw Mode = iota
	// Packet wraps each line in a framed JSON packet carrying the client id.
	Packet
)

func (m Mode) String() string {
	if m == Packet {
		return "packet"
	}
	return "raw"
}

// ParseMode converts a config value ("packet" or "raw") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "packet":
		return Packet, nil
	case "raw":
		return Raw, nil
	}
	return Raw, fmt.Errorf("unknown chat mode %q", s)
}

// Prompter asks questions on out and reads answers line by line from in.
// Questions are only asked when in is a terminal; otherwise the question
// methods return their defaults without reading, so piped input is all
// message text.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	// interactive is true when in is a terminal.
	interactive bool
}

// Option configures a [Prompter].
type Option func(*Prompter)

// WithInteractive overrides terminal detection.
func WithInteractive(interactive bool) Option {
	return func(p *Prompter) { p.interactive = interactive }
}

// New builds a Prompter. in counts as interactive when it is an *os.File
// attached to a terminal.
func New(in io.Reader, out io.Writer, opts ...Option) *Prompter {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	p := &Prompter{in: bufio.NewReader(in), out: out, interactive: interactive}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interactive reports whether questions are asked.
func (p *Prompter) Interactive() bool {
	return p.interactive
}

// Line reads the next line without its line ending. A final line without a
// newline is returned; after that Line returns io.EOF.
func (p *Prompter) Line() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return strings.TrimRight(s, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Ask writes question and returns the answer line.
func (p *Prompter) Ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	return p.Line()
}

// ChatMode asks which encoding to use: "1" selects [Packet], anything else
// [Raw]. Without a terminal it returns [Raw] and reads nothing.
func (p *Prompter) ChatMode() (Mode, error) {
	if !p.interactive {
		return Raw, nil
	}
	answer, err := p.Ask("Chat Type [1 for msg_packet / 2 for string]: ")
	if err != nil {
		return Raw, err
	}
	if strings.TrimSpace(answer) == "1" {
		return Packet, nil
	}
	return Raw, nil
}

// ClientID asks for the sender id used in packet mode. An empty answer, end
// of input, or a non-terminal input yields fallback.
func (p *Prompter) ClientID(fallback string) (string, error) {
	if !p.interactive {
		fmt.Fprintf(p.out, "Logged in as %s!\n", fallback)
		return fallback, nil
	}
	answer, err := p.Ask("Enter client id: ")
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	id := strings.TrimSpace(answer)
	if id == "" {
		id = fallback
	}
	fmt.Fprintf(p.out, "Logged in as %s!\n", id)
	return id, nil
}
