// Package prompt supplies the reference-voice path and the sentences to be
// synthesized. Interactive terminals get a readline editor with history;
// pipes and redirected stdin fall back to a line scanner.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Operator-facing questions.
const (
	VoiceQuestion = "Reference voice: enter an audio filepath of a voice to be cloned (mp3, wav, m4a, flac, ...):"
	TextQuestion  = "Write a sentence (+-20 words) to be synthesized:"
)

// ErrInputClosed is returned when the operator closes the input (Ctrl-D,
// Ctrl-C or end of a piped stream).
var ErrInputClosed = errors.New("prompt: input closed")

// Source answers a question with one line of input.
type Source interface {
	// Read shows question and returns the next line without its trailing
	// newline. It returns [ErrInputClosed] when no more input will arrive.
	Read(ctx context.Context, question string) (string, error)
}

// StripQuotes removes every single and double quote from s. Paths dragged
// into a terminal are often quoted.
func StripQuotes(s string) string {
	return quoteStripper.Replace(s)
}

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "")

// ── Readline ─────────────────────────────────────────────────────────────────

// Readline reads from the terminal with line editing and history.
type Readline struct {
	rl *readline.Instance
}

// NewReadline opens an interactive editor. historyFile may be empty to
// disable history.
func NewReadline(historyFile string) (*Readline, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("prompt: init readline: %w", err)
	}
	return &Readline{rl: rl}, nil
}

// Read implements [Source]. Cancelling ctx closes the editor, so a Readline
// is unusable after an interrupted Read.
func (r *Readline) Read(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { _ = r.rl.Close() })
	defer stop()

	fmt.Fprintln(r.rl.Stdout(), question)
	line, err := r.rl.Readline()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("prompt: read line: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Close restores the terminal.
func (r *Readline) Close() error { return r.rl.Close() }

// ── Scanner ──────────────────────────────────────────────────────────────────

// Scanner reads lines from a plain reader. It is used when stdin is not a
// terminal or readline cannot be initialised.
//
// A single goroutine owns the reader, started on the first Read, so a
// cancelled Read returns at once. It stays blocked on the reader until the
// next line or end of input.
type Scanner struct {
	in  io.Reader
	out io.Writer

	start sync.Once
	lines chan string
	err   error // set before lines is closed
}

// NewScanner returns a Scanner printing questions to out and reading answers
// from in.
func NewScanner(in io.Reader, out io.Writer) *Scanner {
	return &Scanner{in: in, out: out, lines: make(chan string)}
}

func (s *Scanner) scan() {
	sc := bufio.NewScanner(s.in)
	for sc.Scan() {
		s.lines <- sc.Text()
	}
	s.err = ErrInputClosed
	if err := sc.Err(); err != nil {
		s.err = fmt.Errorf("prompt: scan: %w", err)
	}
	close(s.lines)
}

// Read implements [Source].
func (s *Scanner) Read(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintln(s.out, question)
	s.start.Do(func() { go s.scan() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", s.err
		}
		return strings.TrimSpace(line), nil
	}
}

// ── Literal ──────────────────────────────────────────────────────────────────

// Literal answers the first question with a fixed value and delegates every
// later question to next.
type Literal struct {
	value string
	used  bool
	next  Source
}

// Once returns a Source that yields value for the first Read and then reads
// from next. An empty value delegates immediately.
func Once(value string, next Source) *Literal {
	return &Literal{value: value, used: value == "", next: next}
}

// Read implements [Source].
func (l *Literal) Read(ctx context.Context, question string) (string, error) {
	if !l.used {
		l.used = true
		return l.value, nil
	}
	if l.next == nil {
		return "", ErrInputClosed
	}
	return l.next.Read(ctx, question)
}

var (
	_ Source = (*Readline)(nil)
	_ Source = (*Scanner)(nil)
	_ Source = (*Literal)(nil)
)
