package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"
	"github.com/lijx3643/yash/internal/job"
)

const pipeToken = "|"

var (
	ErrEmptyCommand          = errors.New("empty command")
	ErrTooManyPipes          = errors.New("only one pipe is supported")
	ErrMissingRedirectTarget = errors.New("missing redirection target")
)

// LimitError is returned when a line exceeds the tokenizer limits.
type LimitError struct {
	What  string
	Limit int
	Got   int
}

func (e LimitError) Error() string {
	return fmt.Sprintf("%s: got %d, limit is %d", e.What, e.Got, e.Limit)
}

// Limits bounds the size of a line. A zero field disables that limit.
type Limits struct {
	MaxTokens      int
	MaxTokenLength int
}

type RedirectKind int

const (
	RedirectStdin RedirectKind = iota
	RedirectStdout
	RedirectStderr
)

func (k RedirectKind) String() string {
	switch k {
	case RedirectStdin:
		return "<"
	case RedirectStdout:
		return ">"
	case RedirectStderr:
		return "2>"
	default:
		return "?"
	}
}

type Redirect struct {
	Kind RedirectKind
	Path string
}

// Stage is one command of a line: the argument vector plus the redirections
// that were removed from it.
type Stage struct {
	Args      []string
	Redirects []Redirect
}

// Line is a parsed command line of one command or a two-stage pipeline.
type Line struct {
	Raw        string
	Stages     []Stage
	Background bool
}

// Pipeline reports whether the line joins two stages with a pipe.
func (l Line) Pipeline() bool {
	return len(l.Stages) == 2
}

// Parse splits raw into stages. A trailing & marks the line as background and
// is dropped from the argument vector. Operators are only recognised when
// they are not quoted or escaped, so `grep '>' notes.txt` passes > to grep.
func Parse(raw string, limits Limits) (Line, error) {
	words := splitWords(raw)

	line := Line{
		Raw:        raw,
		Background: job.IsBackground(raw),
	}

	if line.Background {
		words = dropBackground(words)
	}

	tokens, err := tokenize(words)
	if err != nil {
		return Line{}, err
	}

	if err := limits.check(tokens); err != nil {
		return Line{}, err
	}

	if len(tokens) == 0 {
		return Line{}, ErrEmptyCommand
	}

	for _, group := range splitPipe(tokens) {
		stage, err := parseStage(group)
		if err != nil {
			return Line{}, err
		}
		line.Stages = append(line.Stages, stage)
	}

	if len(line.Stages) > 2 {
		return Line{}, ErrTooManyPipes
	}

	return line, nil
}

// token is one unquoted word of a line. op is set for pipe and redirection
// operators that appeared unquoted in the raw text.
type token struct {
	text string
	op   bool
}

// splitWords breaks line on unquoted whitespace and keeps the quotes and
// escapes of each word so operators can be told apart from arguments.
func splitWords(line string) []string {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
			continue
		}

		word.WriteRune(r)
		inWord = true
	}

	if inWord {
		words = append(words, word.String())
	}

	return words
}

func dropBackground(words []string) []string {
	if len(words) == 0 {
		return words
	}

	last := words[len(words)-1]
	if last == "&" {
		return words[:len(words)-1]
	}

	out := append([]string{}, words...)
	out[len(out)-1] = strings.TrimSuffix(last, "&")

	return out
}

func tokenize(words []string) ([]token, error) {
	var tokens []token

	for _, w := range words {
		if w == pipeToken {
			tokens = append(tokens, token{text: w, op: true})
			continue
		}

		if op, rest, ok := redirectPrefix(w); ok {
			tokens = append(tokens, token{text: op, op: true})
			if rest == "" {
				continue
			}
			w = rest
		}

		text, err := unquote(w)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token{text: text})
	}

	return tokens, nil
}

// unquote removes the quoting of a single word.
func unquote(word string) (string, error) {
	parts, err := shellquote.Split(word)
	if err != nil {
		return "", fmt.Errorf("split line: %w", err)
	}
	return strings.Join(parts, ""), nil
}

func (l Limits) check(tokens []token) error {
	if l.MaxTokens > 0 && len(tokens) > l.MaxTokens {
		return LimitError{What: "too many tokens", Limit: l.MaxTokens, Got: len(tokens)}
	}

	if l.MaxTokenLength > 0 {
		for _, tok := range tokens {
			if n := utf8.RuneCountInString(tok.text); n > l.MaxTokenLength {
				return LimitError{What: "token too long", Limit: l.MaxTokenLength, Got: n}
			}
		}
	}

	return nil
}

func splitPipe(tokens []token) [][]token {
	var groups [][]token

	start := 0
	for i, tok := range tokens {
		if tok.op && tok.text == pipeToken {
			groups = append(groups, tokens[start:i])
			start = i + 1
		}
	}

	return append(groups, tokens[start:])
}

func parseStage(tokens []token) (Stage, error) {
	var stage Stage

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !tok.op {
			stage.Args = append(stage.Args, tok.text)
			continue
		}

		kind := redirectKinds[tok.text]
		if i+1 >= len(tokens) || tokens[i+1].op {
			return Stage{}, fmt.Errorf("%s: %w", kind, ErrMissingRedirectTarget)
		}
		i++

		stage.Redirects = append(stage.Redirects, Redirect{Kind: kind, Path: tokens[i].text})
	}

	if len(stage.Args) == 0 {
		return Stage{}, ErrEmptyCommand
	}

	return stage, nil
}

var redirectKinds = map[string]RedirectKind{
	"<":  RedirectStdin,
	">":  RedirectStdout,
	"2>": RedirectStderr,
}

// redirectPrefix recognises both "> file" and ">file" on a raw word. A
// quoted or escaped operator starts with the quote character and never
// matches.
func redirectPrefix(word string) (string, string, bool) {
	for _, op := range []string{"2>", ">", "<"} {
		if strings.HasPrefix(word, op) {
			return op, word[len(op):], true
		}
	}
	return "", "", false
}
