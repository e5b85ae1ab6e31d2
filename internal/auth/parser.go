package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Parser splits the value of a multi-valued header into claim values.
type Parser interface {
	Parse(value string) ([]string, error)
}

// ParserFunc adapts a plain function to the Parser interface.
type ParserFunc func(value string) ([]string, error)

// Parse calls f(value).
func (f ParserFunc) Parse(value string) ([]string, error) {
	return f(value)
}

// ParserKind names a built-in parser.
type ParserKind string

const (
	// ParserSplit splits on an arbitrary separator.
	ParserSplit ParserKind = "split"
	// ParserShibboleth decodes the Shibboleth SP attribute encoding.
	ParserShibboleth ParserKind = "shibboleth"
)

var errEmptySeparator = errors.New("split parser: separator must not be empty")

// SplitParser splits a value on Separator. By default whitespace around
// tokens and empty tokens are kept as sent.
type SplitParser struct {
	Separator string
	TrimSpace bool
	OmitEmpty bool
}

// Parse implements Parser.
func (p SplitParser) Parse(value string) ([]string, error) {
	if p.Separator == "" {
		return nil, errEmptySeparator
	}

	return finishTokens(strings.Split(value, p.Separator), p.TrimSpace, p.OmitEmpty), nil
}

// ShibbolethParser splits a Shibboleth SP multi-valued attribute header.
// Values are separated by ';' and a literal semicolon inside a value is
// sent as "\;".
type ShibbolethParser struct {
	TrimSpace bool
	OmitEmpty bool
}

// Parse implements Parser.
func (p ShibbolethParser) Parse(value string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
	)

	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == '\\' && i+1 < len(value) && value[i+1] == ';':
			cur.WriteByte(';')
			i++
		case c == ';':
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	tokens = append(tokens, cur.String())

	return finishTokens(tokens, p.TrimSpace, p.OmitEmpty), nil
}

func finishTokens(tokens []string, trim, omitEmpty bool) []string {
	if !trim && !omitEmpty {
		return tokens
	}

	out := tokens[:0]
	for _, t := range tokens {
		if trim {
			t = strings.TrimSpace(t)
		}
		if omitEmpty && t == "" {
			continue
		}
		out = append(out, t)
	}

	return out
}

// ParserOptions describes a built-in parser.
type ParserOptions struct {
	Kind      ParserKind
	Separator string
	TrimSpace bool
	OmitEmpty bool
}

// NewParser builds the built-in parser described by opts.
func NewParser(opts ParserOptions) (Parser, error) {
	switch opts.Kind {
	case ParserSplit:
		if opts.Separator == "" {
			return nil, fmt.Errorf("%w: split parser requires a separator", ErrConfiguration)
		}
		return SplitParser{
			Separator: opts.Separator,
			TrimSpace: opts.TrimSpace,
			OmitEmpty: opts.OmitEmpty,
		}, nil
	case ParserShibboleth:
		return ShibbolethParser{
			TrimSpace: opts.TrimSpace,
			OmitEmpty: opts.OmitEmpty,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown parser kind %q", ErrConfiguration, opts.Kind)
	}
}
