package ntriples

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the RDF term kind.
type Kind string

const (
	KindIRI       Kind = "IRI"
	KindBlankNode Kind = "blank node"
	KindLiteral   Kind = "literal"
)

// Term is a parsed RDF term. For IRIs Value is the unbracketed IRI; for blank
// nodes the label; for literals the lexical form with escapes kept.
type Term struct {
	Kind     Kind
	Value    string
	Language string
	Datatype string
}

var (
	schemeRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
	langTagRe  = regexp.MustCompile(`^[a-zA-Z]+(-[a-zA-Z0-9]+)*$`)
	blankRe    = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_.\-]*[A-Za-z0-9_\-])?$`)
	errEmpty   = errors.New("term is empty")
	iriIllegal = "<>\"{}|^`"
)

// ParseTerm parses a single lexical N-Triples term.
func ParseTerm(raw string) (Term, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Term{}, errEmpty
	}
	switch {
	case s[0] == '<':
		iri, err := parseIRI(s)
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: KindIRI, Value: iri}, nil
	case strings.HasPrefix(s, "_:"):
		label := s[2:]
		if !blankRe.MatchString(label) {
			return Term{}, fmt.Errorf("malformed blank node label %q", label)
		}
		return Term{Kind: KindBlankNode, Value: label}, nil
	case s[0] == '"':
		return parseLiteral(s)
	default:
		return Term{}, fmt.Errorf("%q is neither an IRI, a blank node nor a literal", s)
	}
}

// parseIRI checks an IRIREF and that the IRI is absolute.
func parseIRI(s string) (string, error) {
	if len(s) < 2 || s[len(s)-1] != '>' {
		return "", fmt.Errorf("IRI %s is not enclosed in angle brackets", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return "", errors.New("IRI is empty")
	}
	if err := checkIRIChars(body); err != nil {
		return "", fmt.Errorf("invalid IRI <%s>: %w", body, err)
	}
	if !schemeRe.MatchString(body) {
		return "", fmt.Errorf("invalid IRI <%s>: not an absolute IRI, scheme is missing", body)
	}
	return body, nil
}

func checkIRIChars(body string) error {
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			n, err := uchar(body[i:])
			if err != nil {
				return err
			}
			i += n - 1
		case c <= 0x20:
			return fmt.Errorf("illegal character %q at offset %d", c, i)
		case strings.IndexByte(iriIllegal, c) >= 0:
			return fmt.Errorf("illegal character %q at offset %d", c, i)
		}
	}
	return nil
}

// uchar validates a \uXXXX or \UXXXXXXXX escape at the start of s and returns
// its length.
func uchar(s string) (int, error) {
	if len(s) < 2 {
		return 0, errors.New("dangling escape")
	}
	var n int
	switch s[1] {
	case 'u':
		n = 4
	case 'U':
		n = 8
	default:
		return 0, fmt.Errorf("illegal escape \\%c", s[1])
	}
	if len(s) < 2+n {
		return 0, errors.New("truncated unicode escape")
	}
	for _, c := range s[2 : 2+n] {
		if !isHex(byte(c)) {
			return 0, fmt.Errorf("illegal unicode escape %s", s[:2+n])
		}
	}
	return 2 + n, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseLiteral handles "lexical", "lexical"@lang and "lexical"^^<datatype>.
func parseLiteral(s string) (Term, error) {
	end := -1
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			n, err := echar(s[i:])
			if err != nil {
				return Term{}, fmt.Errorf("invalid literal %s: %w", s, err)
			}
			i += n - 1
			continue
		}
		if c == '\n' || c == '\r' {
			return Term{}, fmt.Errorf("invalid literal %s: unescaped line break", s)
		}
		if c == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return Term{}, fmt.Errorf("invalid literal %s: missing closing quote", s)
	}
	term := Term{Kind: KindLiteral, Value: s[1:end]}
	rest := s[end+1:]
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "@"):
		if !langTagRe.MatchString(rest[1:]) {
			return Term{}, fmt.Errorf("invalid literal %s: malformed language tag %q", s, rest[1:])
		}
		term.Language = rest[1:]
	case strings.HasPrefix(rest, "^^"):
		dt, err := parseIRI(rest[2:])
		if err != nil {
			return Term{}, fmt.Errorf("invalid literal %s: datatype: %w", s, err)
		}
		term.Datatype = dt
		if err := checkLexicalForm(unescape(term.Value), dt); err != nil {
			return Term{}, fmt.Errorf("invalid literal %s: %w", s, err)
		}
	default:
		return Term{}, fmt.Errorf("invalid literal %s: unexpected %q after closing quote", s, rest)
	}
	return term, nil
}

// echar validates a string escape (ECHAR or UCHAR) and returns its length.
func echar(s string) (int, error) {
	if len(s) < 2 {
		return 0, errors.New("dangling escape")
	}
	switch s[1] {
	case 't', 'b', 'n', 'r', 'f', '"', '\'', '\\':
		return 2, nil
	}
	return uchar(s)
}

// unescape resolves the simple escapes that matter for lexical-space checks.
// Unicode escapes are left as-is: none of the checked datatypes admit them.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\r`, "\r", `\"`, `"`, `\'`, "'", `\\`, `\`)
	return r.Replace(s)
}
