// Package cypher screens ad-hoc Cypher statements before they reach the graph
// database. Only read-only statements pass.
package cypher

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Query is a parameterized Cypher statement.
type Query struct {
	Statement string         `json:"statement"`
	Params    map[string]any `json:"params,omitempty"`
}

// RejectedError names the construct that made a statement unsafe to run in a
// read transaction.
type RejectedError struct {
	Construct string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("query rejected: %s is not allowed in a read-only query", e.Construct)
}

var ErrEmptyStatement = errors.New("query statement is empty")

var mutatingClauses = map[string]struct{}{
	"CREATE":    {},
	"MERGE":     {},
	"DELETE":    {},
	"DETACH":    {},
	"SET":       {},
	"REMOVE":    {},
	"DROP":      {},
	"FOREACH":   {},
	"LOAD":      {},
	"ALTER":     {},
	"GRANT":     {},
	"DENY":      {},
	"REVOKE":    {},
	"RENAME":    {},
	"TERMINATE": {},
}

// Procedure name prefixes (lowercase) that write to the database. They match
// any procedure whose dotted name starts with them, so db.create also covers
// db.createLabel.
var mutatingProcedures = []string{
	"n10s.rdf.import",
	"n10s.rdf.delete",
	"n10s.onto.import",
	"n10s.graphconfig.init",
	"n10s.graphconfig.set",
	"n10s.graphconfig.drop",
	"n10s.nsprefixes.add",
	"n10s.nsprefixes.remove",
	"n10s.mapping.add",
	"n10s.mapping.drop",
	"apoc.create",
	"apoc.merge",
	"apoc.refactor",
	"apoc.periodic",
	"apoc.do",
	"apoc.cypher",
	"apoc.nodes.delete",
	"apoc.nodes.link",
	"apoc.lock",
	"apoc.trigger",
	"apoc.schema.assert",
	"apoc.atomic",
	"apoc.export",
	"apoc.import",
	"db.create",
	"db.index.fulltext.create",
	"dbms",
}

// Guard rejects statements that could mutate the graph.
type Guard struct {
	denied []string
}

// NewGuard builds a guard. Extra procedure prefixes extend the built-in
// denylist.
func NewGuard(extraDenied ...string) *Guard {
	denied := make([]string, 0, len(mutatingProcedures)+len(extraDenied))
	denied = append(denied, mutatingProcedures...)
	for _, p := range extraDenied {
		denied = append(denied, strings.ToLower(p))
	}
	return &Guard{denied: denied}
}

// Check returns nil when q is safe to run read-only.
func (g *Guard) Check(q Query) error {
	toks := tokenize(q.Statement)
	if len(toks) == 0 {
		return ErrEmptyStatement
	}
	for i, t := range toks {
		if t.kind != tokWord {
			continue
		}
		if i > 0 && toks[i-1].kind == tokColon {
			continue // label or relationship type
		}
		if i+1 < len(toks) && toks[i+1].kind == tokColon {
			continue // map key
		}
		if i > 0 && toks[i-1].kind == tokDot {
			continue // property access
		}
		upper := strings.ToUpper(t.text)
		if _, ok := mutatingClauses[upper]; ok {
			return &RejectedError{Construct: upper}
		}
		if upper == "CALL" {
			if err := g.checkCall(toks[i+1:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkCall inspects what follows CALL. Subqueries pass; anything else must be
// a procedure name built from words, quoted names and dots.
func (g *Guard) checkCall(rest []token) error {
	if len(rest) == 0 {
		return &RejectedError{Construct: "CALL without a procedure"}
	}
	if rest[0].kind == tokOther && (rest[0].text == "{" || rest[0].text == "(") {
		return nil
	}
	name := procedureName(rest)
	if name == "" {
		return &RejectedError{Construct: "CALL without a procedure"}
	}
	return g.checkProcedure(name)
}

// procedureName joins the leading word, quoted-name and dot tokens, so
// apoc.`create`.node and `apoc`.create.node both read as apoc.create.node.
func procedureName(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		switch t.kind {
		case tokWord, tokName:
			b.WriteString(t.text)
		case tokDot:
			b.WriteByte('.')
		default:
			return b.String()
		}
	}
	return b.String()
}

func (g *Guard) checkProcedure(name string) error {
	lower := strings.ToLower(name)
	for _, p := range g.denied {
		if strings.HasPrefix(lower, p) {
			return &RejectedError{Construct: "procedure " + name}
		}
	}
	if strings.HasSuffix(lower, ".write") || strings.HasSuffix(lower, ".mutate") {
		return &RejectedError{Construct: "procedure " + name}
	}
	return nil
}

type tokKind int

const (
	tokWord tokKind = iota
	tokColon
	tokDot
	tokName
	tokOther
)

type token struct {
	kind tokKind
	text string
}

// tokenize splits a statement into words and punctuation. String literals,
// parameters and comments produce no word tokens; backtick-quoted names come
// back unquoted as name tokens.
// Dotted names such as apoc.create.node come back as a single word.
func tokenize(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(s, i, c)
			toks = append(toks, token{kind: tokOther, text: "str"})
		case c == '`':
			end := skipQuoted(s, i, '`')
			inner := s[i+1 : end]
			inner = strings.TrimSuffix(inner, "`")
			toks = append(toks, token{kind: tokName, text: strings.ReplaceAll(inner, "``", "`")})
			i = end
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
		case c == '$':
			i++
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokOther, text: "param"})
		case isWordStart(c):
			start := i
			for i < len(s) && (isWordByte(s[i]) || (s[i] == '.' && i+1 < len(s) && isWordStart(s[i+1]))) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: s[start:i]})
		case c == ':':
			toks = append(toks, token{kind: tokColon, text: ":"})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: "."})
			i++
		case unicode.IsSpace(rune(c)) || c == ';':
			i++
		default:
			toks = append(toks, token{kind: tokOther, text: string(c)})
			i++
		}
	}
	return toks
}

// skipQuoted returns the index just past the closing quote. Backslash escapes
// apply inside string literals; a doubled backtick escapes inside names.
func skipQuoted(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		switch {
		case s[j] == '\\' && quote != '`':
			j++
		case s[j] == quote:
			if quote == '`' && j+1 < len(s) && s[j+1] == '`' {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
