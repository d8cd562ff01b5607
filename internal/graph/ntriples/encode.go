package ntriples

import (
	"fmt"
	"strings"
)

// DefaultHasURIPredicate tags every subject graph with a literal
// self-reference so the graph can be found again by its subject identifier.
const DefaultHasURIPredicate = "gx-participant:hasURI"

// EncodeSubjectGraph validates the whole batch and renders the claims whose
// subject is <subjectID> as an N-Triples document, followed by the synthetic
// <subjectID> <hasURI> "subjectID" triple. Claims about other subjects are
// skipped. Nothing is returned unless every claim is valid.
func EncodeSubjectGraph(claims []Claim, subjectID, hasURIPredicate string) (string, error) {
	self, err := selfClaim(subjectID, hasURIPredicate)
	if err != nil {
		return "", err
	}
	subject := self.Subject
	if err := Validate(claims); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, c := range claims {
		if strings.TrimSpace(c.Subject) != subject {
			continue
		}
		writeTriple(&b, c)
	}
	writeTriple(&b, self)
	return b.String(), nil
}

func writeTriple(b *strings.Builder, c Claim) {
	fmt.Fprintf(b, "%s %s %s .\n",
		strings.TrimSpace(c.Subject),
		strings.TrimSpace(c.Predicate),
		strings.TrimSpace(c.Object))
}

// quoteLiteral renders s as a quoted N-Triples string.
func quoteLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

// ValidateSubject checks the synthetic hasURI triple EncodeSubjectGraph would
// add for subjectID, so callers can reject a bad subject before touching
// any store.
func ValidateSubject(subjectID, hasURIPredicate string) error {
	_, err := selfClaim(subjectID, hasURIPredicate)
	return err
}

// ValidateIRI reports whether iri is an absolute IRI usable as a predicate.
func ValidateIRI(iri string) error {
	return validateResource("<" + iri + ">")
}

func selfClaim(subjectID, hasURIPredicate string) (Claim, error) {
	if hasURIPredicate == "" {
		hasURIPredicate = DefaultHasURIPredicate
	}
	subjectID = NormalizeSubject(subjectID)
	self := Claim{
		Subject:   "<" + subjectID + ">",
		Predicate: "<" + hasURIPredicate + ">",
		Object:    quoteLiteral(subjectID) + "^^<" + XSD + "string>",
	}
	if err := validateClaim(self); err != nil {
		return Claim{}, err
	}
	return self, nil
}

// NormalizeSubject strips the angle brackets callers sometimes keep around a
// subject identifier.
func NormalizeSubject(subjectID string) string {
	s := strings.TrimSpace(subjectID)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}
