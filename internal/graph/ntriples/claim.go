// Package ntriples validates and encodes RDF claims in N-Triples form.
//
// A claim arrives as three lexical terms exactly as they would appear on an
// N-Triples line. Every term is checked against the grammar for its position
// before anything is encoded, so a batch is either accepted whole or rejected
// with the first offending position.
package ntriples

import (
	"fmt"
	"strings"
)

// Claim is one RDF triple extracted from a self-description.
type Claim struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

func (c Claim) String() string {
	return strings.TrimSpace(c.Subject) + " " + strings.TrimSpace(c.Predicate) + " " + strings.TrimSpace(c.Object)
}

// Position names the slot of a term inside a triple.
type Position string

const (
	PositionSubject   Position = "Subject"
	PositionPredicate Position = "Predicate"
	PositionObject    Position = "Object"
)

// TripleError reports the first invalid term of a claim.
type TripleError struct {
	Position Position
	Claim    Claim
	Reason   string
}

func (e *TripleError) Error() string {
	return fmt.Sprintf("%s in triple %s: %s", e.Position, e.Claim, e.Reason)
}

// Validate checks every claim. Subjects and predicates must be IRIs, objects
// must be IRIs or literals; blank nodes are rejected everywhere.
func Validate(claims []Claim) error {
	for _, c := range claims {
		if err := validateClaim(c); err != nil {
			return err
		}
	}
	return nil
}

func validateClaim(c Claim) error {
	if err := validateResource(c.Subject); err != nil {
		return &TripleError{Position: PositionSubject, Claim: c, Reason: err.Error()}
	}
	if err := validateResource(c.Predicate); err != nil {
		return &TripleError{Position: PositionPredicate, Claim: c, Reason: err.Error()}
	}
	if err := validateObject(c.Object); err != nil {
		return &TripleError{Position: PositionObject, Claim: c, Reason: err.Error()}
	}
	return nil
}

func validateResource(raw string) error {
	term, err := ParseTerm(raw)
	if err != nil {
		return err
	}
	if term.Kind != KindIRI {
		return fmt.Errorf("expected an IRI, found %s", term.Kind)
	}
	return nil
}

func validateObject(raw string) error {
	term, err := ParseTerm(raw)
	if err != nil {
		return err
	}
	if term.Kind == KindBlankNode {
		return fmt.Errorf("blank nodes are not allowed: %s", term.Value)
	}
	return nil
}
