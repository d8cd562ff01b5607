package models

import (
	"time"

	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/pkg/platform/strings"
)

// Claim is one RDF triple extracted from a self-description.
type Claim = ntriples.Claim

// Validator is one attestation over a self-description.
type Validator struct {
	DID            string    `json:"did"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// VerificationResult is what the verification step hands over on upload.
type VerificationResult struct {
	Claims     []Claim     `json:"claims"`
	Validators []Validator `json:"validators"`
}

// EarliestExpiration returns the minimum validator expiration. Validators
// without an expiration date are ignored; nil means none of them expire.
func (v *VerificationResult) EarliestExpiration() *time.Time {
	var earliest *time.Time
	for _, val := range v.Validators {
		if val.ExpirationDate.IsZero() {
			continue
		}
		if earliest == nil || val.ExpirationDate.Before(*earliest) {
			t := val.ExpirationDate
			earliest = &t
		}
	}
	return earliest
}

// ValidatorDIDs lists validator identifiers in attestation order, each once.
func (v *VerificationResult) ValidatorDIDs() []string {
	dids := make([]string, 0, len(v.Validators))
	for _, val := range v.Validators {
		dids = append(dids, val.DID)
	}
	return strings.DedupeAndTrim(dids)
}
