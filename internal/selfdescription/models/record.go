package models

import (
	"slices"
	"time"

	dErrors "sdcatalog/pkg/domain-errors"
)

// Record is the persisted lifecycle row of one self-description version.
//
// Invariants:
//   - Hash is the content hash of the raw document and never changes
//   - at most one ACTIVE record exists per SubjectID
//   - once a record leaves ACTIVE its status never changes again
type Record struct {
	Hash           string     `json:"sdHash"`
	SubjectID      string     `json:"subjectId"`
	Issuer         string     `json:"issuer"`
	UploadTime     time.Time  `json:"uploadTime"`
	Status         Status     `json:"status"`
	StatusTime     time.Time  `json:"statusTime"`
	ExpirationTime *time.Time `json:"expirationTime,omitempty"`
	ValidatorDIDs  []string   `json:"validatorDids,omitempty"`
}

func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// CanTransition checks the move to target without applying it.
func (r *Record) CanTransition(target Status) error {
	if !r.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot change status from "+r.Status.String()+" to "+target.String())
	}
	return nil
}

// ApplyTransition sets the new status and stamps StatusTime.
// Call CanTransition first.
func (r *Record) ApplyTransition(target Status, now time.Time) {
	r.Status = target
	r.StatusTime = now
}

// Transition validates and applies a status change in one call.
func (r *Record) Transition(target Status, now time.Time) error {
	if err := r.CanTransition(target); err != nil {
		return err
	}
	r.ApplyTransition(target, now)
	return nil
}

// IsExpired reports whether the record is ACTIVE with an expiration before now.
func (r *Record) IsExpired(now time.Time) bool {
	return r.IsActive() && r.ExpirationTime != nil && r.ExpirationTime.Before(now)
}

// HasValidator reports whether did is one of the record's validators.
func (r *Record) HasValidator(did string) bool {
	return slices.Contains(r.ValidatorDIDs, did)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpirationTime != nil {
		t := *r.ExpirationTime
		c.ExpirationTime = &t
	}
	c.ValidatorDIDs = slices.Clone(r.ValidatorDIDs)
	return &c
}

// SelfDescription is a record joined with its raw document.
type SelfDescription struct {
	Record
	Content []byte `json:"content,omitempty"`
}

// NewSelfDescription builds a fresh ACTIVE version uploaded at now.
func NewSelfDescription(hash, subjectID, issuer string, content []byte, now time.Time) (*SelfDescription, error) {
	if hash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "hash is required")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	return &SelfDescription{
		Record: Record{
			Hash:       hash,
			SubjectID:  subjectID,
			Issuer:     issuer,
			UploadTime: now,
			Status:     StatusActive,
			StatusTime: now,
		},
		Content: content,
	}, nil
}
