package models

import (
	"time"

	dErrors "sdcatalog/pkg/domain-errors"
)

// Filter selects records. Nil fields are not applied. A range start without an
// end matches nothing; a range end without a start is ignored.
type Filter struct {
	UploadTimeStart *time.Time
	UploadTimeEnd   *time.Time
	StatusTimeStart *time.Time
	StatusTimeEnd   *time.Time
	Issuer          *string
	Validator       *string
	Status          *Status
	SubjectID       *string
	Hash            *string

	Offset int
	// Limit of 0 returns every matching record.
	Limit int
}

func (f Filter) Validate() error {
	if f.Offset < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "offset must not be negative")
	}
	if f.Limit < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "limit must not be negative")
	}
	if f.Status != nil && !f.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown status "+f.Status.String())
	}
	return nil
}

// Page is one page of a filtered listing.
type Page struct {
	TotalCount int       `json:"totalCount"`
	Records    []*Record `json:"records"`
}
