// Package events publishes self-description lifecycle changes.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sdcatalog/internal/selfdescription/models"
	"sdcatalog/pkg/requestcontext"
)

type Type string

const (
	TypeStored        Type = "sd.stored"
	TypeStatusChanged Type = "sd.status_changed"
	TypeExpired       Type = "sd.expired"
	TypeDeleted       Type = "sd.deleted"
)

// Event describes one committed lifecycle change.
type Event struct {
	ID        string        `json:"id"`
	Type      Type          `json:"type"`
	Hash      string        `json:"sdHash"`
	SubjectID string        `json:"subjectId"`
	Status    models.Status `json:"status,omitempty"`
	// Superseded is the hash of the version a store deprecated, if any.
	Superseded string    `json:"superseded,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	Time       time.Time `json:"time"`
}

// New builds an event for r, stamped with the request clock and id.
func New(ctx context.Context, typ Type, r *models.Record) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Hash:      r.Hash,
		SubjectID: r.SubjectID,
		Status:    r.Status,
		RequestID: requestcontext.RequestID(ctx),
		Time:      requestcontext.Now(ctx),
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
