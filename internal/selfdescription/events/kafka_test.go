package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"sdcatalog/internal/selfdescription/models"
	"sdcatalog/pkg/requestcontext"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestNewStampsRequestContext(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), now)

	e := New(ctx, TypeStatusChanged, &models.Record{Hash: "h1", SubjectID: "s1", Status: models.StatusRevoked})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, now, e.Time)
	assert.Equal(t, models.StatusRevoked, e.Status)
}

func TestKafkaPublisherKeysBySubject(t *testing.T) {
	producer := &recordingProducer{}
	p := NewKafkaPublisher(producer, "sd-lifecycle")
	e := Event{ID: "e1", Type: TypeStored, Hash: "h1", SubjectID: "http://example.org/s1", Status: models.StatusActive}

	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "sd-lifecycle", rec.Topic)
	assert.Equal(t, "http://example.org/s1", string(rec.Key))
	assert.Contains(t, rec.Headers, kgo.RecordHeader{Key: "event-type", Value: []byte("sd.stored")})

	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, e, decoded)
}

func TestKafkaPublisherReturnsProduceError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisher(&recordingProducer{err: boom}, "t")

	err := p.Publish(context.Background(), Event{ID: "e1"})

	assert.ErrorIs(t, err, boom)
}
