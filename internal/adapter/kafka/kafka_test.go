package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testOrigin() domain.Origin {
	now := time.Date(2026, 2, 27, 12, 1, 0, 0, time.UTC)
	pick := int64(7)
	return domain.Origin{
		ID:             3,
		AssociationKey: "evt-0123456789abcdef",
		Time:           time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC),
		Lat:            47.5,
		Lon:            19.05,
		DepthKm:        8,
		NumPicks:       4,
		NumStations:    4,
		Status:         domain.StatusPreliminary,
		CreatedAt:      now,
		UpdatedAt:      now,
		Arrivals: []domain.OriginArrival{
			{PickID: &pick, Phase: "P", Network: "AA", Station: "STA1", Used: true, Weight: 1},
		},
	}
}

func TestSerializeToMessage(t *testing.T) {
	o := testOrigin()

	msg, err := serializeToMessage(o)
	require.NoError(t, err)

	assert.Equal(t, []byte("evt-0123456789abcdef"), msg.Key)
	assert.Contains(t, string(msg.Value), `"association_key":"evt-0123456789abcdef"`)
	assert.Contains(t, string(msg.Value), `"phase_pick_id":7`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "status", msg.Headers[0].Key)
	assert.Equal(t, []byte("preliminary"), msg.Headers[0].Value)
	assert.Equal(t, []byte("4"), msg.Headers[1].Value)
	assert.Equal(t, []byte(o.UpdatedAt.Format(time.RFC3339Nano)), msg.Headers[2].Value)

	var decoded domain.Origin
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, o.AssociationKey, decoded.AssociationKey)
	assert.Len(t, decoded.Arrivals, 1)
}

func TestPublishOrigin(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, p.PublishOrigin(context.Background(), testOrigin()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("evt-0123456789abcdef"), w.msgs[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishOrigin_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Publisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := p.PublishOrigin(context.Background(), testOrigin())
	require.ErrorContains(t, err, "evt-0123456789abcdef")
	assert.ErrorContains(t, err, "leader not available")
}
