package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func makeCluster(picks ...PhasePick) Cluster {
	return Cluster{Picks: picks, ReferenceTime: picks[0].Time}
}

func TestAssociationKey(t *testing.T) {
	c := makeCluster(makePick(1, 0, "STA1"), makePick(2, 1, "STA2"), makePick(3, 2, "STA3"))

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, AssociationKey(c), AssociationKey(c))
	})

	t.Run("prefixed", func(t *testing.T) {
		key := AssociationKey(c)
		assert.True(t, strings.HasPrefix(key, "evt-"))
		assert.Len(t, key, len("evt-")+16)
	})

	t.Run("stable as cluster grows", func(t *testing.T) {
		grown := makeCluster(append(append([]PhasePick{}, c.Picks...), makePick(4, 3, "STA4"))...)
		assert.Equal(t, AssociationKey(c), AssociationKey(grown))
	})

	t.Run("different seed", func(t *testing.T) {
		other := makeCluster(makePick(9, 0, "STA1"), makePick(2, 1, "STA2"))
		assert.NotEqual(t, AssociationKey(c), AssociationKey(other))
	})
}

func TestResolveAssociationKey(t *testing.T) {
	c := makeCluster(
		makePick(1, 0, "STA1"),
		makePick(2, 1, "STA2"),
		makePick(3, 2, "STA3"),
		makePick(4, 3, "STA4"),
	)

	tests := []struct {
		name    string
		holders map[int64]string
		want    string
	}{
		{"no overlap", nil, AssociationKey(c)},
		{"single holder", map[int64]string{2: "evt-a"}, "evt-a"},
		{"majority holder", map[int64]string{1: "evt-b", 2: "evt-a", 3: "evt-a"}, "evt-a"},
		{"tie goes to smallest key", map[int64]string{1: "evt-b", 2: "evt-a"}, "evt-a"},
		{"unrelated picks ignored", map[int64]string{99: "evt-z"}, AssociationKey(c)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAssociationKey(c, tt.holders))
		})
	}
}

func TestNewOrigin(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.February, 27, 12, 5, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	o := NewOrigin("evt-1", Origin{Lat: 47.5, Lon: 19.05})

	assert.Equal(t, "evt-1", o.AssociationKey)
	assert.Equal(t, StatusPreliminary, o.Status)
	assert.Equal(t, fakeClock.Now(), o.CreatedAt)
	assert.Equal(t, fakeClock.Now(), o.UpdatedAt)
	assert.Equal(t, 47.5, o.Lat)
}

func TestUsedStationCount(t *testing.T) {
	arrivals := []OriginArrival{
		{Network: "AA", Station: "STA1", Used: true},
		{Network: "AA", Station: "STA2", Used: true},
		{Network: "AA", Station: "STA2", Used: true},
		{Network: "AA", Station: "STA3", Used: false},
	}
	assert.Equal(t, 2, UsedStationCount(arrivals))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "geometry", FailureReason(ErrInsufficientGeometry))
	assert.Equal(t, "convergence", FailureReason(ErrDidNotConverge))
	assert.Equal(t, "outliers", FailureReason(ErrInsufficientAfterOutliers))
	assert.Equal(t, "stations", FailureReason(ErrInsufficientStations))
	assert.Equal(t, "other", FailureReason(ErrNotFound))
}
