package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-locator/internal/adapter/api"
	"github.com/couchcryptid/seismic-locator/internal/domain"
)

var t0 = time.Date(2026, time.February, 27, 12, 0, 0, 0, time.UTC)

type mockReader struct {
	origins    []domain.Origin
	err        error
	lastFilter domain.OriginFilter
}

func (m *mockReader) ListOrigins(_ context.Context, f domain.OriginFilter) ([]domain.Origin, error) {
	m.lastFilter = f
	return m.origins, m.err
}

func (m *mockReader) GetOrigin(_ context.Context, key string) (domain.Origin, error) {
	if m.err != nil {
		return domain.Origin{}, m.err
	}
	for _, o := range m.origins {
		if o.AssociationKey == key {
			return o, nil
		}
	}
	return domain.Origin{}, fmt.Errorf("origin %s: %w", key, domain.ErrNotFound)
}

type mockStations struct {
	stations []domain.Station
	loadedAt time.Time
}

func (m mockStations) List() []domain.Station { return m.stations }
func (m mockStations) LoadedAt() time.Time    { return m.loadedAt }

func newHandler(r *mockReader) *api.Handler {
	stations := mockStations{
		stations: []domain.Station{{Network: "AA", Station: "STA1", Lat: 47.6, Lon: 19.05}},
		loadedAt: t0,
	}
	return api.NewHandler(r, stations, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func testOrigins() []domain.Origin {
	return []domain.Origin{
		{ID: 2, AssociationKey: "evt-b", Time: t0.Add(time.Hour), NumStations: 5, Status: domain.StatusPreliminary},
		{ID: 1, AssociationKey: "evt-a", Time: t0, NumStations: 4, Status: domain.StatusPreliminary,
			Arrivals: []domain.OriginArrival{{Phase: "P", Station: "STA1", Used: true}}},
	}
}

func TestListOrigins(t *testing.T) {
	r := &mockReader{origins: testOrigins()}
	rec, body := get(t, newHandler(r), "/v1/origins?since=2026-02-27T00:00:00Z&until=2026-02-28T00:00:00Z&limit=10")

	assert.Equal(t, http.StatusOK, rec.Code)
	var data []domain.Origin
	require.NoError(t, json.Unmarshal(body["data"], &data))
	require.Len(t, data, 2)
	assert.Equal(t, "evt-b", data[0].AssociationKey)
	assert.JSONEq(t, `{"count":2,"limit":10}`, string(body["meta"]))

	assert.Equal(t, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), r.lastFilter.Since)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), r.lastFilter.Until)
	assert.Equal(t, 10, r.lastFilter.Limit)
}

func TestListOrigins_DefaultLimit(t *testing.T) {
	r := &mockReader{}
	rec, body := get(t, newHandler(r), "/v1/origins")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(body["data"]))
	assert.JSONEq(t, `{"count":0,"limit":100}`, string(body["meta"]))
	assert.True(t, r.lastFilter.Since.IsZero())
}

func TestListOrigins_BadQuery(t *testing.T) {
	for _, q := range []string{
		"since=yesterday",
		"until=2026-13-01",
		"limit=-1",
		"limit=ten",
		"since=2026-02-28T00:00:00Z&until=2026-02-27T00:00:00Z",
	} {
		t.Run(q, func(t *testing.T) {
			rec, body := get(t, newHandler(&mockReader{}), "/v1/origins?"+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body, "error")
		})
	}
}

func TestListOrigins_StoreError(t *testing.T) {
	rec, body := get(t, newHandler(&mockReader{err: errors.New("pool closed")}), "/v1/origins")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `"internal error"`, string(body["error"]))
}

func TestGetOrigin(t *testing.T) {
	rec, body := get(t, newHandler(&mockReader{origins: testOrigins()}), "/v1/origins/evt-a")

	assert.Equal(t, http.StatusOK, rec.Code)
	var o domain.Origin
	require.NoError(t, json.Unmarshal(body["data"], &o))
	assert.Equal(t, "evt-a", o.AssociationKey)
	assert.Len(t, o.Arrivals, 1)
}

func TestGetOrigin_NotFound(t *testing.T) {
	rec, _ := get(t, newHandler(&mockReader{origins: testOrigins()}), "/v1/origins/evt-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrigin_StoreError(t *testing.T) {
	rec, _ := get(t, newHandler(&mockReader{err: errors.New("timeout")}), "/v1/origins/evt-a")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListStations(t *testing.T) {
	rec, body := get(t, newHandler(&mockReader{}), "/v1/stations")

	assert.Equal(t, http.StatusOK, rec.Code)
	var stations []domain.Station
	require.NoError(t, json.Unmarshal(body["data"], &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "STA1", stations[0].Station)
	assert.JSONEq(t, `{"count":1,"loaded_at":"2026-02-27T12:00:00Z"}`, string(body["meta"]))
}
