package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/desain-gratis/congestion/repository/congestion/inmemory"
	"github.com/desain-gratis/congestion/types/entity"
)

func TestEnableCongestion_Routes(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/congestion.yaml")
	require.NoError(t, err)
	cfg.Upstream.Areas = []string{"강남역"}

	router := httprouter.New()
	m, err := enableCongestion(context.Background(), router, cfg)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.poller.RunOnce(context.Background()).Err)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/main/congestion/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":[{"area_nm":"강남역","area_congest_lvl":"보통"}]}`, rec.Body.String())

	require.Equal(t, http.StatusNotFound, get("/main/congestion/alerts").Code)

	rec = get("/main/congestion/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.EqualValues(t, 0, metrics["topic"]["n_subscription"])
	require.EqualValues(t, 1, metrics["poller"]["n_cycle"])
}

func TestNewFetcher_StaticWithoutAPIKey(t *testing.T) {
	fetcher := newFetcher(Config{Upstream: UpstreamConfig{Areas: []string{"A", "B"}}})
	require.IsType(t, inmemory.NewFetcher(nil), fetcher)

	snapshot, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, entity.Snapshot{
		{Name: "A", Level: entity.Normal},
		{Name: "B", Level: entity.Normal},
	}, snapshot)
}
