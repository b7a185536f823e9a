package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFetchesAndCaches(t *testing.T) {
	ClearCache()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/.well-known/tillbook-cli.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"version": 2, "identity": {"token": "/v2/token"}, "events": {"origin": "grpcs://events.test"}}`))
	}))
	defer srv.Close()

	m, err := Resolve(context.Background(), srv.Client(), srv.URL+"/", "/.well-known/tillbook-cli.json")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, "/v2/token", m.Identity.Token)
	assert.Equal(t, "/auth/logout", m.Identity.Logout)
	assert.Equal(t, "grpcs://events.test", m.EventsAddress(""))

	again, err := Resolve(context.Background(), srv.Client(), srv.URL, "/.well-known/tillbook-cli.json")
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, int32(1), hits.Load())

	ep := m.Endpoints(srv.URL + "/")
	assert.Equal(t, srv.URL, ep.BaseURL)
	assert.Equal(t, "/v2/token", ep.Token)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "not found", status: http.StatusNotFound, wantErr: "status 404"},
		{name: "bad json", status: http.StatusOK, body: "{", wantErr: "parse manifest"},
		{name: "no version", status: http.StatusOK, body: `{"identity": {"token": "/t"}}`, wantErr: "missing version"},
		{name: "no token path", status: http.StatusOK, body: `{"version": 1}`, wantErr: "missing identity.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ClearCache()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m, err := Resolve(context.Background(), srv.Client(), srv.URL, "/m.json")
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, Default(), m)
			assert.Nil(t, GetCached(srv.URL+"/m.json"))
		})
	}
}

func TestEventsAddress(t *testing.T) {
	m := Default()
	assert.Empty(t, m.EventsAddress(""))
	assert.Equal(t, "grpc://localhost:7443", m.EventsAddress("grpc://localhost:7443"))

	m.Events.Origin = "/relative"
	assert.Empty(t, m.EventsAddress(""))
}
