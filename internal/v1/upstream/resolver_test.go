package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mediaServer, identityService *httptest.Server) *Client {
	t.Helper()
	cfg := Config{
		AdminToken: "admin-token",
	}
	if mediaServer != nil {
		cfg.MediaServerURL = mediaServer.URL
	}
	if identityService != nil {
		cfg.IdentityServiceURL = identityService.URL
	}
	return NewClient(cfg, t.Name())
}

func TestResolveMatchesByMachineIdentifier(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rootContainer{
			MediaContainer: struct {
				MachineIdentifier string `json:"machineIdentifier"`
			}{MachineIdentifier: "abc123"},
		})
	}))
	defer media.Close()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]identityResource{
			{Provides: "server", ClientIdentifier: "other", AccessToken: "wrong-token"},
			{Provides: "server", ClientIdentifier: "abc123", AccessToken: "right-token"},
		})
	}))
	defer identity.Close()

	c := newTestClient(t, media, identity)
	r := NewResolver(c)

	token, ok := r.Resolve(context.Background(), "user-identity-token")
	require.True(t, ok)
	assert.Equal(t, "right-token", token)
}

func TestResolveSingleServerFallback(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rootContainer{})
	}))
	defer media.Close()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]identityResource{
			{Provides: "server", ClientIdentifier: "unrelated", AccessToken: "only-token"},
		})
	}))
	defer identity.Close()

	c := newTestClient(t, media, identity)
	r := NewResolver(c)

	token, ok := r.Resolve(context.Background(), "user-identity-token")
	require.True(t, ok)
	assert.Equal(t, "only-token", token)
}

func TestResolveNoMatchReturnsFalse(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rootContainer{})
	}))
	defer media.Close()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]identityResource{
			{Provides: "server", ClientIdentifier: "a", AccessToken: "t1"},
			{Provides: "server", ClientIdentifier: "b", AccessToken: "t2"},
		})
	}))
	defer identity.Close()

	c := newTestClient(t, media, identity)
	r := NewResolver(c)

	_, ok := r.Resolve(context.Background(), "user-identity-token")
	assert.False(t, ok)
}

func TestResolveCachesResult(t *testing.T) {
	calls := 0
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rootContainer{})
	}))
	defer media.Close()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]identityResource{
			{Provides: "server", ClientIdentifier: "x", AccessToken: "cached-token"},
		})
	}))
	defer identity.Close()

	c := newTestClient(t, media, identity)
	r := NewResolver(c)

	_, _ = r.Resolve(context.Background(), "same-token")
	_, _ = r.Resolve(context.Background(), "same-token")
	assert.Equal(t, 1, calls)
}

func TestResolveWithFallbackUsesAdminTokenOnFailure(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer media.Close()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer identity.Close()

	c := newTestClient(t, media, identity)
	r := NewResolver(c)

	got := r.ResolveWithFallback(context.Background(), "user-identity-token")
	assert.Equal(t, "admin-token", got)
}

func TestFetchUserInfoParsesUsernameAndTitleFallback(t *testing.T) {
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 42, "title": "Fallback Name", "thumb": "pic.jpg"}`))
	}))
	defer identity.Close()

	c := newTestClient(t, nil, identity)
	r := NewResolver(c)

	info, err := r.FetchUserInfo(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.UserID)
	assert.Equal(t, "Fallback Name", info.Username)
	assert.Equal(t, "pic.jpg", info.Thumb)
}
