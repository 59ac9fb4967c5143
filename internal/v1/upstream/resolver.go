package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/logging"
)

// Resolver implements spec §4.7: resolving a server-specific access token
// for a non-admin user from the identity service's resources listing,
// matched against the local server's machine identifier. Ported from
// original_source/src-actix/plex/client.rs's resolve_server_access_token.
type Resolver struct {
	client *Client
}

// NewResolver wraps an upstream Client as a Resolver.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

type rootContainer struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
	} `json:"MediaContainer"`
}

// machineIdentifier fetches and caches the local server's machineIdentifier,
// queried once per process with the admin token (spec §4.7 step 2).
func (r *Resolver) machineIdentifier(ctx context.Context) (string, error) {
	r.client.machineIDOnce.Do(func() {
		var out rootContainer
		_, err := r.client.getJSON(ctx, "machine_identifier", "/", r.client.cfg.AdminToken, &out)
		if err != nil {
			r.client.machineIDErr = err
			return
		}
		r.client.machineID = out.MediaContainer.MachineIdentifier
	})
	return r.client.machineID, r.client.machineIDErr
}

type identityResource struct {
	Provides          string `json:"provides"`
	ClientIdentifier  string `json:"clientIdentifier"`
	AccessToken       string `json:"accessToken"`
}

// Resolve implements the resolve(user_identity_token) -> server_access_token?
// contract of spec §4.7. It checks the per-process cache first, then walks
// the identity service's resources listing, matching by machine identifier
// with a single-server fallback. Any network or parse failure returns ("",
// false) — no token, not an error — so callers fall back to a less-privileged
// path, per spec.
func (r *Resolver) Resolve(ctx context.Context, userIdentityToken string) (string, bool) {
	r.client.mu.RLock()
	cached, ok := r.client.serverTokens[userIdentityToken]
	r.client.mu.RUnlock()
	if ok {
		return cached, true
	}

	token, ok := r.resolveUncached(ctx, userIdentityToken)
	if !ok {
		return "", false
	}

	r.client.mu.Lock()
	r.client.serverTokens[userIdentityToken] = token
	r.client.mu.Unlock()
	return token, true
}

func (r *Resolver) resolveUncached(ctx context.Context, userIdentityToken string) (string, bool) {
	machineID, _ := r.machineIdentifier(ctx) // best-effort; matching still proceeds without it

	url := r.client.cfg.identityBase() + "/api/v2/resources?includeHttps=1&includeRelay=1"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("X-Plex-Token", userIdentityToken)
	r.client.setStandardHeaders(req, r.client.clientID())

	resp, err := r.client.doRequest(ctx, "resolve_server_token", req)
	if err != nil {
		logging.Warn(ctx, "resources lookup failed", zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Warn(ctx, "identity service resources returned non-2xx", zap.Int("status", resp.StatusCode))
		return "", false
	}

	var resources []identityResource
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		logging.Warn(ctx, "failed to decode resources response", zap.Error(err))
		return "", false
	}

	var servers []identityResource
	for _, res := range resources {
		if strings.Contains(res.Provides, "server") {
			servers = append(servers, res)
		}
	}

	if machineID != "" {
		for _, s := range servers {
			if s.ClientIdentifier == machineID {
				return s.AccessToken, s.AccessToken != ""
			}
		}
	}

	if len(servers) == 1 {
		return servers[0].AccessToken, servers[0].AccessToken != ""
	}

	return "", false
}

// ResolveWithFallback returns the resolved server token if possible,
// otherwise the admin token (spec §4.7's last resort, logged at warn —
// SPEC_FULL.md §9 Open Question 2), or the identity token itself when no
// admin token is configured.
func (r *Resolver) ResolveWithFallback(ctx context.Context, userIdentityToken string) string {
	if token, ok := r.Resolve(ctx, userIdentityToken); ok {
		return token
	}
	if r.client.cfg.AdminToken == "" {
		return userIdentityToken
	}
	logging.Warn(ctx, "falling back to admin token for upstream request",
		zap.String("reason", "could not resolve per-user server access token"))
	return r.client.cfg.AdminToken
}

// UserInfo is the subset of the identity service's user profile the
// coordinator needs for the join handshake (spec §4.6 step 3).
type UserInfo struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Thumb    string `json:"thumb"`
}

// FetchUserInfo queries the identity service's GET /api/v2/user with the
// user's own identity token.
func (r *Resolver) FetchUserInfo(ctx context.Context, userIdentityToken string) (UserInfo, error) {
	url := r.client.cfg.identityBase() + "/api/v2/user"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("X-Plex-Token", userIdentityToken)
	r.client.setStandardHeaders(req, r.client.clientID())

	resp, err := r.client.doRequest(ctx, "fetch_user_info", req)
	if err != nil {
		return UserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("upstream: failed to authenticate with identity service (HTTP %d)", resp.StatusCode)
	}

	var raw struct {
		ID       json.Number `json:"id"`
		Username string      `json:"username"`
		Title    string      `json:"title"`
		Thumb    string      `json:"thumb"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return UserInfo{}, fmt.Errorf("upstream: failed to parse user info: %w", err)
	}

	username := raw.Username
	if username == "" {
		username = raw.Title
	}
	userID, _ := raw.ID.Int64()

	return UserInfo{UserID: userID, Username: username, Thumb: raw.Thumb}, nil
}
