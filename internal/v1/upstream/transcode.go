package upstream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// bitrateForQuality implements the quality-preset bitrate table ported from
// original_source/src-actix/plex/media.rs's get_stream_url. Bitrates are in
// kbps.
func bitrateForQuality(quality string) string {
	switch quality {
	case "4k":
		return "20000"
	case "1080p", "1080":
		return "10000"
	case "720p", "720":
		return "4000"
	case "480p", "480":
		return "1500"
	case "original":
		return "200000"
	default:
		return "10000"
	}
}

// profileExtra is Plex Web's pre-URL-encoded client-profile-extra string
// limiting the transcode to the requested bitrate ceiling and targeting
// h264/aac over HLS, ported verbatim (with {bitrate} substituted) from
// media.rs.
func profileExtra(bitrate string) string {
	return "add-limitation%28scope%3DvideoCodec%26scopeName%3D%2A%26type%3DupperBound" +
		"%26name%3Dvideo.bitrate%26value%3D" + bitrate + "%26replace%3Dtrue%29" +
		"%2Bappend-transcode-target-codec%28type%3DvideoProfile%26context%3Dstreaming" +
		"%26videoCodec%3Dh264%26audioCodec%3Daac%26protocol%3Dhls%29"
}

// TranscodeRequest carries the parameters of one Transcode Decision
// Orchestrator call (spec §4.8).
type TranscodeRequest struct {
	MediaID          string
	Quality          string // "4k", "1080p", "720p", "480p", "original", or "" (defaults to 1080p)
	ServerToken      string
	SessionID        string // UUIDv4, threaded through decision+start and later used to stop the transcode
	ClientIdentifier string // per-tab identifier; must be distinct across browser tabs (spec §4.8)
}

// TranscodeResult is what the orchestrator hands back to the HTTP layer.
type TranscodeResult struct {
	URL string
}

// Orchestrator implements spec §4.8's two-step decision+start protocol: a
// decision call whose response is discarded, immediately followed by a
// start.m3u8 call whose manifest is parsed for the session path. Both calls
// share the same parameter set and the same ClientIdentifier, so the
// upstream server's per-client decision cache sees them as one continuous
// negotiation instead of two competing ones.
type Orchestrator struct {
	client *Client
}

// NewOrchestrator wraps an upstream Client as an Orchestrator.
func NewOrchestrator(client *Client) *Orchestrator {
	return &Orchestrator{client: client}
}

func (o *Orchestrator) buildTranscodeURL(endpoint string, req TranscodeRequest) (string, error) {
	base := strings.TrimRight(o.client.cfg.MediaServerURL, "/")
	if base == "" {
		return "", fmt.Errorf("upstream: media server URL is not configured")
	}
	bitrate := bitrateForQuality(req.Quality)

	q := url.Values{}
	q.Set("hasMDE", "1")
	q.Set("path", "/library/metadata/"+req.MediaID)
	q.Set("mediaIndex", "0")
	q.Set("partIndex", "0")
	q.Set("protocol", "hls")
	q.Set("fastSeek", "1")
	q.Set("directPlay", "0")
	q.Set("directStream", "0")
	q.Set("directStreamAudio", "0")
	q.Set("subtitleSize", "100")
	q.Set("audioBoost", "100")
	q.Set("location", "lan")
	q.Set("maxVideoBitrate", bitrate)
	q.Set("addDebugOverlay", "0")
	q.Set("autoAdjustQuality", "0")
	q.Set("mediaBufferSize", "102400")
	q.Set("session", req.SessionID)
	q.Set("X-Plex-Session-Identifier", req.ClientIdentifier)
	q.Set("X-Plex-Incomplete-Segments", "1")
	q.Set("X-Plex-Product", productName)
	clientID := req.ClientIdentifier
	if clientID == "" {
		clientID = o.client.clientID()
	}
	q.Set("X-Plex-Client-Identifier", clientID)
	q.Set("X-Plex-Platform", "Chrome")
	q.Set("X-Plex-Token", req.ServerToken)

	// profile-extra is already percent-encoded per Plex Web's format and
	// must not be re-escaped by url.Values.Encode, so it's appended raw.
	return fmt.Sprintf("%s%s?%s&X-Plex-Client-Profile-Extra=%s", base, endpoint, q.Encode(), profileExtra(bitrate)), nil
}

// Decide runs the full two-step protocol and returns the resolved stream
// URL. direct_play requests short-circuit the whole thing, per spec.md's
// carried-forward direct-play distinction (SPEC_FULL.md §9).
func (o *Orchestrator) Decide(ctx context.Context, req TranscodeRequest, directPlay bool, partKey string) (TranscodeResult, error) {
	if directPlay {
		base := strings.TrimRight(o.client.cfg.MediaServerURL, "/")
		return TranscodeResult{URL: fmt.Sprintf("%s%s?X-Plex-Token=%s", base, partKey, req.ServerToken)}, nil
	}

	decisionURL, err := o.buildTranscodeURL("/video/:/transcode/universal/decision", req)
	if err != nil {
		return TranscodeResult{}, err
	}
	if resp, err := o.fetch(ctx, "transcode_decision", decisionURL); err == nil {
		resp.Body.Close()
	} else if err != ErrCircuitOpen {
		// A failed decision call is not fatal — the start.m3u8 call below
		// still carries the full parameter set and can succeed on its own.
	}

	startURL, err := o.buildTranscodeURL("/video/:/transcode/universal/start.m3u8", req)
	if err != nil {
		return TranscodeResult{}, err
	}
	resp, err := o.fetch(ctx, "transcode_start", startURL)
	if err != nil {
		return TranscodeResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TranscodeResult{}, fmt.Errorf("upstream: transcode start returned HTTP %d", resp.StatusCode)
	}

	sessionPath, err := firstManifestLine(resp)
	if err != nil {
		return TranscodeResult{}, err
	}

	base := strings.TrimRight(o.client.cfg.MediaServerURL, "/")
	if strings.HasPrefix(sessionPath, "http") {
		return TranscodeResult{URL: sessionPath}, nil
	}
	return TranscodeResult{URL: fmt.Sprintf("%s/video/:/transcode/universal/%s", base, sessionPath)}, nil
}

func (o *Orchestrator) fetch(ctx context.Context, op, rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return o.client.doRequest(ctx, op, req)
}

// firstManifestLine returns the first non-comment, non-empty line of an
// m3u8 playlist — the session URL path, per media.rs's parsing.
func firstManifestLine(resp *http.Response) (string, error) {
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("upstream: no session URL in transcode manifest")
}

// NewTranscodeSessionID mints a fresh session id for a Decide call, using
// the same id source as room/session identifiers elsewhere in the
// coordinator.
func NewTranscodeSessionID() string {
	return uuid.New().String()
}
