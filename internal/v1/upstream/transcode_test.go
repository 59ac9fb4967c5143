package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitrateForQualityTable(t *testing.T) {
	assert.Equal(t, "20000", bitrateForQuality("4k"))
	assert.Equal(t, "10000", bitrateForQuality("1080p"))
	assert.Equal(t, "10000", bitrateForQuality("1080"))
	assert.Equal(t, "4000", bitrateForQuality("720p"))
	assert.Equal(t, "1500", bitrateForQuality("480p"))
	assert.Equal(t, "200000", bitrateForQuality("original"))
	assert.Equal(t, "10000", bitrateForQuality("unknown"))
	assert.Equal(t, "10000", bitrateForQuality(""))
}

func TestDecideDirectPlayShortCircuits(t *testing.T) {
	c := NewClient(Config{MediaServerURL: "http://pms.local"}, t.Name())
	o := NewOrchestrator(c)

	result, err := o.Decide(context.Background(), TranscodeRequest{
		MediaID:     "123",
		ServerToken: "tok",
	}, true, "/library/parts/456/file.mkv")
	require.NoError(t, err)
	assert.Equal(t, "http://pms.local/library/parts/456/file.mkv?X-Plex-Token=tok", result.URL)
}

func TestDecideCallsDecisionThenStart(t *testing.T) {
	var hits []string
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if r.URL.Path == "/video/:/transcode/universal/decision" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:7\nsession/abc/index.m3u8\n"))
	}))
	defer media.Close()

	c := NewClient(Config{MediaServerURL: media.URL}, t.Name())
	o := NewOrchestrator(c)

	result, err := o.Decide(context.Background(), TranscodeRequest{
		MediaID:          "123",
		Quality:          "720p",
		ServerToken:      "tok",
		SessionID:        "session-id",
		ClientIdentifier: "tab-1",
	}, false, "")
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "/video/:/transcode/universal/decision", hits[0])
	assert.Equal(t, "/video/:/transcode/universal/start.m3u8", hits[1])
	assert.Equal(t, media.URL+"/video/:/transcode/universal/session/abc/index.m3u8", result.URL)
}

func TestDecideReturnsAbsoluteSessionURLUnmodified(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\nhttps://cdn.example.com/session/xyz.m3u8\n"))
	}))
	defer media.Close()

	c := NewClient(Config{MediaServerURL: media.URL}, t.Name())
	o := NewOrchestrator(c)

	result, err := o.Decide(context.Background(), TranscodeRequest{
		MediaID:     "123",
		ServerToken: "tok",
		SessionID:   "session-id",
	}, false, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/session/xyz.m3u8", result.URL)
}

func TestDecideStartFailureReturnsError(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer media.Close()

	c := NewClient(Config{MediaServerURL: media.URL}, t.Name())
	o := NewOrchestrator(c)

	_, err := o.Decide(context.Background(), TranscodeRequest{MediaID: "123", ServerToken: "tok"}, false, "")
	assert.Error(t, err)
}

func TestNewTranscodeSessionIDIsUnique(t *testing.T) {
	a := NewTranscodeSessionID()
	b := NewTranscodeSessionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
