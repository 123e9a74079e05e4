package headless

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

func TestNewChromedpValidationAndDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{ViewportWidth: -1})
	require.Error(t, err)
	_, err = NewChromedp(Config{SettleDelay: -time.Second})
	require.Error(t, err)

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, DefaultUserAgent, f.cfg.UserAgent)
	assert.Equal(t, 1920, f.cfg.ViewportWidth)
	assert.Equal(t, 1080, f.cfg.ViewportHeight)
}

func TestNavTimeoutPrecedence(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	assert.Equal(t, 60*time.Second, f.navTimeout(0))
	f.cfg.NavigationTimeout = 10 * time.Second
	assert.Equal(t, 10*time.Second, f.navTimeout(0))
	assert.Equal(t, time.Second, f.navTimeout(time.Second))
}

func TestStartWithoutBrowserIsSessionUnavailable(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{ExecPath: filepath.Join(t.TempDir(), "no-chrome")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	err = f.Start(context.Background())
	require.ErrorIs(t, err, ingest.ErrSessionUnavailable)

	_, err = f.Open(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ingest.ErrSessionUnavailable)
	assert.True(t, ingest.IsFatal(err))
}

func TestOpenAfterCloseIsSessionUnavailable(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Open(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ingest.ErrSessionUnavailable)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	url := "https://example.com/creator"
	assert.ErrorIs(t, classify(url, phaseNavigate, context.DeadlineExceeded), ingest.ErrNavigationTimeout)
	assert.ErrorIs(t, classify(url, phaseNavigate, errors.New("net::ERR_NAME_NOT_RESOLVED")), ingest.ErrResourceUnavailable)
	assert.ErrorIs(t, classify(url, phaseReady, context.DeadlineExceeded), ingest.ErrContentNotReady)
	assert.ErrorIs(t, classify(url, phaseCapture, errors.New("node not found")), ingest.ErrContentNotReady)

	var fe *ingest.FetchError
	require.ErrorAs(t, classify(url, phaseNavigate, context.DeadlineExceeded), &fe)
	assert.Equal(t, url, fe.URL)
	assert.ErrorIs(t, fe, context.DeadlineExceeded)
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://cdn.example.com/missing.jpg",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:   203,
			URL:      "https://example.com/rendered",
			MimeType: "text/html",
		},
	})
	status, url, mime := meta.snapshotWithFallbacks("https://req", "")
	assert.Equal(t, 203, status)
	assert.Equal(t, "https://example.com/rendered", url)
	assert.Equal(t, "text/html", mime)

	status, url, _ = meta.snapshotWithFallbacks("https://req", "https://example.com/after-redirect")
	assert.Equal(t, 203, status)
	assert.Equal(t, "https://example.com/after-redirect", url)

	status, url, mime = newResponseMeta().snapshotWithFallbacks("https://req", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://req", url)
	assert.Equal(t, "text/html", mime)
}

func TestNoopFetcherIsSessionUnavailable(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Open(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ingest.ErrSessionUnavailable)
}
