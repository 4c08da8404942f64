package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/webclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebClient(t *testing.T) webclient.WebClient {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop{}, nil)
	require.NoError(t, err)
	return wc
}

func TestHTTPClassifier_Classify(t *testing.T) {
	var got request
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"labels":[{"name":"office","confidence":0.4},{"name":"handshake","confidence":0.9},{"name":"noise","confidence":0.1}],"stock":true,"people":true}`)
	}))
	defer ts.Close()

	c, err := NewHTTPClassifier(Config{Endpoint: ts.URL, APIKey: "k", MinConfidence: 0.3}, newWebClient(t), nil)
	require.NoError(t, err)

	cls, err := c.Classify(context.Background(), "https://example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.jpg", got.ImageURL)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, []audit.ImageCharacteristic{audit.ImageStock, audit.ImagePeople}, cls.Characteristics)
	assert.Equal(t, []string{"handshake", "office"}, cls.Labels)
}

func TestHTTPClassifier_Errors(t *testing.T) {
	_, err := NewHTTPClassifier(Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoEndpoint)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/garbage":
			_, _ = io.WriteString(w, "not json")
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	defer ts.Close()

	for _, path := range []string{"/down", "/garbage"} {
		c, err := NewHTTPClassifier(Config{Endpoint: ts.URL + path}, newWebClient(t), nil)
		require.NoError(t, err)
		_, err = c.Classify(context.Background(), "https://example.com/a.jpg")
		assert.True(t, errors.Is(err, ErrService), "%s: %v", path, err)
	}

	c, err := NewHTTPClassifier(Config{Endpoint: ts.URL + "/slow", Timeout: 50 * time.Millisecond}, newWebClient(t), nil)
	require.NoError(t, err)
	start := time.Now()
	_, err = c.Classify(context.Background(), "https://example.com/a.jpg")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
