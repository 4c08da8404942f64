// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// Logged reports whether any level recorded msg.
func (l *DummyLogger) Logged(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range [][]string{l.Errors, l.Infos, l.Debugs, l.Warns} {
		for _, m := range set {
			if m == msg {
				return true
			}
		}
	}
	return false
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient serves Bodies[url] with status 200 and 404 for anything
// else. URLs in FailURLs fail at the transport level. Every request is kept
// in Requests.
type DummyWebClient struct {
	Bodies   map[string]string
	FailURLs map[string]bool

	mu       sync.Mutex
	Requests []string
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req.URL)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, &errString{"dummy transport failure for " + req.URL}
	}
	resp := &webclient.Response{
		Request:    req,
		StatusCode: 404,
		FinalURL:   req.URL,
		Secure:     strings.HasPrefix(req.URL, "https://"),
		FetchedAt:  time.Now(),
	}
	if body, ok := d.Bodies[req.URL]; ok {
		resp.StatusCode = 200
		resp.Body = []byte(body)
	}
	return resp, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// ─── Capturer ──────────────────────────────────────────────────────────

// DummyCapturer implements capture.Capturer by parsing HTML[url]. Unknown
// URLs fail. Block, when set, holds every capture until it is closed or the
// context ends.
type DummyCapturer struct {
	HTML  map[string]string
	Block chan struct{}

	mu       sync.Mutex
	Captured []string
}

func (d *DummyCapturer) Capture(ctx context.Context, url string) (*page.PageState, []byte, error) {
	if d.Block != nil {
		select {
		case <-d.Block:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Captured = append(d.Captured, url)
	d.mu.Unlock()

	body, ok := d.HTML[url]
	if !ok {
		return nil, nil, &errString{"dummy capture fail for " + url}
	}
	p, err := page.FromHTML(url, []byte(body))
	if err != nil {
		return nil, nil, err
	}
	return p, []byte(body), nil
}

func (d *DummyCapturer) Close() error { return nil }

// ─── Classifier ────────────────────────────────────────────────────────

// DummyClassifier reports Results[imageURL], or nothing for unknown images.
type DummyClassifier struct {
	Results map[string]audit.ImageClassification
}

func (d *DummyClassifier) Classify(ctx context.Context, imageURL string) (audit.ImageClassification, error) {
	if err := ctx.Err(); err != nil {
		return audit.ImageClassification{}, err
	}
	return d.Results[imageURL], nil
}

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
