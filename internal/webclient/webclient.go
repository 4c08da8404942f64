// Package webclient is the HTTP access layer used to fetch pages and to call
// remote classification services.
package webclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrNilRequest     = errors.New("webclient: nil request")
	ErrBodyTooLarge   = errors.New("webclient: response body too large")
	ErrUnknownBackend = errors.New("webclient: unknown backend")
)

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Get(ctx context.Context, url string) (*Response, error)
	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	// FinalURL is the URL after redirects.
	FinalURL  string
	Secure    bool
	FetchedAt time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }
