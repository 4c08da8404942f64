package capture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/testutil"
	"github.com/raysh454/glimpse/internal/webclient"
)

const testHTML = `<html><head><title>Shop</title></head><body style="color:#333333">` +
	`<h1>Welcome</h1><a href="/cart">Cart</a></body></html>`

func newStatic(t *testing.T) *StaticCapturer {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop{}, nil)
	if err != nil {
		t.Fatalf("webclient: %v", err)
	}
	return NewStaticCapturer(wc, nil)
}

func TestStaticCapturer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, testHTML)
	})
	mux.HandleFunc("/gone", http.NotFound)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newStatic(t)
	p, raw, err := c.Capture(context.Background(), ts.URL+"/")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if p.Title() != "Shop" || p.Secure() {
		t.Errorf("title %q secure %v", p.Title(), p.Secure())
	}
	if string(raw) != testHTML {
		t.Errorf("raw html not returned unchanged")
	}
	h1 := p.ElementsByTag("h1")
	if len(h1) != 1 || h1[0].CSS("color") != "#333333" {
		t.Errorf("expected the inherited colour on h1, got %+v", h1)
	}

	if _, _, err := c.Capture(context.Background(), ts.URL+"/gone"); !errors.Is(err, ErrBadStatus) {
		t.Errorf("expected ErrBadStatus, got %v", err)
	}
}

func TestStaticCapturer_TransportOutcomes(t *testing.T) {
	wc := &testutil.DummyWebClient{
		Bodies:   map[string]string{"https://shop.example/": testHTML},
		FailURLs: map[string]bool{"https://shop.example/down": true},
	}
	c := NewStaticCapturer(wc, nil)
	ctx := context.Background()

	p, _, err := c.Capture(ctx, "https://shop.example/")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !p.Secure() || p.URL() != "https://shop.example/" {
		t.Errorf("secure %v url %q", p.Secure(), p.URL())
	}

	if _, _, err := c.Capture(ctx, "https://shop.example/missing"); !errors.Is(err, ErrBadStatus) {
		t.Errorf("missing page: expected ErrBadStatus, got %v", err)
	}
	if _, _, err := c.Capture(ctx, "https://shop.example/down"); err == nil || errors.Is(err, ErrBadStatus) {
		t.Errorf("transport failure: got %v", err)
	}
	if len(wc.Requests) != 3 {
		t.Errorf("requests = %v", wc.Requests)
	}
}

func TestNew_Backends(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := c.(*StaticCapturer); !ok {
		t.Errorf("default backend is %T", c)
	}
	if _, err := New(Config{Backend: "screenshot"}, nil, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestBuildPage(t *testing.T) {
	raw := []rawElement{
		{Tag: "HTML", Locator: "/html[1]"},
		{Tag: "body", Locator: "/html[1]/body[1]", CSS: map[string]string{"background-color": "rgb(255, 255, 255)"}},
		// rendered text can drop owned text, e.g. under text-transform
		{Tag: "p", Locator: "/html[1]/body[1]/p[1]", OwnedText: "Hello", AllText: "HELLO", Box: page.Box{W: 100, H: 20}},
	}
	p, err := buildPage("https://example.com/", "Example", raw)
	if err != nil {
		t.Fatalf("buildPage: %v", err)
	}
	if !p.Secure() || len(p.Elements()) != 3 {
		t.Fatalf("secure %v elements %d", p.Secure(), len(p.Elements()))
	}
	el, ok := p.Element("/html[1]/body[1]/p[1]")
	if !ok || el.OwnedText() != "Hello" || el.Box().W != 100 {
		t.Errorf("p = %+v", el.Spec())
	}
	parent, ok := p.Parent(el)
	if !ok || parent.CSS("background-color") != "rgb(255, 255, 255)" {
		t.Errorf("parent lookup failed")
	}

	dup := append(raw, rawElement{Tag: "p", Locator: "/html[1]/body[1]/p[1]"})
	if _, err := buildPage("https://example.com/", "", dup); !errors.Is(err, page.ErrInvalidPage) {
		t.Errorf("expected duplicate locators to be rejected, got %v", err)
	}
}

func TestChromeCapturer(t *testing.T) {
	if os.Getenv("GLIMPSE_TEST_CHROME") != "1" {
		t.Skip("set GLIMPSE_TEST_CHROME=1 to run browser captures")
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, testHTML)
	}))
	defer ts.Close()

	c, err := NewChromeCapturer(Config{Headless: true, IdleAfter: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewChromeCapturer: %v", err)
	}
	defer c.Close()

	p, raw, err := c.Capture(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if p.Title() != "Shop" || len(raw) == 0 {
		t.Errorf("title %q, %d bytes", p.Title(), len(raw))
	}
	h1 := p.ElementsByTag("h1")
	if len(h1) != 1 || h1[0].CSS("color") != "rgb(51, 51, 51)" {
		t.Errorf("computed colour missing: %+v", h1)
	}
}
