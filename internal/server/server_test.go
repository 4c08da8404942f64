package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/glimpse/internal/app"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/server"
	"github.com/raysh454/glimpse/internal/session"
	"github.com/raysh454/glimpse/internal/store"
	"github.com/raysh454/glimpse/internal/testutil"
)

const homeHTML = `<html><head><title>Home</title></head>` +
	`<body style="font-family:Arial;color:#222222;background-color:#ffffff">` +
	`<h1>Home</h1><p>Plain words for plain folk.</p><a href="/about">About</a></body></html>`

type harness struct {
	srv      *server.Server
	capturer *testutil.DummyCapturer
}

func newTestServer(t *testing.T) *harness {
	t.Helper()

	capt := &testutil.DummyCapturer{HTML: map[string]string{"https://site.example/": homeHTML}}
	logger := &testutil.DummyLogger{}
	orch, err := app.NewOrchestrator(app.DefaultConfig(), app.Deps{
		Repo:     store.NewMemoryRepository(),
		Capturer: capt,
		Sessions: session.NewRegistry(logger),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	s, err := server.NewServer(server.Config{ListenAddr: ":0", Logger: logger}, orch)
	require.NoError(t, err)
	return &harness{srv: s, capturer: capt}
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "body: %s", rec.Body.String())
}

// waitJob polls until the job leaves pending/running.
func waitJob(t *testing.T, s http.Handler, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, s, "GET", "/audits/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var job map[string]any
		decodeJSON(t, rec, &job)
		if st := job["status"]; st != "pending" && st != "running" {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return nil
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := doJSON(t, h.srv, "GET", "/audits", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doJSON(t, h.srv, "OPTIONS", "/audits/abc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
}

// ─── Audits ────────────────────────────────────────────────────────────

func TestServer_StartAudit(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := doJSON(t, h.srv, "POST", "/audits", `{"urls":["https://site.example/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job map[string]any
	decodeJSON(t, rec, &job)
	id, _ := job["id"].(string)
	require.NotEmpty(t, id)

	final := waitJob(t, h.srv, id)
	assert.Equal(t, "done", final["status"])
	summary, ok := final["summary"].(map[string]any)
	require.True(t, ok, "summary missing: %v", final)
	assert.Contains(t, summary, "overall")

	rec = doJSON(t, h.srv, "GET", "/audits", "")
	var jobs []map[string]any
	decodeJSON(t, rec, &jobs)
	assert.Len(t, jobs, 1)
}

func TestServer_StartAudit_SuppliedPage(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	p, err := page.FromHTML("https://other.example/", []byte(homeHTML))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"pages": []*page.PageState{p}, "rules": []string{"titles"}})
	require.NoError(t, err)

	rec := doJSON(t, h.srv, "POST", "/audits", string(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job map[string]any
	decodeJSON(t, rec, &job)

	final := waitJob(t, h.srv, job["id"].(string))
	assert.Equal(t, "done", final["status"])
	assert.Empty(t, h.capturer.Captured)
}

func TestServer_StartAudit_BadRequests(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	cases := []struct {
		body string
		want int
	}{
		{`{invalid}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"urls":["https://site.example/"],"design_system":{"compliance_level":"AAAA"}}`, http.StatusBadRequest},
		{`{"urls":["https://site.example/"],"session_id":"missing"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		rec := doJSON(t, h.srv, "POST", "/audits", c.body)
		assert.Equal(t, c.want, rec.Code, c.body)
		var e server.ErrorResponse
		decodeJSON(t, rec, &e)
		assert.NotEmpty(t, e.Error)
	}
}

func TestServer_GetAndCancelUnknownJob(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h.srv, "GET", "/audits/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h.srv, "DELETE", "/audits/nope", "").Code)
}

func TestServer_CompareAudits(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	start := func() string {
		rec := doJSON(t, h.srv, "POST", "/audits", `{"urls":["https://site.example/"]}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var job map[string]any
		decodeJSON(t, rec, &job)
		return job["id"].(string)
	}
	base, head := start(), start()
	require.Equal(t, "done", waitJob(t, h.srv, base)["status"])
	require.Equal(t, "done", waitJob(t, h.srv, head)["status"])

	rec := doJSON(t, h.srv, "GET", "/audits/"+base+"/diff/"+head, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d map[string]any
	decodeJSON(t, rec, &d)
	assert.Equal(t, d["base_overall"], d["head_overall"])
	assert.Equal(t, 0.0, d["delta"])
	assert.NotEmpty(t, d["changes"])

	rec = doJSON(t, h.srv, "GET", "/audits/"+base+"/diff/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.capturer.Block = make(chan struct{})
	pending := start()
	rec = doJSON(t, h.srv, "GET", "/audits/"+base+"/diff/"+pending, "")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	doJSON(t, h.srv, "DELETE", "/audits/"+pending, "")
	waitJob(t, h.srv, pending)
}

func TestServer_CancelAudit(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	h.capturer.Block = make(chan struct{})

	rec := doJSON(t, h.srv, "POST", "/audits", `{"urls":["https://site.example/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job map[string]any
	decodeJSON(t, rec, &job)
	id := job["id"].(string)

	assert.Equal(t, http.StatusNoContent, doJSON(t, h.srv, "DELETE", "/audits/"+id, "").Code)
	assert.Equal(t, "canceled", waitJob(t, h.srv, id)["status"])
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_AuditWebSocket(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	h.capturer.Block = make(chan struct{})
	ts := httptest.NewServer(h.srv)
	defer ts.Close()

	rec := doJSON(t, h.srv, "POST", "/audits", `{"urls":["https://site.example/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job map[string]any
	decodeJSON(t, rec, &job)
	id := job["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/audits/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, id, first["id"])

	close(h.capturer.Block)

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var last map[string]any
	types := map[string]bool{}
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if tp, ok := msg["type"].(string); ok {
			types[tp] = true
		}
		last = msg
	}
	require.NotNil(t, last)
	assert.Equal(t, "done", last["status"], "final snapshot: %v", last)
	assert.True(t, types["progress"], "no progress events in %v", types)
}

func TestServer_AuditWebSocket_UnknownJob(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	rec := doJSON(t, h.srv, "GET", "/ws/audits/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ─── Sessions & journeys ───────────────────────────────────────────────

func TestServer_SessionJourneyFlow(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := doJSON(t, h.srv, "POST", "/sessions", `{"name":"signup","design_system":{"compliance_level":"AAA"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var info session.Info
	decodeJSON(t, rec, &info)
	require.NotEmpty(t, info.ID)
	assert.Equal(t, "AAA", string(info.Design.ComplianceLevel))

	p, err := page.FromHTML("https://site.example/", []byte(homeHTML))
	require.NoError(t, err)
	steps := `{"steps":[{"kind":"landing","start":{"key":"` + p.Key() + `","url":"https://site.example/"}},` +
		`{"kind":"redirect","origin":"https://site.example/go?x=1","urls":["https://site.example/about"]}]}`

	rec = doJSON(t, h.srv, "POST", "/sessions/"+info.ID+"/journeys", steps)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res app.JourneyResult
	decodeJSON(t, rec, &res)
	assert.Equal(t, 2, res.NewSteps)
	require.NotEmpty(t, res.Key)

	rec = doJSON(t, h.srv, "POST", "/sessions/"+info.ID+"/journeys", steps)
	require.Equal(t, http.StatusOK, rec.Code)
	var dup app.JourneyResult
	decodeJSON(t, rec, &dup)
	assert.True(t, dup.Duplicate)

	rec = doJSON(t, h.srv, "GET", "/records/"+res.Key+"?rel="+store.RelHasStep, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got server.RecordResponse
	decodeJSON(t, rec, &got)
	assert.Equal(t, res.Key, got.Record.Key)
	assert.Len(t, got.Children, 2)

	rec = doJSON(t, h.srv, "GET", "/sessions", "")
	var infos []session.Info
	decodeJSON(t, rec, &infos)
	assert.Len(t, infos, 1)

	assert.Equal(t, http.StatusNoContent, doJSON(t, h.srv, "DELETE", "/sessions/"+info.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h.srv, "DELETE", "/sessions/"+info.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h.srv, "POST", "/sessions/"+info.ID+"/journeys", steps).Code)
}

func TestServer_RecordJourney_BadSteps(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := doJSON(t, h.srv, "POST", "/sessions", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var info session.Info
	decodeJSON(t, rec, &info)

	for _, body := range []string{
		`{invalid}`,
		`{"steps":[]}`,
		`{"steps":[{"kind":"landing","start":{"key":"page:short"}}]}`,
		`{"steps":[{"kind":"simple"}]}`,
	} {
		rec := doJSON(t, h.srv, "POST", "/sessions/"+info.ID+"/journeys", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServer_Records_NotFound(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	rec := doJSON(t, h.srv, "GET", "/records/page:"+strings.Repeat("0", 64), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ─── Swagger ───────────────────────────────────────────────────────────

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	rec := doJSON(t, h.srv, "GET", "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	decodeJSON(t, rec, &doc)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/audits")
	assert.Contains(t, paths, "/sessions/{id}/journeys")
	assert.Contains(t, paths, "/audits/{baseID}/diff/{headID}")
}
