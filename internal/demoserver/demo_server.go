// Package demoserver serves a small versioned website to run audits against.
// Switching a page to a later version introduces usability regressions.
package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"sync"
)

// DemoServer is a simple HTTP server with switchable page versions.
type DemoServer struct {
	cfg      Config
	pages    map[string]PageDefinition
	versions map[string]int // path -> current version
	mu       sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.InitialVersion < 1 {
		cfg.InitialVersion = 1
	}
	pageMap := make(map[string]PageDefinition)
	versions := make(map[string]int)
	for _, p := range GetAllPages() {
		pageMap[p.Path] = p
		versions[p.Path] = cfg.InitialVersion
	}

	return &DemoServer{
		cfg:      cfg,
		pages:    pageMap,
		versions: versions,
	}
}

// Handler returns the demo site's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for path := range s.pages {
		if path == "/" {
			mux.HandleFunc("/{$}", s.pageHandler(path))
			continue
		}
		mux.HandleFunc(path, s.pageHandler(path))
	}

	// Control panel for version switching
	mux.HandleFunc("/demo/control", s.controlPanelHandler)
	mux.HandleFunc("/demo/set-version", s.setVersionHandler)
	mux.HandleFunc("/demo/get-versions", s.getVersionsHandler)
	mux.HandleFunc("/demo/bump-all", s.bumpAllVersionsHandler)
	mux.HandleFunc("/demo/reset", s.resetVersionsHandler)

	mux.HandleFunc("/static/", s.staticHandler)
	return mux
}

// Start serves the demo site until the listener fails.
func (s *DemoServer) Start() error {
	addr := s.cfg.Addr()
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// version returns the page's current version, falling back to the closest
// lower one that exists.
func (s *DemoServer) version(path string) (PageVersion, bool) {
	s.mu.RLock()
	def, ok := s.pages[path]
	v := s.versions[path]
	s.mu.RUnlock()
	if !ok {
		return PageVersion{}, false
	}
	for ; v >= 1; v-- {
		if pv, exists := def.Versions[v]; exists {
			return pv, true
		}
	}
	return PageVersion{}, false
}

func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pv, ok := s.version(path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		for k, v := range pv.Headers {
			w.Header().Set(k, v)
		}
		contentType := pv.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(pv.HTML))
	}
}

// pixel is a 1x1 transparent GIF served for every image.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

func (s *DemoServer) staticHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/gif")
	_, _ = w.Write(pixel)
}

type pageInfo struct {
	Path              string `json:"path"`
	Description       string `json:"description"`
	CurrentVersion    int    `json:"current_version"`
	AvailableVersions []int  `json:"available_versions"`
}

func (s *DemoServer) pageInfos() []pageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pageInfo, 0, len(s.pages))
	for path, def := range s.pages {
		versions := make([]int, 0, len(def.Versions))
		for v := range def.Versions {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		out = append(out, pageInfo{
			Path:              path,
			Description:       def.Description,
			CurrentVersion:    s.versions[path],
			AvailableVersions: versions,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

var controlPanel = template.Must(template.New("control").Parse(controlPanelHTML))

func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = controlPanel.Execute(w, s.pageInfos())
}

// setVersionHandler sets the version for a specific page.
func (s *DemoServer) setVersionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := r.FormValue("path")
	version, err := strconv.Atoi(r.FormValue("version"))
	if err != nil || version < 1 {
		http.Error(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.pages[path]
	if ok {
		s.versions[path] = version
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Unknown page", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{"success": true, "path": path, "version": version})
}

func (s *DemoServer) getVersionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pageInfos())
}

// bumpAllVersionsHandler increments the version of all pages, capped at the
// latest each page has.
func (s *DemoServer) bumpAllVersionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	for path := range s.versions {
		maxV := 1
		for v := range s.pages[path].Versions {
			if v > maxV {
				maxV = v
			}
		}
		if s.versions[path] < maxV {
			s.versions[path]++
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "message": "All versions bumped"})
}

func (s *DemoServer) resetVersionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	for path := range s.versions {
		s.versions[path] = 1
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "message": "All versions reset to 1"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Server Control Panel</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; background: #f5f5f5; color: #222; }
        .page-card { background: white; border-radius: 8px; padding: 16px; margin: 12px 0; }
        .page-path { font-weight: bold; color: #1d4ed8; }
        .page-desc { color: #444; margin: 6px 0; }
        button { padding: 6px 14px; margin-right: 6px; border: 1px solid #595959; border-radius: 4px; background: #fff; }
        button.active { background: #1d4ed8; color: #fff; }
    </style>
</head>
<body>
    <h1>Demo Server Control Panel</h1>
    <p>Switch page versions, then audit the site again to see the regressions show up.</p>
    <p>
        <button onclick="post('/demo/bump-all')">Bump all versions</button>
        <button onclick="post('/demo/reset')">Reset all to v1</button>
    </p>
    {{range .}}
    <div class="page-card">
        <a href="{{.Path}}" class="page-path" target="_blank">{{.Path}}</a>
        <div class="page-desc">{{.Description}}</div>
        {{$cur := .CurrentVersion}}{{$path := .Path}}
        {{range .AvailableVersions}}
        <button class="{{if eq $cur .}}active{{end}}" onclick="post('/demo/set-version', 'path={{$path}}&version={{.}}')">v{{.}}</button>
        {{end}}
    </div>
    {{end}}
    <script>
        function post(url, body) {
            fetch(url, {
                method: 'POST',
                headers: {'Content-Type': 'application/x-www-form-urlencoded'},
                body: body || ''
            }).then(() => location.reload());
        }
    </script>
</body>
</html>`
