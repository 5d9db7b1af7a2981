// Package api provides the HTTP server and handlers.
package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/query"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/ratelimit"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/serving"
	"github.com/MabelMoncy/EduCrateNoteHub/webapp"
)

// Pool gzip writers to reduce allocations on JSON listings.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Options configures the HTTP surface.
type Options struct {
	// ProviderType is reported by /health.
	ProviderType string
	// FolderCacheMaxAge is the Cache-Control max-age for /api/folders, in seconds.
	FolderCacheMaxAge int
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// FrameSources are origins the viewer iframe may load after a redirect.
	FrameSources []string
	// WebappDir overrides the embedded assets, for front-end development.
	WebappDir string
}

// Server is the HTTP server.
type Server struct {
	engine  *serving.Engine
	limiter ratelimit.Counter
	opts    Options
}

// NewServer creates a new server. A nil limiter disables rate limiting.
func NewServer(engine *serving.Engine, limiter ratelimit.Counter, opts Options) *Server {
	return &Server{
		engine:  engine,
		limiter: limiter,
		opts:    opts,
	}
}

// Handler returns the HTTP handler with logging, metrics, CORS and security
// header middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	api := func(h http.HandlerFunc) http.Handler {
		if s.limiter == nil {
			return h
		}
		return ratelimit.Middleware(s.limiter, ratelimit.ClientKey)(h)
	}
	mux.Handle("GET /api/folders", api(s.handleFolders))
	mux.Handle("GET /api/files/{folderId}", api(s.handleFiles))
	mux.Handle("GET /api/search", api(s.handleSearch))
	mux.Handle("GET /api/view/{fileId}", api(s.handleView))
	mux.Handle("GET /api/download/{fileId}", api(s.handleDownload))
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusNotFound, "Not found")
	})

	// WEBAPP_DIR overrides embedded assets for live-reload during development
	var appHandler http.Handler
	if s.opts.WebappDir != "" {
		logging.Info("serving webapp from disk", zap.String("dir", s.opts.WebappDir))
		appHandler = http.FileServer(http.Dir(s.opts.WebappDir))
	} else {
		appFS, _ := fs.Sub(webapp.Assets, ".")
		appHandler = http.FileServer(http.FS(appFS))
	}
	mux.Handle("GET /", appHandler)

	// metrics sits directly on the mux so it can read the matched pattern
	var h http.Handler = metrics.Middleware(mux)
	h = readOnlyAPI(h)
	h = logging.Middleware(h)
	h = corsMiddleware(s.opts.AllowedOrigins)(h)
	return securityHeaders(s.opts.FrameSources)(h)
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "provider": s.opts.ProviderType})
}

// ─── Listings ───────────────────────────────────────────────────────────────

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.engine.ListFolders(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to retrieve folders")
		return
	}
	if s.opts.FolderCacheMaxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(s.opts.FolderCacheMaxAge))
	}
	sendData(w, r, folders)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.engine.ListFiles(r.Context(), r.PathValue("folderId"))
	if err != nil {
		if errors.Is(err, serving.ErrInvalidIdentifier) {
			sendError(w, r, http.StatusBadRequest, "Invalid folder ID")
			return
		}
		s.fail(w, r, err, "Failed to retrieve files")
		return
	}
	sendData(w, r, files)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	files, err := s.engine.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, query.ErrQueryTooLong) {
			sendError(w, r, http.StatusBadRequest, "Query too long")
			return
		}
		s.fail(w, r, err, "Search failed")
		return
	}
	sendData(w, r, files)
}

// ─── Content ────────────────────────────────────────────────────────────────

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ResolveView(r.Context(), r.PathValue("fileId"))
	s.serveResolution(w, r, res, err)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ResolveDownload(r.Context(), r.PathValue("fileId"))
	s.serveResolution(w, r, res, err)
}

func (s *Server) serveResolution(w http.ResponseWriter, r *http.Request, res *serving.Resolution, err error) {
	if err != nil {
		if errors.Is(err, serving.ErrInvalidIdentifier) {
			sendError(w, r, http.StatusBadRequest, "Invalid file ID")
			return
		}
		s.fail(w, r, err, "Failed to load file")
		return
	}

	if res.IsRedirect() {
		http.Redirect(w, r, res.Redirect, http.StatusFound)
		return
	}
	defer res.Body.Close()

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", res.ContentDisposition)
	w.Header().Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, res.Body)
	if err != nil {
		logging.WithContext(r.Context()).Warn("content transfer error",
			zap.String("path", r.URL.Path),
			zap.Int64("bytes", n),
			zap.Error(err))
	}
	metrics.RecordStream(n, err == nil)
}

// ─── Responses ──────────────────────────────────────────────────────────────

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// fail logs the internal cause and sends a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	logging.WithContext(r.Context()).Error(message,
		zap.String("path", r.URL.Path),
		zap.Error(err))
	sendError(w, r, http.StatusInternalServerError, message)
}

func sendData(w http.ResponseWriter, r *http.Request, data any) {
	sendJSON(w, r, http.StatusOK, dataResponse{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	sendJSON(w, r, code, errorResponse{Success: false, Error: message})
}

func sendJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")

	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(v)
		gw.Close()
		gzipPool.Put(gw)
		return
	}

	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
