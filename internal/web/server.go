// Package web serves the small HTTP surface next to the chat interface:
// a liveness probe, signed share-link downloads and a server-sent event
// feed of tree changes.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/events"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/paths"
	"github.com/archivist/archivist/internal/share"
	"github.com/archivist/archivist/internal/storage/disk"
)

// NodeSource is the read-only store slice the server needs.
type NodeSource interface {
	GetNode(ctx context.Context, path string) (*domain.Node, error)
}

// Server is the HTTP sidecar.
type Server struct {
	res         *paths.Resolver
	store       NodeSource
	disk        *disk.Disk
	signer      *share.Signer
	broadcaster *events.Broadcaster

	httpServer *http.Server
}

// NewServer assembles the sidecar. signer and broadcaster may be nil;
// the corresponding endpoints then answer 404.
func NewServer(res *paths.Resolver, store NodeSource, d *disk.Disk, signer *share.Signer, broadcaster *events.Broadcaster) *Server {
	return &Server{res: res, store: store, disk: d, signer: signer, broadcaster: broadcaster}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleAlive)
	mux.HandleFunc("GET /health", s.handleAlive)
	mux.HandleFunc("GET /d/{token}", s.handleShareDownload)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           logging.Middleware(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info("http server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "alive")
}

// handleShareDownload verifies the signed token and streams the file.
// Containment is re-checked here: a token is proof of issuance, not a
// bypass of the path boundary.
func (s *Server) handleShareDownload(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil || !s.signer.Enabled() {
		http.NotFound(w, r)
		return
	}

	rel, err := s.signer.Verify(r.PathValue("token"))
	if err != nil {
		metrics.RecordShareDownload(false)
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	}

	abs, err := s.res.Abs(rel)
	if err != nil {
		metrics.RecordShareDownload(false)
		logging.Error("share token resolved outside the files root",
			zap.String("rel", rel), zap.Error(err))
		http.Error(w, "invalid link", http.StatusForbidden)
		return
	}

	node, err := s.store.GetNode(r.Context(), abs)
	if err != nil || node.IsFolder {
		metrics.RecordShareDownload(false)
		http.NotFound(w, r)
		return
	}

	body, size, err := s.disk.Open(abs)
	if err != nil {
		metrics.RecordShareDownload(false)
		logging.Error("share download failed to open file", zap.String("path", abs), zap.Error(err))
		http.Error(w, "file unavailable", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(filepath.Ext(node.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+node.Name+`"`)
	if _, err := io.Copy(w, body); err != nil {
		logging.Debug("share download aborted", zap.String("path", abs), zap.Error(err))
		return
	}
	metrics.RecordShareDownload(true)
}

// handleEvents streams tree changes as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
