// Package monitor serves the local observability endpoint: Prometheus
// metrics, a health probe and a rendered status page.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/store"
	"git.home.luguber.info/inful/pakctl/internal/version"
)

// Snapshotter provides the package states shown on the status page.
type Snapshotter interface {
	Snapshot() map[string]store.State
}

// Server is the monitoring HTTP server.
type Server struct {
	addr       string
	snapshots  Snapshotter
	registry   *prom.Registry
	httpServer *http.Server
}

// New creates a monitor server. registry may be nil when only the status
// page is wanted.
func New(addr string, snapshots Snapshotter, registry *prom.Registry) *Server {
	return &Server{
		addr:      addr,
		snapshots: snapshots,
		registry:  registry,
	}
}

// Handler builds the monitor's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	if s.registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(s.registry))
	}
	return mux
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("Starting monitor server", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Monitor server failed", logfields.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("Stopping monitor server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleStatus renders the tracked-package table as HTML. The page is
// composed as Markdown first so `curl -H "Accept: text/markdown"` gets a
// terminal-friendly rendition of the same content.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	md := s.statusMarkdown()

	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		http.Error(w, "failed to render status page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) statusMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# pakctl status\n\nVersion %s\n\n", version.Version)

	if s.snapshots == nil {
		b.WriteString("No packages tracked.\n")
		return b.String()
	}
	snapshot := s.snapshots.Snapshot()
	if len(snapshot) == 0 {
		b.WriteString("No packages tracked.\n")
		return b.String()
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := snapshot[name]
		fmt.Fprintf(&b, "## %s\n\n", name)
		switch st.Phase {
		case store.PhaseLoading:
			b.WriteString("- state: loading\n")
		case store.PhaseFailed:
			fmt.Fprintf(&b, "- state: failed (%v)\n", st.Err)
		default:
			rec := st.Record
			fmt.Fprintf(&b, "- installed: %t\n", rec.Installed())
			if rec.Installed() {
				local := rec.Local.Unwrap()
				fmt.Fprintf(&b, "- version: %s (rev %s)\n", local.Version, local.Revision)
			}
			if rec.SelectedChannel != "" {
				fmt.Fprintf(&b, "- channel: %s\n", rec.SelectedChannel)
			}
			fmt.Fprintf(&b, "- update available: %t\n", rec.HasUpdate)
			if rec.ActiveChangeID != "" {
				fmt.Fprintf(&b, "- change in flight: %s\n", rec.ActiveChangeID)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
