// Package statuspage serves a small plain-text operator status page plus
// the Prometheus scrape endpoint on one HTTP listener. Grounded on the
// teacher's internal/news package for the status-page shape (single
// embedded text/template, CRLF-normalized output) and on gobfd's
// cmd/gobfd/main.go newMetricsServer for mounting promhttp alongside it.
package statuspage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv *http.Server
}

// Start serves "/" (the plain-text status page, rendered from provider on
// every request) and, when reg is non-nil, "/metrics" (Prometheus
// exposition format) on addr.
func Start(ctx context.Context, addr string, provider func() Data, reg prometheus.Gatherer) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("statuspage addr is empty")
	}

	tmpl, err := loadTemplate()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		var data Data
		if provider != nil {
			data = provider()
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			http.Error(w, "Status Template Error", http.StatusInternalServerError)
			return
		}

		body := ensureCRLF(buf.String())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})

	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ps := &Server{srv: s}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	go func() { _ = s.ListenAndServe() }()
	return ps, nil
}

func ensureCRLF(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	return s
}
