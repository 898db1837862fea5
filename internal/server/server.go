// Package server implements the HTTP front end of the converter: an upload
// form, the conversion endpoint that returns a ZIP of WebP files, and a
// liveness probe for the container runtime.
//
// Routing uses github.com/gorilla/mux, flash messages travel in a signed
// cookie managed by github.com/gorilla/sessions, and every request is
// logged through github.com/sirupsen/logrus.
package server

import (
	"context"
	"embed"
	"encoding/gob"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/convert"
	"github.com/addiskers/webp/internal/model"
)

const (
	// readHeaderTimeout bounds how long a client may take to send headers.
	readHeaderTimeout = 10 * time.Second

	// shutdownTimeout bounds graceful shutdown. In-flight conversions get
	// this long to finish after the context is cancelled.
	shutdownTimeout = 30 * time.Second

	// multipartMemory is how much of a multipart body is kept in memory
	// before parts spill to temporary files.
	multipartMemory = 32 << 20
)

//go:embed templates/*.html
var templateFS embed.FS

func init() {
	// Flash values are gob-encoded into the session cookie.
	gob.Register(model.Flash{})
}

// Server serves the converter UI and API.
type Server struct {
	cfg    *config.Config
	log    *logrus.Entry
	store  sessions.Store
	tmpl   *template.Template
	router *mux.Router

	// now is the clock used for archive names; tests pin it.
	now func() time.Time
}

// New creates a Server from cfg. The logger receives one line per request
// plus conversion summaries.
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	store := sessions.NewCookieStore([]byte(cfg.SecretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		cfg:   cfg,
		log:   logger.WithField("component", "server"),
		store: store,
		tmpl:  tmpl,
		now:   time.Now,
	}
	s.router = s.routes()
	return s, nil
}

// routes registers every endpoint. Methods not listed for a path get a 405
// from mux.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet).Name("index")
	r.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost).Name("convert")
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet).Name("healthz")
	return r
}

// Handler returns the root HTTP handler. The access log wraps the router
// rather than being mux middleware so that 404 and 405 responses are
// logged too.
func (s *Server) Handler() http.Handler {
	return s.accessLog(s.router)
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return model.WrapCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("failed to listen on %s", s.cfg.Addr()), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// convertOptions derives encoder settings from the configuration.
func (s *Server) convertOptions() convert.Options {
	return convert.Options{
		Quality:  float32(s.cfg.Quality),
		Lossless: s.cfg.Lossless,
		Workers:  s.cfg.Workers,
	}
}
