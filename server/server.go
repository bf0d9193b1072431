// Package server exposes the artifact persistence endpoint the admin
// back-office posts translated content to.
//
//	POST /api/translations  {content?, rawContent?, filename?, lang?}
//	GET  /healthz
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/lumenworks/sitetrans/artifact"
)

// TranslationsPath is the route of the persistence endpoint.
const TranslationsPath = "/api/translations"

// maxBodyBytes bounds a request body.
const maxBodyBytes = 16 << 20

// Options configures a Server.
type Options struct {
	// Token enables bearer authentication when non-empty.
	Token string
	// DefaultLang names the artifact when a request has neither filename
	// nor lang (default "en").
	DefaultLang string
	Logger      *zap.Logger
}

// Server handles artifact persistence requests.
type Server struct {
	store  artifact.Store
	opts   Options
	logger *zap.Logger
}

// New returns a server writing artifacts to store.
func New(store artifact.Store, opts Options) *Server {
	if opts.DefaultLang == "" {
		opts.DefaultLang = "en"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, opts: opts, logger: logger}
}

// Register mounts the routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST "+TranslationsPath, s.handleSave)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns a mux with the routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

type saveRequest struct {
	Content    any     `json:"content"`
	RawContent *string `json:"rawContent"`
	Filename   string  `json:"filename"`
	Lang       string  `json:"lang"`
}

// Validate requires content or rawContent and a safe filename.
func (r saveRequest) Validate() error {
	errs := validation.Errors{}
	if r.Content == nil && r.RawContent == nil {
		errs["content"] = validation.NewError("server.content_required", "content or rawContent is required")
	}
	if r.Filename != "" {
		if err := artifact.ValidName(r.Filename); err != nil {
			errs["filename"] = validation.NewError("server.filename_invalid", err.Error())
		}
	}
	if r.Lang != "" && strings.ContainsAny(r.Lang, `/\.`) {
		errs["lang"] = validation.NewError("server.lang_invalid", "lang must be a language code")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, artifact.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req saveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, artifact.ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, artifact.ErrorResponse{Error: err.Error()})
		return
	}

	filename := req.Filename
	if filename == "" {
		lang := req.Lang
		if lang == "" {
			lang = s.opts.DefaultLang
		}
		filename = lang + ".json"
	}

	var paths []string
	if req.Content != nil {
		receipt, err := s.store.PutArtifact(r.Context(), filename, req.Content)
		if err != nil {
			s.fail(w, filename, err)
			return
		}
		paths = append(paths, receipt.Path)
	}
	if req.RawContent != nil {
		rawName := artifact.RawName(filename)
		receipt, err := s.store.PutRaw(r.Context(), rawName, *req.RawContent)
		if err != nil {
			s.fail(w, rawName, err)
			return
		}
		paths = append(paths, receipt.Path)
	}

	s.logger.Info("artifact saved", zap.String("filename", filename), zap.Strings("paths", paths))
	writeJSON(w, http.StatusOK, artifact.Response{
		Success: true,
		Message: fmt.Sprintf("saved %s", filename),
		Paths:   paths,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, name string, err error) {
	s.logger.Error("artifact write failed", zap.String("filename", name), zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, artifact.ErrInvalidName) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, artifact.ErrorResponse{Error: err.Error()})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
