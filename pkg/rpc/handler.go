package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/dd0wney/cluso-filestore/pkg/auth"
	"github.com/dd0wney/cluso-filestore/pkg/health"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

// DefaultMaxUpload bounds request bodies carrying file content.
const DefaultMaxUpload = 256 << 20

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Tokens validates bearer tokens. With RequireToken set, file operations
	// and the system hash need a valid token.
	Tokens       *auth.TokenManager
	RequireToken bool
	MaxUpload    int64
	// Probes, when set, are served at /health/live and /health/ready.
	Probes  *health.Checker
	Logger  logging.Logger
	Metrics *metrics.Registry
}

type handler struct {
	svc       Service
	tokens    *auth.TokenManager
	maxUpload int64
	logger    logging.Logger
	metrics   *metrics.Registry
}

// NewHandler routes the RPC surface to svc.
func NewHandler(svc Service, opts HandlerOptions) http.Handler {
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	h := &handler{
		svc:       svc,
		tokens:    opts.Tokens,
		maxUpload: maxUpload,
		logger:    logging.OrDefault(opts.Logger).With(logging.Component("rpc")),
		metrics:   opts.Metrics,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods("GET").Name("health")
	if opts.Probes != nil {
		router.HandleFunc("/health/live", opts.Probes.LivenessHandler()).Methods("GET").Name("liveness")
		router.HandleFunc("/health/ready", opts.Probes.ReadinessHandler()).Methods("GET").Name("readiness")
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods("GET").Name("metrics")
	}

	public := router.PathPrefix("/rpc").Subrouter()
	public.HandleFunc("/login", h.login).Methods("POST").Name("login")
	public.HandleFunc("/accounts", h.createAccount).Methods("POST").Name("create_account")

	protected := router.PathPrefix("/rpc").Subrouter()
	protected.HandleFunc("/files", h.listFiles).Methods("GET").Name("list_files")
	protected.HandleFunc("/files/{name}", h.upload).Methods("PUT").Name("upload")
	protected.HandleFunc("/files/{name}", h.download).Methods("GET").Name("download")
	protected.HandleFunc("/files/{name}", h.deleteFile).Methods("DELETE").Name("delete_file")
	protected.HandleFunc("/files/{name}/append", h.editFile).Methods("POST").Name("edit_file")
	protected.HandleFunc("/hash", h.systemHash).Methods("GET").Name("get_system_hash")
	if opts.RequireToken {
		protected.Use(h.requireToken)
	}

	router.Use(h.observe)
	return router
}

// observe logs and measures every routed call, and forwards any bearer
// token through the request context.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		op := "unknown"
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			op = route.GetName()
		}
		if token := bearer(r); token != "" {
			r = r.WithContext(WithToken(r.Context(), token))
		}

		done := h.metrics.TrackInFlight()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		done()

		h.metrics.RecordRPC(op, strconv.Itoa(sw.status), time.Since(start))
		h.logger.Debug("rpc call",
			logging.Operation(op),
			logging.Int("status", sw.status),
			logging.Latency(time.Since(start)))
	})
}

func (h *handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := h.tokens.Validate(r.Context(), bearer(r)); err != nil {
			h.fail(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("encoding response failed", logging.Error(err))
	}
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	code, status := encodeError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("rpc failed", logging.String("code", code), logging.Error(err))
	}
	h.respondJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
}

func (h *handler) decodeCredentials(r *http.Request) (validation.CredentialsRequest, error) {
	var req validation.CredentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid request body: %v", validation.ErrInvalidRequest, err)
	}
	return req, nil
}

func (h *handler) readContent(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: content exceeds %d bytes", validation.ErrInvalidRequest, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: reading content: %v", validation.ErrInvalidRequest, err)
	}
	return data, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.CreateAccount(r.Context(), req.Username, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, okResponse{OK: true})
}

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ListFiles(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.respondJSON(w, http.StatusOK, filesResponse{Files: names})
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	data, err := h.readContent(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.Upload(r.Context(), mux.Vars(r)["name"], data); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) editFile(w http.ResponseWriter, r *http.Request) {
	data, err := h.readContent(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.EditFile(r.Context(), mux.Vars(r)["name"], data); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Download(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("writing download failed", logging.Error(err))
	}
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFile(r.Context(), mux.Vars(r)["name"]); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) systemHash(w http.ResponseWriter, r *http.Request) {
	hash, err := h.svc.GetSystemHash(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, hashResponse{Hash: hash})
}
