package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scripthost-labs/scripthost-go/internal/notify"
	"github.com/scripthost-labs/scripthost-go/internal/platform/metrics"
	"github.com/scripthost-labs/scripthost-go/internal/policy"
	"github.com/scripthost-labs/scripthost-go/internal/scriptstore"
	"github.com/scripthost-labs/scripthost-go/internal/token"
)

// Failure bodies on the execute path stay syntactically inert Lua so a
// caller that blindly loadstrings the response never crashes on an
// error page.
const (
	sentinelNotFound = "-- Script not found"
	sentinelError    = "-- Error loading script"
)

const (
	notifyTimeout = 5 * time.Second
	auditTimeout  = 750 * time.Millisecond
)

type scriptHostAPI struct {
	logger   *slog.Logger
	store    scriptstore.Store
	tokens   *token.Generator
	notifier notify.Notifier
	metrics  metrics.Metrics
	policy   policy.Policy
	baseURL  string
	auditDB  *sql.DB
}

func newScriptHostAPI(logger *slog.Logger, store scriptstore.Store, tokens *token.Generator, notifier notify.Notifier, m metrics.Metrics, pol policy.Policy, baseURL string, auditDB *sql.DB) *scriptHostAPI {
	return &scriptHostAPI{
		logger:   logger,
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		metrics:  m,
		policy:   pol,
		baseURL:  strings.TrimRight(baseURL, "/"),
		auditDB:  auditDB,
	}
}

func (api *scriptHostAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload", api.handleUpload)
	mux.HandleFunc("GET /scripts/{id}/execute", api.handleExecute)
	mux.HandleFunc("POST /scripts/{id}/view", api.handleView)
}

// handleExecute is the anonymous read path. Every outcome, including a
// panic, degrades to plain inert text because its callers execute the
// body without error handling.
func (api *scriptHostAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if v := recover(); v != nil {
			api.logger.Error("execute panic recovered", "panic", v)
			api.metrics.IncExecute("error")
			writeLua(w, http.StatusInternalServerError, sentinelError)
		}
	}()

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		api.metrics.IncExecute("not_found")
		writeLua(w, http.StatusNotFound, sentinelNotFound)
		return
	}

	record, err := api.store.Get(r.Context(), id)
	if errors.Is(err, scriptstore.ErrNotFound) {
		api.metrics.IncExecute("not_found")
		writeLua(w, http.StatusNotFound, sentinelNotFound)
		return
	}
	if err != nil {
		api.logger.Error("execute fetch failed", "script_id", id, "error", err)
		api.metrics.IncExecute("error")
		writeLua(w, http.StatusInternalServerError, sentinelError)
		return
	}

	body, err := scriptstore.ExecutionProjection(record)
	if err != nil {
		api.logger.Error("execute decode failed", "script_id", id, "error", err)
		api.metrics.IncExecute("error")
		writeLua(w, http.StatusInternalServerError, sentinelError)
		return
	}

	api.metrics.IncExecute("ok")
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type viewRequest struct {
	OwnerKey string `json:"ownerKey"`
}

// handleView is the authenticated read path. The owner key comparison
// here is the sole authorization gate in the system; mismatches are
// rejected before any script content is decoded.
func (api *scriptHostAPI) handleView(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		api.metrics.IncView("not_found")
		api.writeError(w, r, http.StatusNotFound, "script_not_found")
		return
	}

	var req viewRequest
	if err := decodeJSON(r, &req, 1<<16); err != nil {
		api.metrics.IncView("bad_request")
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.OwnerKey) == "" {
		api.metrics.IncView("bad_request")
		api.writeError(w, r, http.StatusBadRequest, "owner_key_required")
		return
	}

	record, err := api.store.Get(r.Context(), id)
	if errors.Is(err, scriptstore.ErrNotFound) {
		api.metrics.IncView("not_found")
		api.writeError(w, r, http.StatusNotFound, "script_not_found")
		return
	}
	if err != nil {
		api.logger.Error("view fetch failed", "script_id", id, "error", err)
		api.metrics.IncView("error")
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	view, err := scriptstore.OwnerProjection(record, req.OwnerKey)
	if errors.Is(err, scriptstore.ErrKeyMismatch) {
		api.metrics.IncView("forbidden")
		api.writeError(w, r, http.StatusForbidden, "invalid_owner_key")
		return
	}
	if err != nil {
		api.logger.Error("view decode failed", "script_id", id, "error", err)
		api.metrics.IncView("error")
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.metrics.IncView("ok")
	api.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"script":    view.Script,
		"filename":  view.Filename,
		"createdAt": view.CreatedAt,
	})
}

func (api *scriptHostAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(body); err != nil {
		api.logger.Error("write response", "error", err)
	}
}

func (api *scriptHostAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func writeLua(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func decodeJSON(r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}
