package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/scripthost-labs/scripthost-go/internal/notify"
	"github.com/scripthost-labs/scripthost-go/internal/platform/auditlog"
	"github.com/scripthost-labs/scripthost-go/internal/platform/httpserver"
	"github.com/scripthost-labs/scripthost-go/internal/scriptstore"
)

type uploadRequest struct {
	Script   string `json:"script"`
	Filename string `json:"filename"`
}

// handleUpload accepts a script as JSON or as a multipart form, mints
// the ID and owner key, persists the record, and answers with the
// capability bundle. The record write is the only call the response
// waits on; notification and audit are dispatched and forgotten.
func (api *scriptHostAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Allow some envelope overhead beyond the script bound itself.
	maxBody := api.policy.MaxScriptBytes + (64 << 10)
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var (
		script   []byte
		filename string
	)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req uploadRequest
		if err := decodeJSON(r, &req, maxBody); err != nil {
			api.metrics.IncUpload("bad_request")
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		script = []byte(req.Script)
		filename = req.Filename
	} else {
		var err error
		script, filename, err = api.readMultipart(r)
		if err != nil {
			api.metrics.IncUpload("bad_request")
			api.writeError(w, r, http.StatusBadRequest, "invalid_multipart")
			return
		}
	}

	if len(script) == 0 {
		api.metrics.IncUpload("bad_request")
		api.writeError(w, r, http.StatusBadRequest, "script_required")
		return
	}
	if int64(len(script)) > api.policy.MaxScriptBytes {
		api.metrics.IncUpload("bad_request")
		api.writeError(w, r, http.StatusBadRequest, "script_too_large")
		return
	}

	filename = sanitizeFilename(filename, api.policy.DefaultFilename)
	if err := api.policy.CheckFilename(filename); err != nil {
		api.metrics.IncUpload("bad_request")
		api.writeError(w, r, http.StatusBadRequest, "filename_not_allowed")
		return
	}

	id, err := api.tokens.NewScriptID()
	if err != nil {
		api.logger.Error("script id generation failed", "error", err)
		api.metrics.IncUpload("error")
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	ownerKey, err := api.tokens.NewOwnerKey()
	if err != nil {
		api.logger.Error("owner key generation failed", "error", err)
		api.metrics.IncUpload("error")
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	now := time.Now().UTC()
	record := scriptstore.NewRecord(script, ownerKey, filename, now)
	if err := api.store.Put(r.Context(), id, record); err != nil {
		api.logger.Error("record write failed", "script_id", id, "error", err)
		api.metrics.IncUpload("error")
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.dispatchSideEffects(notify.Event{
		ScriptID:    id,
		OwnerKey:    ownerKey,
		Filename:    filename,
		ScriptBytes: len(script),
		OccurredAt:  now,
	}, requestID)

	executeURL := api.executeURL(r, id)
	api.metrics.IncUpload("ok")
	api.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"id":         id,
		"ownerKey":   ownerKey,
		"filename":   filename,
		"loadstring": fmt.Sprintf("loadstring(game:HttpGet(%q))()", executeURL),
		"executeUrl": executeURL,
	})
}

// readMultipart resolves script content from a form submission: an
// uploaded file wins over a pasted script field, matching the web UI.
func (api *scriptHostAPI) readMultipart(r *http.Request) ([]byte, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}

	var (
		fileContent  []byte
		fileName     string
		textContent  []byte
		formFilename string
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", err
		}
		switch part.FormName() {
		case "file":
			raw, err := io.ReadAll(io.LimitReader(part, api.policy.MaxScriptBytes+1))
			_ = part.Close()
			if err != nil {
				return nil, "", err
			}
			fileContent = raw
			fileName = part.FileName()
		case "script":
			raw, err := io.ReadAll(io.LimitReader(part, api.policy.MaxScriptBytes+1))
			_ = part.Close()
			if err != nil {
				return nil, "", err
			}
			textContent = raw
		case "filename":
			raw, err := io.ReadAll(io.LimitReader(part, 4096))
			_ = part.Close()
			if err != nil {
				return nil, "", err
			}
			formFilename = strings.TrimSpace(string(raw))
		default:
			_ = part.Close()
		}
	}

	if len(fileContent) > 0 {
		return fileContent, fileName, nil
	}
	return textContent, formFilename, nil
}

// dispatchSideEffects fires the notification and the optional audit
// insert on their own bounded contexts. Neither is awaited and neither
// failure reaches the caller.
func (api *scriptHostAPI) dispatchSideEffects(event notify.Event, requestID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := api.notifier.ScriptUploaded(ctx, event); err != nil {
			api.logger.Warn("upload notification failed", "script_id", event.ScriptID, "error", err)
		}
	}()

	if api.auditDB == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		_, err := auditlog.Insert(ctx, api.auditDB, auditlog.Event{
			OccurredAt: event.OccurredAt,
			Actor:      "anonymous",
			Action:     auditlog.ActionScriptUploaded,
			ScriptID:   event.ScriptID,
			RequestID:  requestID,
			Payload: map[string]any{
				"filename":   event.Filename,
				"size_bytes": event.ScriptBytes,
			},
		})
		if err != nil {
			api.logger.Warn("upload audit failed", "script_id", event.ScriptID, "error", err)
		}
	}()
}

func (api *scriptHostAPI) executeURL(r *http.Request, id string) string {
	base := api.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/scripts/" + id + "/execute"
}

func sanitizeFilename(filename, fallback string) string {
	filename = path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return fallback
	}
	return filename
}
