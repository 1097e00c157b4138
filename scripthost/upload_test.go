package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/scripthost-labs/scripthost-go/internal/notify"
	"github.com/scripthost-labs/scripthost-go/internal/platform/metrics"
	"github.com/scripthost-labs/scripthost-go/internal/policy"
	"github.com/scripthost-labs/scripthost-go/internal/scriptstore"
	"github.com/scripthost-labs/scripthost-go/internal/token"
)

func TestUploadRejectsEmptyPayload(t *testing.T) {
	mux, _, store, _ := newTestAPI(t, policy.Default())

	rec, resp := uploadJSON(t, mux, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if resp["error"] != "script_required" {
		t.Fatalf("error=%v", resp["error"])
	}
	if store.Len() != 0 {
		t.Fatalf("rejected upload created a record")
	}
}

func TestUploadDefaultFilename(t *testing.T) {
	mux, _, _, _ := newTestAPI(t, policy.Default())

	rec, resp := uploadJSON(t, mux, `{"script":"return 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if resp["filename"] != "script.lua" {
		t.Fatalf("filename=%v, want script.lua", resp["filename"])
	}
}

func TestUploadMultipartFile(t *testing.T) {
	mux, _, _, _ := newTestAPI(t, policy.Default())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "b.lua")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := io.WriteString(fw, "print('from file')"); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "http://example.test/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"filename":"b.lua"`) {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestUploadMultipartScriptField(t *testing.T) {
	mux, _, _, _ := newTestAPI(t, policy.Default())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("script", "print('pasted')"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.WriteField("filename", "pasted.lua"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "http://example.test/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"filename":"pasted.lua"`) {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestUploadMultipartEmpty(t *testing.T) {
	mux, _, _, _ := newTestAPI(t, policy.Default())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "http://example.test/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestUploadEnforcesSizeBound(t *testing.T) {
	pol := policy.Default()
	pol.MaxScriptBytes = 16
	mux, _, store, _ := newTestAPI(t, pol)

	rec, resp := uploadJSON(t, mux, `{"script":"this body is longer than sixteen bytes"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if resp["error"] != "script_too_large" {
		t.Fatalf("error=%v", resp["error"])
	}
	if store.Len() != 0 {
		t.Fatalf("oversize upload created a record")
	}
}

func TestUploadEnforcesExtensionPolicy(t *testing.T) {
	pol := policy.Default()
	pol.AllowedExtensions = []string{".lua"}
	mux, _, _, _ := newTestAPI(t, pol)

	rec, resp := uploadJSON(t, mux, `{"script":"x","filename":"evil.exe"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if resp["error"] != "filename_not_allowed" {
		t.Fatalf("error=%v", resp["error"])
	}
}

func TestUploadNotifies(t *testing.T) {
	mux, _, _, notifier := newTestAPI(t, policy.Default())

	_, resp := uploadJSON(t, mux, `{"script":"print('hi')","filename":"a.lua"}`)
	event := notifier.next(t)

	if event.ScriptID != resp["id"] {
		t.Fatalf("event.ScriptID=%q, want %v", event.ScriptID, resp["id"])
	}
	if event.OwnerKey != resp["ownerKey"] {
		t.Fatalf("event.OwnerKey mismatch")
	}
	if event.Filename != "a.lua" {
		t.Fatalf("event.Filename=%q", event.Filename)
	}
	if event.ScriptBytes != len("print('hi')") {
		t.Fatalf("event.ScriptBytes=%d", event.ScriptBytes)
	}
}

type blockedNotifier struct{}

func (blockedNotifier) ScriptUploaded(ctx context.Context, _ notify.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestUploadDoesNotWaitForNotifier(t *testing.T) {
	store := scriptstore.NewMemoryStore()
	api := newScriptHostAPI(slog.New(slog.DiscardHandler), store, token.NewGenerator(nil), blockedNotifier{}, metrics.Noop{}, policy.Default(), "", nil)
	mux := http.NewServeMux()
	api.register(mux)

	rec, resp := uploadJSON(t, mux, `{"script":"return 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d: a stuck notifier delayed the upload", rec.Code)
	}
	if resp["success"] != true {
		t.Fatalf("resp=%v", resp)
	}
}

func TestUploadStoreFailure(t *testing.T) {
	api := newScriptHostAPI(slog.New(slog.DiscardHandler), failingStore{}, token.NewGenerator(nil), notify.Noop{}, metrics.Noop{}, policy.Default(), "", nil)
	mux := http.NewServeMux()
	api.register(mux)

	rec, resp := uploadJSON(t, mux, `{"script":"return 1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	if resp["error"] != "internal_error" {
		t.Fatalf("error=%v", resp["error"])
	}
}

func TestUploadBaseURLOverride(t *testing.T) {
	store := scriptstore.NewMemoryStore()
	api := newScriptHostAPI(slog.New(slog.DiscardHandler), store, token.NewGenerator(nil), notify.Noop{}, metrics.Noop{}, policy.Default(), "https://scripts.example.com/", nil)
	mux := http.NewServeMux()
	api.register(mux)

	_, resp := uploadJSON(t, mux, `{"script":"return 1"}`)
	executeURL, _ := resp["executeUrl"].(string)
	if !strings.HasPrefix(executeURL, "https://scripts.example.com/scripts/") {
		t.Fatalf("executeUrl=%q", executeURL)
	}
}

func TestConcurrentUploadsGetDistinctIDs(t *testing.T) {
	mux, _, store, _ := newTestAPI(t, policy.Default())

	const uploads = 24
	ids := make(chan string, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"script":"print(%d)"}`, i)
			req := httptest.NewRequest("POST", "http://example.test/upload", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("upload #%d status=%d", i, rec.Code)
				ids <- ""
				return
			}
			var resp struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Errorf("upload #%d: %v", i, err)
			}
			ids <- resp.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	if store.Len() != uploads {
		t.Fatalf("store has %d records, want %d", store.Len(), uploads)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename("", "script.lua"); got != "script.lua" {
		t.Fatalf("sanitizeFilename(\"\")=%q", got)
	}
	if got := sanitizeFilename("../evil.lua", "script.lua"); got != "evil.lua" {
		t.Fatalf("sanitizeFilename(\"../evil.lua\")=%q", got)
	}
	if got := sanitizeFilename("C:\\temp\\a.lua", "script.lua"); got != "a.lua" {
		t.Fatalf("sanitizeFilename(windows path)=%q", got)
	}
}
