package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/infrastructure/progress"
)

// fakeAPI serves the read endpoints and pushes a scripted event sequence to
// the websocket session named in the upload.
type fakeAPI struct {
	mu       sync.Mutex
	sessions map[string]*websocket.Conn
	uploads  []string
	script   func(documentID string) []domain.EventPayload
}

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	api := &fakeAPI{
		sessions: map[string]*websocket.Conn{},
		script: func(id string) []domain.EventPayload {
			return []domain.EventPayload{
				domain.ProcessingStarted{DocumentID: "other"},
				domain.ProcessingStarted{DocumentID: id},
				domain.ChapterBatchReady{DocumentID: id, Chapters: []domain.ChapterSummary{{ID: "c1", Title: "第1章", Ordinal: 1, WordCount: 3}}},
				domain.ProcessingCompleted{DocumentID: id, ChapterCount: 1},
			}
		},
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		api.mu.Lock()
		api.sessions[r.URL.Query().Get("clientId")] = conn
		api.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "ping" {
				api.mu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
				api.mu.Unlock()
			}
		}
	})
	mux.HandleFunc("POST /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"file required"}`, http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, file)
		api.mu.Lock()
		api.uploads = append(api.uploads, header.Filename+"|"+r.FormValue("title"))
		conn := api.sessions[r.Header.Get("X-Client-Id")]
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"doc-9","status":"PENDING"}`))

		if conn != nil {
			go func() {
				for _, p := range api.script("doc-9") {
					frame, _ := progress.Encode(domain.NewProgressEvent(p))
					api.mu.Lock()
					_ = conn.WriteMessage(websocket.TextMessage, frame)
					api.mu.Unlock()
				}
			}()
		}
	})
	mux.HandleFunc("GET /v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "doc-9" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"document not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Document{ID: "doc-9", Title: "Novel", Status: domain.StatusFailed, Error: "decode failure"})
	})
	mux.HandleFunc("GET /v1/documents/{id}/chapters", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chapters":[{"id":"c1","title":"第1章","ordinal":1,"word_count":3},{"id":"c2","title":"第2章","ordinal":2,"word_count":5}]}`))
	})
	return httptest.NewServer(mux)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novel.txt")
	if err := os.WriteFile(path, []byte("第1章 开始\n正文\n"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestStatusCommand(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "status", "doc-9")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "doc-9  FAILED  Novel") || !strings.Contains(out, "error: decode failure") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestStatusCommandNotFound(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	_, err := runCLI(t, "--server", srv.URL, "status", "missing")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "document not found" {
		t.Fatalf("expected 404 api error, got %v", err)
	}
}

func TestChaptersCommand(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "chapters", "doc-9")
	if err != nil {
		t.Fatalf("chapters error = %v", err)
	}
	if strings.Index(out, "第1章") > strings.Index(out, "第2章") || !strings.Contains(out, "c2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUploadCommand(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "upload", writeSample(t), "--title", "My Novel")
	if err != nil {
		t.Fatalf("upload error = %v", err)
	}
	if !strings.Contains(out, "Accepted doc-9 (PENDING)") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUploadCommandWatchesUntilCompleted(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "upload", writeSample(t), "--watch")
	if err != nil {
		t.Fatalf("upload --watch error = %v", err)
	}
	for _, want := range []string{"Accepted doc-9", "Processing started", "第1章", "Completed: 1 chapters"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Count(out, "Processing started") != 1 {
		t.Fatalf("events for other documents must be ignored: %q", out)
	}
}

func TestUploadCommandRejectsDirectory(t *testing.T) {
	if _, err := runCLI(t, "upload", t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
}

type scriptedFrames struct {
	frames []progress.Message
}

func (s *scriptedFrames) Next() (progress.Message, error) {
	if len(s.frames) == 0 {
		return progress.Message{}, io.EOF
	}
	msg := s.frames[0]
	s.frames = s.frames[1:]
	return msg, nil
}

func frameOf(t *testing.T, p domain.EventPayload) progress.Message {
	t.Helper()
	raw, err := progress.Encode(domain.NewProgressEvent(p))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	msg, err := progress.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return msg
}

func TestWatchDocumentReportsFailure(t *testing.T) {
	stream := &scriptedFrames{frames: []progress.Message{
		frameOf(t, domain.ProcessingStarted{DocumentID: "d1"}),
		frameOf(t, domain.ProcessingFailed{DocumentID: "d1", Error: "decode failure at line 3"}),
	}}
	var out bytes.Buffer

	err := watchDocument(&out, stream, "d1")
	if !errors.Is(err, errIngestionFailed) || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected ingestion failure, got %v", err)
	}
}

func TestWatchDocumentStreamClosed(t *testing.T) {
	stream := &scriptedFrames{frames: []progress.Message{
		frameOf(t, domain.ProcessingCompleted{DocumentID: "other", ChapterCount: 1}),
	}}
	if err := watchDocument(io.Discard, stream, "d1"); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF once the stream ends, got %v", err)
	}
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://example.com/api/", "abc")
	if err != nil {
		t.Fatalf("websocketURL() error = %v", err)
	}
	if got != "wss://example.com/api/websocket?clientId=abc" {
		t.Fatalf("websocketURL() = %q", got)
	}
}
