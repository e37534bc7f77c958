package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"parley/internal/types"
	"parley/pkg/protocol"

	"github.com/google/uuid"
)

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRegister_AcceptAndReject(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/register", `{"username":"alice"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// same name again is rejected with a reason
	resp = postJSON(t, ts.URL+"/api/register", `{"username":"alice"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["accepted"] != false || body["reason"] == "" {
		t.Fatalf("expected rejection with reason, got %v", body)
	}

	// invalid payloads
	for _, payload := range []string{`{}`, `{"username":""}`, `not json`, `{"username":"` + strings.Repeat("x", 40) + `"}`} {
		resp := postJSON(t, ts.URL+"/api/register", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, resp.StatusCode)
		}
	}
}

func TestUpload_ReturnsOpaquePath(t *testing.T) {
	_, ts := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "pic.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("not really a png")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = w.Close()

	resp, err := http.Post(ts.URL+"/api/upload", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		FilePath string `json:"filePath"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.HasPrefix(body.FilePath, "/uploads/") || !strings.HasSuffix(body.FilePath, ".png") {
		t.Fatalf("unexpected file path %q", body.FilePath)
	}

	// the stored file is served back at the returned path
	got, err := http.Get(ts.URL + body.FilePath)
	if err != nil {
		t.Fatalf("fetch upload: %v", err)
	}
	defer got.Body.Close()
	data, _ := io.ReadAll(got.Body)
	if string(data) != "not really a png" {
		t.Fatalf("uploaded content mismatch: %q", data)
	}
}

func TestHistory_ServesOrderedCache(t *testing.T) {
	s, ts := newTestServer(t)

	at := time.Now().UTC()
	for i, content := range []string{"first", "second", "third"} {
		msg := &types.Message{
			ID:        uuid.New().String(),
			Author:    "alice",
			Kind:      types.KindText,
			Content:   content,
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}
		if err := s.store.Append(msg); err != nil {
			t.Fatalf("seed append: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Messages []protocol.Outbound `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(body.Messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		got := body.Messages[i]
		if got.Type != protocol.TypeNewChatMessage || got.Content != want {
			t.Fatalf("message %d: expected %q frame, got %+v", i, want, got)
		}
	}
}

func TestStats_ReportsStoreCounters(t *testing.T) {
	s, ts := newTestServer(t)

	if err := s.store.Append(&types.Message{ID: "m1", Author: "alice", Kind: types.KindText, Content: "x", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer resp.Body.Close()

	var stats types.ServerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.CachedMessages != 1 {
		t.Fatalf("expected 1 cached message, got %d", stats.CachedMessages)
	}
	if stats.ConnectedClients != 0 || stats.DurableLag != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
