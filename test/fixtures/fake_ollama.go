// Package fixtures provides test helpers shared by unit and integration tests.
package fixtures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// GenerateRequest is a recorded /api/generate call.
type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
	Stop    []string       `json:"stop"`
	Think   *bool          `json:"think"`
}

// FakeOllama is an in-process stand-in for an Ollama server.
type FakeOllama struct {
	Server *httptest.Server

	mu sync.Mutex

	// Models is what /api/tags lists. Pulls append to it.
	Models []string
	// Replies are served to /api/generate in order; DefaultReply after that.
	Replies      []string
	DefaultReply string
	// Responder, when set, overrides Replies.
	Responder func(req GenerateRequest) string
	// EmptyNonStream answers single-shot requests with no text but a
	// non-zero eval_count.
	EmptyNonStream bool
	// GenerateStatus and PullStatus force an HTTP error status when non-zero.
	GenerateStatus int
	PullStatus     int
	// StreamHold, when set, pauses streamed replies after the first chunk
	// until it is closed or the client goes away.
	StreamHold chan struct{}

	Requests  []GenerateRequest
	Pulls     []string
	TagsCalls int
}

// NewFakeOllama starts a fake server with the given models installed.
func NewFakeOllama(models ...string) *FakeOllama {
	f := &FakeOllama{Models: models, DefaultReply: "ok"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", f.handleTags)
	mux.HandleFunc("/api/pull", f.handlePull)
	mux.HandleFunc("/api/generate", f.handleGenerate)
	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the server base URL.
func (f *FakeOllama) URL() string {
	return f.Server.URL
}

// Close shuts the server down.
func (f *FakeOllama) Close() {
	f.Server.Close()
}

// Recorded returns a copy of the generate requests seen so far.
func (f *FakeOllama) Recorded() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateRequest(nil), f.Requests...)
}

// Tags returns how many times the model list was fetched.
func (f *FakeOllama) Tags() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TagsCalls
}

func (f *FakeOllama) handleTags(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.TagsCalls++
	models := make([]map[string]any, 0, len(f.Models))
	for _, m := range f.Models {
		models = append(models, map[string]any{"name": m, "size": 1 << 30, "modified_at": "2026-01-02T03:04:05Z"})
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

func (f *FakeOllama) handlePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	name := req.Name
	if name == "" {
		name = req.Model
	}

	f.mu.Lock()
	f.Pulls = append(f.Pulls, name)
	status := f.PullStatus
	if status == 0 {
		f.Models = append(f.Models, name)
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "pull failed", status)
		return
	}
	for _, s := range []string{"pulling manifest", "verifying sha256 digest", "success"} {
		fmt.Fprintf(w, "{\"status\":%q}\n", s)
	}
}

func (f *FakeOllama) nextReply(req GenerateRequest) string {
	if f.Responder != nil {
		return f.Responder(req)
	}
	if len(f.Replies) > 0 {
		reply := f.Replies[0]
		f.Replies = f.Replies[1:]
		return reply
	}
	return f.DefaultReply
}

func (f *FakeOllama) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	status := f.GenerateStatus
	empty := f.EmptyNonStream && !req.Stream
	hold := f.StreamHold
	var reply string
	if status == 0 && !empty {
		reply = f.nextReply(req)
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "model exploded", status)
		return
	}

	final := map[string]any{
		"model":             req.Model,
		"done":              true,
		"eval_count":        len(strings.Fields(reply)) + 1,
		"prompt_eval_count": 10,
		"total_duration":    1500000000,
		"load_duration":     200000000,
	}

	if !req.Stream {
		final["response"] = reply
		if empty {
			final["eval_count"] = 12
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(final)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	for i, piece := range splitReply(reply) {
		line, _ := json.Marshal(map[string]any{"model": req.Model, "response": piece, "done": false})
		_, _ = w.Write(append(line, '\n'))
		if i == 0 {
			_, _ = w.Write([]byte("this line is not json\n"))
		}
		if flusher != nil {
			flusher.Flush()
		}
		if i == 0 && hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
	}
	final["response"] = ""
	line, _ := json.Marshal(final)
	_, _ = w.Write(append(line, '\n'))
}

// splitReply cuts a reply into a few streamed pieces.
func splitReply(reply string) []string {
	if reply == "" {
		return []string{""}
	}
	runes := []rune(reply)
	size := (len(runes) + 2) / 3
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// WritePNG writes a solid w x h PNG screenshot stand-in.
func WritePNG(dir, name string, w, h int) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return "", err
	}
	return path, nil
}
