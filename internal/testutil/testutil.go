// Package testutil provides shared test helpers: a docs directory
// builder and an in-memory fake of the Confluence content API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/corville/confsync/internal/confluence"
	"github.com/corville/confsync/internal/storage"
)

// Credentials the fake accepts.
const (
	User  = "sync-bot"
	Token = "test-token"
)

// TestDocs creates a temporary docs directory with a storage.Provider.
func TestDocs(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteDoc writes a file under dir, creating parent directories.
func WriteDoc(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// FakePage is one page held by the fake server.
type FakePage struct {
	ID       string
	SpaceKey string
	Title    string
	Body     string
	Version  int
	ParentID string
}

// FakeConfluence is an in-memory stand-in for the Confluence content API.
// It enforces basic auth and the optimistic-concurrency version rule
// (an update must carry current version + 1, otherwise 409).
type FakeConfluence struct {
	Server *httptest.Server

	mu          sync.Mutex
	pages       map[string]*FakePage
	attachments map[string][]string // page ID → attachment filenames
	nextID      int

	CreateCalls int
	UpdateCalls int

	// ConflictsLeft makes the next N updates fail with 409 regardless of
	// version, to exercise the retry path.
	ConflictsLeft int
}

// NewFakeConfluence starts the fake server. It is shut down via t.Cleanup.
func NewFakeConfluence(t *testing.T) *FakeConfluence {
	t.Helper()
	f := &FakeConfluence{
		pages:       make(map[string]*FakePage),
		attachments: make(map[string][]string),
		nextID:      1000,
	}

	r := chi.NewRouter()
	r.Use(f.authMiddleware)
	r.Get("/rest/api/content", f.handleSearch)
	r.Post("/rest/api/content", f.handleCreate)
	r.Get("/rest/api/content/{id}", f.handleGet)
	r.Put("/rest/api/content/{id}", f.handleUpdate)
	r.Get("/rest/api/content/{id}/child/attachment", f.handleListAttachments)
	r.Post("/rest/api/content/{id}/child/attachment", f.handleUpload)
	r.Post("/rest/api/content/{id}/child/attachment/{attID}/data", f.handleUpload)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a confluence.Client pointed at the fake.
func (f *FakeConfluence) Client() *confluence.Client {
	return confluence.NewClient(f.Server.URL, User, Token)
}

// AddPage seeds a page and returns its assigned ID.
func (f *FakeConfluence) AddPage(spaceKey, title, body string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.allocID()
	f.pages[id] = &FakePage{ID: id, SpaceKey: spaceKey, Title: title, Body: body, Version: 1}
	return id
}

// Page returns a copy of the stored page, or nil.
func (f *FakeConfluence) Page(id string) *FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Counts returns the create and update call totals. Use this instead of
// reading the fields directly when the server may still be handling
// requests on another goroutine.
func (f *FakeConfluence) Counts() (create, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CreateCalls, f.UpdateCalls
}

// Attachments returns the filenames uploaded to a page.
func (f *FakeConfluence) Attachments(pageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attachments[pageID]...)
}

func (f *FakeConfluence) allocID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *FakeConfluence) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != User || pass != Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type wirePage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func toWire(p *FakePage) wirePage {
	var w wirePage
	w.ID = p.ID
	w.Type = "page"
	w.Title = p.Title
	w.Version.Number = p.Version
	w.Space.Key = p.SpaceKey
	w.Body.Storage.Value = p.Body
	w.Links.WebUI = "/spaces/" + p.SpaceKey + "/pages/" + p.ID
	return w
}

func (f *FakeConfluence) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no content found"})
		return
	}
	writeJSON(w, http.StatusOK, toWire(p))
}

func (f *FakeConfluence) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	space := r.URL.Query().Get("spaceKey")
	title := r.URL.Query().Get("title")
	results := []wirePage{}
	for _, p := range f.pages {
		if p.SpaceKey == space && p.Title == title {
			results = append(results, toWire(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (f *FakeConfluence) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in wirePage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++

	p := &FakePage{
		ID:       f.allocID(),
		SpaceKey: in.Space.Key,
		Title:    in.Title,
		Body:     in.Body.Storage.Value,
		Version:  1,
	}
	if len(in.Ancestors) > 0 {
		p.ParentID = in.Ancestors[0].ID
	}
	f.pages[p.ID] = p
	writeJSON(w, http.StatusOK, toWire(p))
}

func (f *FakeConfluence) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in wirePage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++

	p, ok := f.pages[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no content found"})
		return
	}
	if f.ConflictsLeft > 0 {
		f.ConflictsLeft--
		writeJSON(w, http.StatusConflict, map[string]string{"message": "version conflict"})
		return
	}
	if in.Version.Number != p.Version+1 {
		writeJSON(w, http.StatusConflict, map[string]string{
			"message": fmt.Sprintf("expected version %d, got %d", p.Version+1, in.Version.Number),
		})
		return
	}
	p.Title = in.Title
	p.Body = in.Body.Storage.Value
	p.Version = in.Version.Number
	writeJSON(w, http.StatusOK, toWire(p))
}

func (f *FakeConfluence) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type att struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	results := []att{}
	for i, name := range f.attachments[chi.URLParam(r, "id")] {
		results = append(results, att{ID: fmt.Sprintf("att%d", i), Title: name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (f *FakeConfluence) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Atlassian-Token") != "no-check" {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "XSRF check failed"})
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	fh := r.MultipartForm.File["file"]
	if len(fh) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "no file part"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pageID := chi.URLParam(r, "id")
	name := fh[0].Filename
	exists := false
	for _, n := range f.attachments[pageID] {
		if n == name {
			exists = true
			break
		}
	}
	if !exists {
		f.attachments[pageID] = append(f.attachments[pageID], name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
