// Package confluence implements the REST client for the Confluence content API.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corville/confsync/internal/syncerr"
)

// Page is the subset of the content API response the sync cares about.
type Page struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SpaceKey string `json:"-"`
	Version  int    `json:"-"`
	WebUI    string `json:"-"`
}

// Client talks to a single Confluence instance with basic auth
// (username + API token). It decides nothing about reconciliation; it
// only executes calls and maps HTTP status codes onto the error taxonomy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	token      string
}

// NewClient creates a client for the given base URL. A trailing slash on
// the base URL is tolerated.
func NewClient(baseURL, username, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		token:      token,
	}
}

// pageResponse mirrors the content API's page representation.
type pageResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (p *pageResponse) toPage() *Page {
	return &Page{ID: p.ID, Title: p.Title, SpaceKey: p.Space.Key, Version: p.Version.Number, WebUI: p.Links.WebUI}
}

// GetPage fetches a page by ID, expanding its version marker and space.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(id)+"?expand=version,space", nil)
	if err != nil {
		return nil, err
	}
	var out pageResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	return out.toPage(), nil
}

// createBody is the request payload for page creation.
type createBody struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Space     spaceRef       `json:"space"`
	Body      storageWrapper `json:"body"`
	Ancestors []ancestorRef  `json:"ancestors,omitempty"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type ancestorRef struct {
	ID string `json:"id"`
}

type storageWrapper struct {
	Storage storageBody `json:"storage"`
}

type storageBody struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

func wrapStorage(value string) storageWrapper {
	return storageWrapper{Storage: storageBody{Value: value, Representation: "storage"}}
}

// CreatePage creates a new page in the given space, optionally under a
// parent, and returns the page the remote assigned (including its new ID).
func (c *Client) CreatePage(ctx context.Context, spaceKey, title, storage, parentID string) (*Page, error) {
	payload := createBody{
		Type:  "page",
		Title: title,
		Space: spaceRef{Key: spaceKey},
		Body:  wrapStorage(storage),
	}
	if parentID != "" {
		payload.Ancestors = []ancestorRef{{ID: parentID}}
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/api/content", payload)
	if err != nil {
		return nil, err
	}
	var out pageResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("create page %q: %w", title, err)
	}
	return out.toPage(), nil
}

// updateBody is the request payload for page updates.
type updateBody struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Version versionRef     `json:"version"`
	Body    storageWrapper `json:"body"`
}

type versionRef struct {
	Number int `json:"number"`
}

// UpdatePage replaces a page's title and body. version must be the new
// version number, i.e. the current remote version plus one; a stale value
// surfaces as syncerr.ErrRemoteConflict.
func (c *Client) UpdatePage(ctx context.Context, id string, version int, title, storage string) (*Page, error) {
	payload := updateBody{
		Type:    "page",
		Title:   title,
		Version: versionRef{Number: version},
		Body:    wrapStorage(storage),
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/rest/api/content/"+url.PathEscape(id), payload)
	if err != nil {
		return nil, err
	}
	var out pageResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("update page %s: %w", id, err)
	}
	return out.toPage(), nil
}

// FindPageByTitle looks up a current page by exact title within a space.
// Returns (nil, nil) when no page matches.
func (c *Client) FindPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error) {
	q := url.Values{}
	q.Set("spaceKey", spaceKey)
	q.Set("title", title)
	q.Set("type", "page")
	q.Set("status", "current")
	q.Set("expand", "version,space")
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []pageResponse `json:"results"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("find page %q: %w", title, err)
	}
	for i := range out.Results {
		if out.Results[i].Title == title {
			return out.Results[i].toPage(), nil
		}
	}
	return nil, nil
}

// UploadAttachment creates or updates a page attachment by filename.
// Confluence keys attachments on title, so an existing attachment with
// the same filename receives a new data version instead of a duplicate.
func (c *Client) UploadAttachment(ctx context.Context, pageID, filename string, data []byte) error {
	existing, err := c.findAttachment(ctx, pageID, filename)
	if err != nil {
		return err
	}

	endpoint := "/rest/api/content/" + url.PathEscape(pageID) + "/child/attachment"
	if existing != "" {
		endpoint += "/" + url.PathEscape(existing) + "/data"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}
	return nil
}

// findAttachment returns the ID of an existing attachment with the given
// filename, or "" when the page has none.
func (c *Client) findAttachment(ctx context.Context, pageID, filename string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Results []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("list attachments for %s: %w", pageID, err)
	}
	for _, a := range out.Results {
		if a.Title == filename {
			return a.ID, nil
		}
	}
	return "", nil
}

// PageURL returns the browser URL for a page returned by the API.
func (c *Client) PageURL(p *Page) string {
	if p == nil || p.WebUI == "" {
		return ""
	}
	return c.baseURL + p.WebUI
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("confluence: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("confluence: build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes the request, maps error statuses onto the taxonomy, and
// decodes a JSON body into result when result is non-nil.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.ReplaceAll(strings.TrimSpace(string(snippet)), "\n", " ")
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w (status %d)", syncerr.ErrRemoteNotFound, resp.StatusCode)
		case http.StatusConflict:
			return fmt.Errorf("%w (status %d)", syncerr.ErrRemoteConflict, resp.StatusCode)
		default:
			return fmt.Errorf("%w: status %d: %s", syncerr.ErrRemoteUnavailable, resp.StatusCode, detail)
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode response: %v", syncerr.ErrRemoteUnavailable, err)
	}
	return nil
}
