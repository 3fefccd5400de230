// Package lookup resolves ISBNs to book metadata via the Google Books
// volumes API. It is stateless: every call is a fresh request keyed only
// by the ISBN, and any failure degrades to "not found" rather than
// surfacing transport errors to the caller.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"minishelf/pkg/domain"
)

// DefaultBaseURL is the production volumes endpoint.
const DefaultBaseURL = "https://www.googleapis.com/books/v1"

// Client calls the Google Books API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a lookup client. apiKey may be empty; the volumes
// endpoint serves unauthenticated requests at a lower quota.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title       string   `json:"title"`
			Authors     []string `json:"authors"`
			Description string   `json:"description"`
			ImageLinks  struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// ByISBN resolves metadata for an ISBN. The second return value is false
// when no volume matches; network and decode failures are reported the
// same way, since the caller treats every miss identically.
func (c *Client) ByISBN(ctx context.Context, isbn string) (domain.BookMetadata, bool) {
	q := url.Values{}
	q.Set("q", "isbn:"+isbn)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/volumes?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return domain.BookMetadata{}, false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookMetadata{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.BookMetadata{}, false
	}
	var body volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.BookMetadata{}, false
	}
	if body.TotalItems == 0 || len(body.Items) == 0 {
		return domain.BookMetadata{}, false
	}
	info := body.Items[0].VolumeInfo
	if info.Title == "" {
		return domain.BookMetadata{}, false
	}
	author := "Unknown Author"
	if len(info.Authors) > 0 {
		author = strings.Join(info.Authors, ", ")
	}
	return domain.BookMetadata{
		Title:       info.Title,
		Author:      author,
		Thumbnail:   info.ImageLinks.Thumbnail,
		Description: info.Description,
	}, true
}
