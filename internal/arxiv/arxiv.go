// Package arxiv fetches paper metadata and abstracts from the Arxiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docdex/docdex/internal/store"
)

const (
	defaultBaseURL = "http://export.arxiv.org/api/query"
	defaultTimeout = 30 * time.Second
)

// Paper is a single Arxiv result.
type Paper struct {
	ID        string
	Title     string
	Abstract  string
	Authors   []string
	URL       string
	Published string
}

// Client queries the Arxiv API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an Arxiv client. baseURL is overridable for tests; empty
// means the public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// atom feed types, limited to the fields we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// Search queries Arxiv for papers matching query and returns up to maxResults.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))

	return c.fetch(ctx, params)
}

// Fetch retrieves a single paper by Arxiv id (e.g. "2301.04567").
func (c *Client) Fetch(ctx context.Context, id string) (*Paper, error) {
	params := url.Values{}
	params.Set("id_list", id)
	params.Set("max_results", "1")

	papers, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, fmt.Errorf("paper %s not found", id)
	}
	return &papers[0], nil
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]Paper, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper := Paper{
			ID:        shortID(entry.ID),
			Title:     collapseWhitespace(entry.Title),
			Abstract:  collapseWhitespace(entry.Summary),
			URL:       entry.ID,
			Published: entry.Published,
		}
		for _, a := range entry.Authors {
			paper.Authors = append(paper.Authors, a.Name)
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// Metadata builds the index metadata record for a paper, matching the fields
// ingested documents carry.
func (p *Paper) Metadata() store.Metadata {
	return store.Metadata{
		store.MetaDocumentID: "arxiv:" + p.ID,
		"title":              p.Title,
		"type":               "arxiv",
		"source":             "arxiv",
		"authors":            p.Authors,
		"abstract":           p.Abstract,
		"url":                p.URL,
		"published":          p.Published,
		"downloaded_at":      time.Now().UTC().Format(time.RFC3339),
		"word_count":         len(strings.Fields(p.Abstract)),
	}
}

// Text returns the indexable text for a paper: title plus abstract. Arxiv
// serves full papers only as PDF, which is outside what the index ingests.
func (p *Paper) Text() string {
	return p.Title + "\n\n" + p.Abstract
}

// shortID reduces an Atom entry id like
// "http://arxiv.org/abs/2301.04567v2" to "2301.04567v2".
func shortID(entryID string) string {
	if i := strings.LastIndex(entryID, "/abs/"); i >= 0 {
		return entryID[i+len("/abs/"):]
	}
	return entryID
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
