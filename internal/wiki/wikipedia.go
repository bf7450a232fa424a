// Package wiki enriches reactor records from the Wikipedia and Wikidata APIs.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"reactormap/internal/logging"
)

const wikipediaAPI = "https://en.wikipedia.org/w/api.php"

// SearchResult is one Wikipedia search hit.
type SearchResult struct {
	Title  string `json:"title"`
	PageID int    `json:"pageid"`
}

// PageInfo is the subset of page metadata kept on a reactor record.
type PageInfo struct {
	Title     string
	URL       string
	Extract   string
	Thumbnail string
}

// Client calls the Wikipedia API. Wikipedia requires a descriptive User-Agent.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	// Delay is slept between search strategies to stay polite.
	Delay time.Duration
	// base overrides the API endpoint in tests.
	base string
}

// NewClient builds a Wikipedia client.
func NewClient(userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		Delay:     100 * time.Millisecond,
	}
}

func (c *Client) endpoint() string {
	if c.base != "" {
		return c.base
	}
	return wikipediaAPI
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	return c.getFrom(ctx, c.endpoint(), params, out)
}

func (c *Client) getFrom(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wiki: %s: status %d", params.Get("action"), resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Search queries Wikipedia full-text search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprintf("%d", limit)},
		"format":   {"json"},
		"utf8":     {"1"},
	}
	var resp struct {
		Query struct {
			Search []SearchResult `json:"search"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	return resp.Query.Search, nil
}

// PageInfo fetches the canonical URL, a two-sentence intro extract and a
// thumbnail for a page. Returns nil when the page does not exist.
func (c *Client) PageInfo(ctx context.Context, title string) (*PageInfo, error) {
	params := url.Values{
		"action":      {"query"},
		"titles":      {title},
		"prop":        {"info|extracts|pageimages"},
		"inprop":      {"url"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exsentences": {"2"},
		"piprop":      {"thumbnail"},
		"pithumbsize": {"300"},
		"format":      {"json"},
		"utf8":        {"1"},
		"redirects":   {"1"},
	}
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Title     string `json:"title"`
				FullURL   string `json:"fullurl"`
				Extract   string `json:"extract"`
				Thumbnail struct {
					Source string `json:"source"`
				} `json:"thumbnail"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	for pageID, page := range resp.Query.Pages {
		if pageID == "-1" { // page not found
			continue
		}
		return &PageInfo{
			Title:     page.Title,
			URL:       page.FullURL,
			Extract:   page.Extract,
			Thumbnail: page.Thumbnail.Source,
		}, nil
	}
	return nil, nil
}

var unitSuffixRe = regexp.MustCompile(`(?i)[-\s]*(Unit\s*)?\d+$`)

// BasePlantName strips trailing unit designators ("-1", "Unit 2") so all
// units of a plant share one Wikipedia lookup.
func BasePlantName(name string) string {
	return strings.TrimSpace(unitSuffixRe.ReplaceAllString(name, ""))
}

// FindReactorPage tries several search strategies to locate the Wikipedia
// page for a reactor. Returns nil when nothing plausible is found.
func (c *Client) FindReactorPage(ctx context.Context, name, country string) (*PageInfo, error) {
	base := BasePlantName(name)

	queries := []string{
		base + " nuclear power plant",
		base + " nuclear power station",
		name + " reactor",
		base + " " + country + " nuclear",
		base,
	}

	for _, query := range queries {
		results, err := c.Search(ctx, query, 3)
		if err != nil {
			return nil, err
		}

		for _, result := range results {
			if !plausibleTitle(result.Title, base) {
				continue
			}
			info, err := c.PageInfo(ctx, result.Title)
			if err != nil {
				return nil, err
			}
			if info != nil {
				return info, nil
			}
		}

		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
	}

	logging.Debug("No Wikipedia page found", "reactor", name, "country", country)
	return nil, nil
}

// plausibleTitle checks whether a search hit is likely about the plant.
func plausibleTitle(title, base string) bool {
	titleLower := strings.ToLower(title)
	baseLower := strings.ToLower(base)

	related := strings.Contains(titleLower, baseLower)
	if !related {
		for _, word := range strings.Fields(baseLower) {
			if strings.Contains(titleLower, word) {
				related = true
				break
			}
		}
	}
	if !related {
		return false
	}

	if baseLower == titleLower {
		return true
	}
	for _, term := range []string{"nuclear", "power", "reactor", "station", "plant"} {
		if strings.Contains(titleLower, term) {
			return true
		}
	}
	return false
}
