// Package pris scrapes reactor data from the IAEA PRIS public pages.
package pris

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"reactormap/internal/logging"
	"reactormap/internal/reactor"
)

const (
	baseURL         = "https://pris.iaea.org/PRIS"
	countryListPath = "/WorldStatistics/OperationalReactorsByCountry.aspx"
	countryPath     = "/CountryStatistics/CountryDetails.aspx?current="
)

var countryLinkRe = regexp.MustCompile(`CountryDetails\.aspx\?current=(\w+)`)

// Country is one IAEA member state with reactors.
type Country struct {
	Name string
	Code string
}

// Client fetches and parses PRIS pages.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	// Retries is the number of fetch attempts per page (default 3) with
	// exponential backoff between them.
	Retries int
	// base overrides the PRIS origin in tests.
	base string
}

// NewClient builds a PRIS client with the given politeness settings.
func NewClient(userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		Retries:   3,
	}
}

func (c *Client) origin() string {
	if c.base != "" {
		return c.base
	}
	return baseURL
}

func (c *Client) retries() int {
	if c.Retries <= 0 {
		return 3
	}
	return c.Retries
}

// fetch retrieves one page, retrying with exponential backoff.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries(); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 2 * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			logging.Warn("PRIS fetch attempt failed", "url", url, "attempt", attempt+1, "error", err.Error())
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("pris: GET %s: status %d", url, resp.StatusCode)
			logging.Warn("PRIS fetch attempt failed", "url", url, "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// Countries scrapes the list of countries with reactors.
func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	body, err := c.fetch(ctx, c.origin()+countryListPath)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	return parseCountryList(doc), nil
}

// Reactors scrapes all reactor units on a country's detail page.
func (c *Client) Reactors(ctx context.Context, country Country) ([]reactor.Fetched, error) {
	body, err := c.fetch(ctx, c.origin()+countryPath+country.Code)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	rows := parseReactorTable(doc)
	for i := range rows {
		rows[i].Country = country.Name
		rows[i].CountryCode = country.Code
	}
	return rows, nil
}

// parseCountryList walks the document for CountryDetails links.
func parseCountryList(doc *html.Node) []Country {
	var countries []Country
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if m := countryLinkRe.FindStringSubmatch(attr(n, "href")); m != nil {
				code := m[1]
				name := strings.TrimSpace(textContent(n))
				if name != "" && !seen[code] {
					seen[code] = true
					countries = append(countries, Country{Name: name, Code: code})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return countries
}

// parseReactorTable extracts reactor rows from the tablesorter table. The
// PRIS column order is name, type, status, location, reference unit power,
// gross capacity, grid connection; reference unit power is skipped.
func parseReactorTable(doc *html.Node) []reactor.Fetched {
	table := findTableSorter(doc)
	if table == nil {
		return nil
	}

	var rows []reactor.Fetched
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if r, ok := parseReactorRow(n); ok {
				rows = append(rows, r)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walkRows(child)
		}
	}
	for child := table.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "tbody" {
			walkRows(child)
		}
	}
	return rows
}

func parseReactorRow(tr *html.Node) (reactor.Fetched, bool) {
	var r reactor.Fetched
	cell := 0
	for td := tr.FirstChild; td != nil; td = td.NextSibling {
		if td.Type != html.ElementNode || td.Data != "td" {
			continue
		}
		text := strings.TrimSpace(textContent(td))
		switch cell {
		case 0:
			r.Name = text
			if id := reactorLinkID(td); id != "" {
				r.IAEAID = id
			}
		case 1:
			r.Type = text
		case 2:
			r.Status = text
		case 3:
			r.Location = text
		case 5: // gross capacity; reference unit power is column 4
			if text != "" {
				clean := strings.NewReplacer(",", "", " ", "").Replace(text)
				if v, err := strconv.Atoi(clean); err == nil {
					r.CapacityMW = v
				}
			}
		case 6:
			r.GridConnection = text
		}
		cell++
	}
	return r, r.Name != ""
}

var reactorIDRe = regexp.MustCompile(`current=(\d+)`)

// reactorLinkID pulls the numeric PRIS reactor id from the name cell's link.
func reactorLinkID(td *html.Node) string {
	var id string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if m := reactorIDRe.FindStringSubmatch(attr(n, "href")); m != nil {
				id = m[1]
				return
			}
		}
		for child := n.FirstChild; child != nil && id == ""; child = child.NextSibling {
			walk(child)
		}
	}
	walk(td)
	return id
}

// findTableSorter locates the reactor data table by its tablesorter class.
func findTableSorter(doc *html.Node) *html.Node {
	var table *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if table != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "table" &&
			strings.Contains(attr(n, "class"), "tablesorter") {
			table = n
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return table
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
