package pris

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const countryListHTML = `<html><body>
<table>
<tr><td><a href="/PRIS/CountryStatistics/CountryDetails.aspx?current=FR">FRANCE</a></td></tr>
<tr><td><a href="/PRIS/CountryStatistics/CountryDetails.aspx?current=DE">GERMANY</a></td></tr>
<tr><td><a href="/PRIS/CountryStatistics/CountryDetails.aspx?current=FR">France (again)</a></td></tr>
<tr><td><a href="/PRIS/Somewhere/Else.aspx">not a country</a></td></tr>
</table>
</body></html>`

const countryDetailsHTML = `<html><body>
<table class="table active tablesorter">
<thead><tr><th>Name</th><th>Type</th><th>Status</th><th>Location</th><th>Reference Unit Power</th><th>Gross Capacity</th><th>Grid Connection</th></tr></thead>
<tbody>
<tr>
  <td><a href="/PRIS/CountryStatistics/ReactorDetails.aspx?current=143">CIVAUX-1</a></td>
  <td>PWR</td>
  <td>Operational</td>
  <td>CIVAUX</td>
  <td>1495</td>
  <td>1,561</td>
  <td>1997-12-24</td>
</tr>
<tr>
  <td><a href="/PRIS/CountryStatistics/ReactorDetails.aspx?current=144">CIVAUX-2</a></td>
  <td>PWR</td>
  <td>Operational</td>
  <td>CIVAUX</td>
  <td>1495</td>
  <td>1 561</td>
  <td>1999-12-24</td>
</tr>
<tr><td></td><td>empty name row is skipped</td></tr>
</tbody>
</table>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestParseCountryList(t *testing.T) {
	countries := parseCountryList(parse(t, countryListHTML))
	if len(countries) != 2 {
		t.Fatalf("expected 2 countries, got %d: %+v", len(countries), countries)
	}
	if countries[0].Code != "FR" || countries[0].Name != "FRANCE" {
		t.Fatalf("unexpected first country: %+v", countries[0])
	}
	if countries[1].Code != "DE" || countries[1].Name != "GERMANY" {
		t.Fatalf("unexpected second country: %+v", countries[1])
	}
}

func TestParseReactorTable(t *testing.T) {
	rows := parseReactorTable(parse(t, countryDetailsHTML))
	if len(rows) != 2 {
		t.Fatalf("expected 2 reactor rows, got %d: %+v", len(rows), rows)
	}

	r := rows[0]
	if r.Name != "CIVAUX-1" || r.Type != "PWR" || r.Status != "Operational" || r.Location != "CIVAUX" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.IAEAID != "143" {
		t.Fatalf("expected IAEA id 143, got %q", r.IAEAID)
	}
	if r.CapacityMW != 1561 {
		t.Fatalf("expected comma-cleaned capacity 1561, got %d", r.CapacityMW)
	}
	if r.GridConnection != "1997-12-24" {
		t.Fatalf("unexpected grid connection: %q", r.GridConnection)
	}

	// Space-separated thousands also parse.
	if rows[1].CapacityMW != 1561 {
		t.Fatalf("expected space-cleaned capacity 1561, got %d", rows[1].CapacityMW)
	}
}

func TestParseReactorTable_NoTable(t *testing.T) {
	rows := parseReactorTable(parse(t, "<html><body><p>no data</p></body></html>"))
	if rows != nil {
		t.Fatalf("expected nil rows without a tablesorter table, got %+v", rows)
	}
}

func TestClientCountriesAndReactors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "reactormap-test" {
			t.Errorf("expected custom user agent, got %q", ua)
		}
		switch {
		case strings.Contains(r.URL.Path, "OperationalReactorsByCountry"):
			w.Write([]byte(countryListHTML))
		case strings.Contains(r.URL.Path, "CountryDetails"):
			w.Write([]byte(countryDetailsHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("reactormap-test", 0)
	c.base = srv.URL

	countries, err := c.Countries(context.Background())
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("expected 2 countries, got %d", len(countries))
	}

	rows, err := c.Reactors(context.Background(), countries[0])
	if err != nil {
		t.Fatalf("Reactors: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Country != "FRANCE" || rows[0].CountryCode != "FR" {
		t.Fatalf("expected country stamped onto rows, got %+v", rows[0])
	}
}

func TestFetchRetriesStopAtHTTPError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("reactormap-test", 0)
	c.base = srv.URL
	c.Retries = 1

	if _, err := c.Countries(context.Background()); err == nil {
		t.Fatalf("expected error from 500 responses")
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", hits)
	}
}
