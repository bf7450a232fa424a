// Package reactor holds the reactor dataset model. Keep this package free of
// transport (HTTP) and scraping concerns.
package reactor

import "time"

// Reactor is one power reactor unit as tracked by IAEA PRIS, optionally
// enriched from Wikipedia and Wikidata.
type Reactor struct {
	ID             string
	Name           string
	Country        string
	CountryCode    string
	Type           string
	Status         string
	Location       string
	CapacityMW     int
	GridConnection string
	IAEAID         string

	WikipediaURL       string
	WikipediaTitle     string
	WikipediaExtract   string
	WikipediaThumbnail string

	WikidataID    string
	Operator      string
	Owner         string
	Architect     string
	Region        string
	CoolingSystem string
	Image         string

	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
}

// Fetched is a reactor row as scraped from a PRIS country page, before it is
// merged into the store.
type Fetched struct {
	Name           string
	Country        string
	CountryCode    string
	Type           string
	Status         string
	Location       string
	CapacityMW     int
	GridConnection string
	IAEAID         string
}

// FleetStats aggregates the stored fleet.
type FleetStats struct {
	Total                 int
	Operational           int
	OperationalCapacityMW int
	LastSyncAt            time.Time
}

// OperationalGW returns the operational capacity in gigawatts.
func (s FleetStats) OperationalGW() float64 {
	return float64(s.OperationalCapacityMW) / 1000
}

var statusMap = map[string]string{
	"Operational":            "Operational",
	"Under Construction":     "Under Construction",
	"Permanent Shutdown":     "Shutdown",
	"Suspended Operation":    "Suspended Operation",
	"Suspended Construction": "Suspended Construction",
	"Long-term Shutdown":     "Suspended Operation",
	"Planned":                "Planned",
}

// NormalizeStatus maps an IAEA status string to the internal status set.
// Unknown statuses pass through unchanged.
func NormalizeStatus(raw string) string {
	if s, ok := statusMap[raw]; ok {
		return s
	}
	return raw
}

// MergeStats summarizes one merge of fetched PRIS rows into the store.
type MergeStats struct {
	Matched int
	Updated int
	New     int
}

// mergePlan holds the column values a matched reactor should end up with
// after one fetched row is applied.
type mergePlan struct {
	CapacityMW int
	Status     string
	IAEAID     string
	Changed    bool
}

// planMerge decides the update for a matched reactor: capacity and status
// follow the fetched row, the IAEA id is backfilled but never overwritten.
func planMerge(capacity int, status, iaeaID string, f Fetched) mergePlan {
	p := mergePlan{CapacityMW: capacity, Status: status, IAEAID: iaeaID}
	if f.CapacityMW > 0 && f.CapacityMW != capacity {
		p.CapacityMW = f.CapacityMW
		p.Changed = true
	}
	if ns := NormalizeStatus(f.Status); ns != "" && ns != status {
		p.Status = ns
		p.Changed = true
	}
	if f.IAEAID != "" && iaeaID == "" {
		p.IAEAID = f.IAEAID
		p.Changed = true
	}
	return p
}
