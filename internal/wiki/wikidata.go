package wiki

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"reactormap/internal/reactor"
)

const wikidataAPI = "https://www.wikidata.org/w/api.php"

// Wikidata property ids carried onto reactor records.
var wikidataProperties = map[string]string{
	"P137":  "operator",
	"P127":  "owner",
	"P84":   "architect",
	"P131":  "region",
	"P2257": "coolingSystem",
	"P18":   "image",
}

var wikiTitleRe = regexp.MustCompile(`wikipedia\.org/wiki/(.+)$`)

// WikidataClient calls the Wikidata API, reusing the Wikipedia client's HTTP
// setup for the pageprops lookup.
type WikidataClient struct {
	Wikipedia *Client
	// base overrides the Wikidata endpoint in tests.
	base string
}

// NewWikidataClient builds a Wikidata client on top of a Wikipedia client.
func NewWikidataClient(wp *Client) *WikidataClient {
	return &WikidataClient{Wikipedia: wp}
}

func (c *WikidataClient) endpoint() string {
	if c.base != "" {
		return c.base
	}
	return wikidataAPI
}

func (c *WikidataClient) get(ctx context.Context, params url.Values, out interface{}) error {
	return c.Wikipedia.getFrom(ctx, c.endpoint(), params, out)
}

// ItemForPage resolves a Wikipedia article URL to its Wikidata item id
// (e.g. "Q123456"). Returns "" when the article has no linked item.
func (c *WikidataClient) ItemForPage(ctx context.Context, wikipediaURL string) (string, error) {
	m := wikiTitleRe.FindStringSubmatch(wikipediaURL)
	if m == nil {
		return "", nil
	}
	title, err := url.PathUnescape(m[1])
	if err != nil {
		title = m[1]
	}

	params := url.Values{
		"action":    {"query"},
		"titles":    {title},
		"prop":      {"pageprops"},
		"ppprop":    {"wikibase_item"},
		"format":    {"json"},
		"utf8":      {"1"},
		"redirects": {"1"},
	}
	var resp struct {
		Query struct {
			Pages map[string]struct {
				PageProps struct {
					WikibaseItem string `json:"wikibase_item"`
				} `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.Wikipedia.get(ctx, params, &resp); err != nil {
		return "", err
	}
	for _, page := range resp.Query.Pages {
		if page.PageProps.WikibaseItem != "" {
			return page.PageProps.WikibaseItem, nil
		}
	}
	return "", nil
}

type claimsResponse struct {
	Entities map[string]struct {
		Claims map[string][]struct {
			MainSnak struct {
				DataValue struct {
					Type  string          `json:"type"`
					Value json.RawMessage `json:"value"`
				} `json:"datavalue"`
			} `json:"mainsnak"`
		} `json:"claims"`
		Labels map[string]struct {
			Value string `json:"value"`
		} `json:"labels"`
	} `json:"entities"`
}

// Fields fetches the tracked claims for a Wikidata item and resolves entity
// references to their English labels.
func (c *WikidataClient) Fields(ctx context.Context, itemID string) (reactor.WikidataFields, error) {
	fields := reactor.WikidataFields{ID: itemID}

	params := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {itemID},
		"props":     {"claims|labels"},
		"languages": {"en"},
		"format":    {"json"},
		"utf8":      {"1"},
	}
	var resp claimsResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return fields, err
	}

	entity, ok := resp.Entities[itemID]
	if !ok {
		return fields, nil
	}

	for propID, name := range wikidataProperties {
		claims, ok := entity.Claims[propID]
		if !ok || len(claims) == 0 {
			continue
		}
		dv := claims[0].MainSnak.DataValue

		var value string
		switch dv.Type {
		case "wikibase-entityid":
			var ref struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(dv.Value, &ref); err != nil || ref.ID == "" {
				continue
			}
			label, err := c.EntityLabel(ctx, ref.ID)
			if err != nil || label == "" {
				continue
			}
			value = label
		case "string":
			_ = json.Unmarshal(dv.Value, &value)
		case "commonsMedia":
			var filename string
			if err := json.Unmarshal(dv.Value, &filename); err != nil || filename == "" {
				continue
			}
			if name == "image" {
				value = CommonsFileURL(filename)
			}
		}
		if value == "" {
			continue
		}

		switch name {
		case "operator":
			fields.Operator = value
		case "owner":
			fields.Owner = value
		case "architect":
			fields.Architect = value
		case "region":
			fields.Region = value
		case "coolingSystem":
			fields.CoolingSystem = value
		case "image":
			fields.Image = value
		}
	}
	return fields, nil
}

// EntityLabel resolves a Wikidata entity id to its English label.
func (c *WikidataClient) EntityLabel(ctx context.Context, entityID string) (string, error) {
	params := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {entityID},
		"props":     {"labels"},
		"languages": {"en"},
		"format":    {"json"},
		"utf8":      {"1"},
	}
	var resp claimsResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", err
	}
	if entity, ok := resp.Entities[entityID]; ok {
		if label, ok := entity.Labels["en"]; ok {
			return label.Value, nil
		}
	}
	return "", nil
}

// CommonsFileURL builds a stable Wikimedia Commons URL for a media filename.
func CommonsFileURL(filename string) string {
	name := strings.ReplaceAll(filename, " ", "_")
	return "https://commons.wikimedia.org/wiki/Special:FilePath/" + url.PathEscape(name)
}
