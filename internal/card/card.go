// Package card describes the ReactorMap social-preview image. It builds the
// visual tree as an HTML document; rasterization is delegated to the render
// package.
package card

import (
	"fmt"
	"strings"
	"text/template"

	"reactormap/internal/reactor"
)

// Social-media link-preview cards are conventionally 1200x630.
const (
	Width  = 1200
	Height = 630

	MIMEType = "image/png"
	AltText  = "ReactorMap - Global Nuclear Power Tracker"
)

// Document is a fully described card, ready to hand to the renderer.
type Document struct {
	HTML    string
	Width   int
	Height  int
	MIME    string
	AltText string
}

type badges struct {
	Reactors string
	Globe    string
	Status   string
}

var defaultBadges = badges{
	Reactors: "800+ Reactors",
	Globe:    "3D Globe",
	Status:   "Live Status",
}

// Compose returns the static preview card. All content is literal, so the
// result is byte-identical across calls.
func Compose() Document {
	return compose(defaultBadges)
}

// ComposeWithStats returns the card with badge copy derived from the current
// fleet statistics. Layout and dimensions are identical to Compose.
func ComposeWithStats(s reactor.FleetStats) Document {
	b := defaultBadges
	if s.Total > 0 {
		b.Reactors = fmt.Sprintf("%d Reactors", s.Total)
	}
	if gw := s.OperationalGW(); gw > 0 {
		b.Globe = fmt.Sprintf("%.0f GW Capacity", gw)
	}
	return compose(b)
}

func compose(b badges) Document {
	var sb strings.Builder
	if err := cardTmpl.Execute(&sb, struct {
		Width, Height int
		Badges        badges
	}{Width, Height, b}); err != nil {
		// The template and its data are compile-time constants; execution
		// cannot fail at runtime.
		panic("card: template execution: " + err.Error())
	}
	return Document{
		HTML:    sb.String(),
		Width:   Width,
		Height:  Height,
		MIME:    MIMEType,
		AltText: AltText,
	}
}

// text/template, not html/template: all inputs are compile-time literals and
// html/template would entity-escape copy such as "800+ Reactors".
var cardTmpl = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    width: {{.Width}}px;
    height: {{.Height}}px;
    overflow: hidden;
    font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: linear-gradient(135deg, #0a0e1a 0%, #101829 55%, #0d1322 100%);
    color: #ffffff;
    position: relative;
    display: flex;
    flex-direction: column;
    align-items: center;
    justify-content: center;
  }
  .glow {
    position: absolute;
    border-radius: 50%;
    filter: blur(90px);
  }
  .glow-emerald {
    width: 480px; height: 480px;
    left: -120px; top: -140px;
    background: rgba(16, 185, 129, 0.28);
  }
  .glow-cyan {
    width: 520px; height: 520px;
    right: -140px; bottom: -180px;
    background: rgba(34, 211, 238, 0.22);
  }
  .atom {
    position: absolute;
    right: 70px;
    top: 60px;
    opacity: 0.85;
  }
  .title {
    font-size: 96px;
    font-weight: 800;
    letter-spacing: -2px;
    background: linear-gradient(90deg, #34d399 0%, #22d3ee 100%);
    -webkit-background-clip: text;
    background-clip: text;
    color: transparent;
  }
  .subtitle {
    margin-top: 12px;
    font-size: 38px;
    font-weight: 500;
    color: #94a3b8;
  }
  .badges {
    margin-top: 48px;
    display: flex;
    gap: 24px;
  }
  .badge {
    padding: 14px 30px;
    border-radius: 9999px;
    border: 1px solid rgba(52, 211, 153, 0.45);
    background: rgba(16, 185, 129, 0.12);
    font-size: 26px;
    font-weight: 600;
    color: #6ee7b7;
  }
  .site {
    position: absolute;
    bottom: 38px;
    font-size: 26px;
    letter-spacing: 1px;
    color: #64748b;
  }
</style>
</head>
<body>
  <div class="glow glow-emerald"></div>
  <div class="glow glow-cyan"></div>
  <svg class="atom" width="180" height="180" viewBox="0 0 180 180" fill="none" xmlns="http://www.w3.org/2000/svg">
    <circle cx="90" cy="90" r="14" fill="#34d399"/>
    <ellipse cx="90" cy="90" rx="78" ry="30" stroke="#22d3ee" stroke-width="3" opacity="0.8"/>
    <ellipse cx="90" cy="90" rx="78" ry="30" stroke="#34d399" stroke-width="3" opacity="0.8" transform="rotate(60 90 90)"/>
    <ellipse cx="90" cy="90" rx="78" ry="30" stroke="#818cf8" stroke-width="3" opacity="0.8" transform="rotate(120 90 90)"/>
    <circle cx="12" cy="90" r="6" fill="#22d3ee"/>
    <circle cx="129" cy="158" r="6" fill="#34d399"/>
  </svg>
  <div class="title">ReactorMap</div>
  <div class="subtitle">Global Nuclear Power Tracker</div>
  <div class="badges">
    <div class="badge">{{.Badges.Reactors}}</div>
    <div class="badge">{{.Badges.Globe}}</div>
    <div class="badge">{{.Badges.Status}}</div>
  </div>
  <div class="site">reactormap.com</div>
</body>
</html>
`))
