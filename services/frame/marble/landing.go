package framemarble

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/R3E-Network/frame_layer/manifest"
)

// embedAction is the launch action of the fc:frame embed.
type embedAction struct {
	Type                  string `json:"type"`
	Name                  string `json:"name"`
	URL                   string `json:"url"`
	SplashImageURL        string `json:"splashImageUrl"`
	SplashBackgroundColor string `json:"splashBackgroundColor"`
}

type embedButton struct {
	Title  string      `json:"title"`
	Action embedAction `json:"action"`
}

// Embed is the fc:frame meta tag content that makes a shared link render as
// a launchable frame.
type Embed struct {
	Version  string      `json:"version"`
	ImageURL string      `json:"imageUrl"`
	Button   embedButton `json:"button"`
}

// NewEmbed derives the embed from the discovery document.
func NewEmbed(doc manifest.Document) Embed {
	return Embed{
		Version:  "next",
		ImageURL: doc.Frame.ImageURL,
		Button: embedButton{
			Title: doc.Frame.ButtonTitle,
			Action: embedAction{
				Type:                  "launch_frame",
				Name:                  doc.Frame.Name,
				URL:                   doc.Frame.HomeURL,
				SplashImageURL:        doc.Frame.SplashImageURL,
				SplashBackgroundColor: doc.Frame.SplashBackgroundColor,
			},
		},
	}
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<meta property="og:title" content="{{.Title}}">
<meta property="og:image" content="{{.ImageURL}}">
<meta name="fc:frame" content="{{.Embed}}">
</head>
<body style="margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;background:linear-gradient(#8b5cf6,#ec4899);font-family:sans-serif;color:#fff">
<main style="text-align:center">
<h1>{{.Title}}</h1>
<p>Open this page in a Farcaster client to send 1 USDC.</p>
</main>
</body>
</html>
`))

type landingData struct {
	Title    string
	ImageURL string
	Embed    string
}

func (s *Service) renderLanding() ([]byte, error) {
	doc := s.manifest.Document()
	embed, err := json.Marshal(NewEmbed(doc))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = landingTemplate.Execute(&buf, landingData{
		Title:    doc.Frame.Name,
		ImageURL: doc.Frame.ImageURL,
		Embed:    string(embed),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) handleLanding(w http.ResponseWriter, r *http.Request) {
	page, err := s.renderLanding()
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Error("Render landing page")
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}
