package handlers

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/lovegallery/api/internal/platform/observability"
	"github.com/lovegallery/api/internal/services"
)

const ogDescriptionLimit = 160

var sharePageTemplate = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Description}}">
{{- if .URL}}
<meta property="og:url" content="{{.URL}}">
{{- end}}
{{- if .Image}}
<meta property="og:image" content="{{.Image}}">
{{- end}}
<meta property="og:type" content="website">
</head>
{{- if .Found}}
<body class="theme-{{.Theme}}">
<main>
<h1 class="names"><span class="your-name">{{.YourName}}</span> &amp; <span class="partner-name">{{.PartnerName}}</span></h1>
{{- if .SpecialDate}}
<p class="special-date">{{.SpecialDate}}</p>
{{- end}}
<p class="love-message">{{.Message}}</p>
<ul class="photos">
{{- range .Photos}}
<li class="photo"><img src="{{.URL}}" alt="{{.Caption}}">{{if .Caption}}<span class="caption">{{.Caption}}</span>{{end}}</li>
{{- end}}
</ul>
{{- if .Stories}}
<section class="stories">
{{- range .Stories}}
<article class="story"><h2>{{.Title}}</h2><div class="story-body">{{.Body}}</div></article>
{{- end}}
</section>
{{- end}}
{{- if .MusicURL}}
<audio class="music" src="{{.MusicURL}}" loop></audio>
{{- end}}
<a class="share-whatsapp" href="{{.WhatsApp}}">Share on WhatsApp</a>
</main>
</body>
{{- else}}
<body class="not-found">
<main>
<h1>Gallery Not Found</h1>
<p>This love gallery doesn't exist or may have been removed.</p>
</main>
</body>
{{- end}}
</html>
`))

type sharePhoto struct {
	URL     string
	Caption string
}

type shareStory struct {
	Title string
	Body  template.HTML
}

type sharePageData struct {
	Found       bool
	Title       string
	Description string
	URL         string
	Image       string
	Theme       string
	YourName    string
	PartnerName string
	SpecialDate string
	Message     string
	Photos      []sharePhoto
	Stories     []shareStory
	MusicURL    string
	WhatsApp    string
}

// SharePageHandlers render the link preview page served at /g/{ref}.
type SharePageHandlers struct {
	resolver services.GalleryResolver
	logger   observability.EventLogger
}

func NewSharePageHandlers(resolver services.GalleryResolver, logger observability.EventLogger) *SharePageHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SharePageHandlers{resolver: resolver, logger: logger}
}

// Routes registers /g/{ref}; mount at the site root.
func (h *SharePageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/g/{ref}", h.renderGallery)
}

func (h *SharePageHandlers) renderGallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.resolver == nil {
		writeHTML(w, http.StatusServiceUnavailable, notFoundPage())
		return
	}
	view, err := h.resolver.Resolve(ctx, chi.URLParam(r, "ref"))
	switch {
	case errors.Is(err, services.ErrGalleryNotFound), errors.Is(err, services.ErrGalleryInvalidInput):
		writeHTML(w, http.StatusNotFound, notFoundPage())
		return
	case err != nil:
		h.logger(ctx, "share_page.resolve_failed", map[string]any{"error": err})
		writeHTML(w, http.StatusServiceUnavailable, notFoundPage())
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeHTML(w, http.StatusOK, sharePageFromView(view))
}

func sharePageFromView(view services.GalleryView) sharePageData {
	g := view.Gallery
	data := sharePageData{
		Found:       true,
		Title:       g.YourName + " & " + g.PartnerName + "'s Love Gallery",
		Description: truncateRunes(g.LoveMessage, ogDescriptionLimit),
		URL:         view.ShareURL,
		Theme:       view.Theme.ID,
		YourName:    g.YourName,
		PartnerName: g.PartnerName,
		SpecialDate: g.SpecialDate,
		Message:     g.LoveMessage,
		MusicURL:    view.MusicURL,
		WhatsApp:    view.WhatsAppShare,
	}
	for _, photo := range g.Photos {
		if data.Image == "" && photo.Uploaded {
			data.Image = photo.URL
		}
		data.Photos = append(data.Photos, sharePhoto{URL: photo.URL, Caption: photo.Caption})
	}
	for i, story := range g.Stories {
		item := shareStory{Title: story.Title}
		if i < len(view.StoriesHTML) {
			// StoriesHTML is sanitised by the resolver.
			item.Body = template.HTML(view.StoriesHTML[i])
		}
		data.Stories = append(data.Stories, item)
	}
	return data
}

func notFoundPage() sharePageData {
	return sharePageData{
		Title:       "Gallery Not Found",
		Description: "This love gallery doesn't exist or may have been removed.",
	}
}

func writeHTML(w http.ResponseWriter, status int, data sharePageData) {
	var buf bytes.Buffer
	if err := sharePageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}
