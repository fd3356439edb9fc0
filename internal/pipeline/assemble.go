package pipeline

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/mateo/pagesmith/internal/types"
)

// pageTemplate renders the final standalone document. Styling comes entirely
// from the design step's stylesheet; the markup is deliberately plain so the
// patch engine's heuristics have stable structure to work against.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{if .FontsHref}}<link rel="stylesheet" href="{{.FontsHref}}">{{end}}
<style>
{{.CSS}}
</style>
</head>
<body>
<section class="hero">
<h1>{{.Headline}}</h1>
<p>{{.Subheadline}}</p>
{{if .HeroImageSrc}}<img src="{{.HeroImageSrc}}" alt="{{.Title}}">{{end}}
<a class="btn cta" href="#cta">{{.Offer}}</a>
</section>
{{range .Sections}}<section class="{{.Class}}" id="{{.Class}}">
<h2>{{.Heading}}</h2>
<p>{{.Body}}</p>
{{if .CTA}}<a class="btn cta" href="#cta">{{.CTA}}</a>{{end}}
</section>
{{end}}</body>
</html>
`))

type pageSection struct {
	Class   string
	Heading string
	Body    string
	CTA     string
}

type pageView struct {
	Title        string
	FontsHref    template.URL
	CSS          template.CSS
	Headline     string
	Subheadline  string
	Offer        string
	HeroImageSrc template.URL
	Sections     []pageSection
}

// Assemble renders the complete standalone document from the committed step
// outputs. It is deterministic and makes no external calls.
func Assemble(name string, brand *types.BrandOutput, strategy *types.StrategyOutput, sections []types.CopySection, design *types.DesignOutput) string {
	view := pageView{
		Title:       name,
		FontsHref:   template.URL(googleFontsHref(brand)),
		CSS:         template.CSS(design.CSS),
		Headline:    strategy.Headline,
		Subheadline: strategy.Subheadline,
		Offer:       strategy.Offer,
	}
	if img := design.HeroImage; img != nil && !img.Refused && len(img.Data) > 0 {
		view.HeroImageSrc = template.URL(fmt.Sprintf("data:%s;base64,%s",
			img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	for _, s := range sections {
		if s.ID == "hero" {
			continue
		}
		view.Sections = append(view.Sections, pageSection{
			Class:   types.Slugify(s.ID),
			Heading: s.Heading,
			Body:    s.Body,
			CTA:     s.CTA,
		})
	}

	var sb strings.Builder
	if err := pageTemplate.Execute(&sb, view); err != nil {
		// The template has no failure modes beyond a broken writer.
		return ""
	}
	return sb.String()
}

func googleFontsHref(brand *types.BrandOutput) string {
	var families []string
	for _, f := range []string{brand.HeadingFont, brand.BodyFont} {
		if f = strings.TrimSpace(f); f != "" {
			families = append(families, "family="+url.QueryEscape(f))
		}
	}
	if len(families) == 0 {
		return ""
	}
	return "https://fonts.googleapis.com/css2?" + strings.Join(families, "&") + "&display=swap"
}
