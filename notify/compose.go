package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/yuin/goldmark"
)

const digestTemplate = `<h2>{{if .NoMatches}}Idea Monitoring Report: no new competitors{{else}}Idea Monitoring Report{{end}}</h2>
<p><strong>Your Idea:</strong> {{.IdeaTitle}}</p>
{{- if .NoMatches}}
<p>We ran your scheduled scan and found no new products similar to your idea. We will keep watching.</p>
{{- else}}
<h3>Similar Products Found:</h3>
<ul>
{{- range .Items}}
<li>
<strong>{{.Name}}</strong> ({{.Score}}% similar)<br>
Source: {{.Source}}<br>
Price: {{.Price}}<br>
<a href="{{.URL}}">View Product</a><br>
<em>Why similar:</em> {{.Reasoning}}
{{- if .Advantage}}<br><em>Your advantage:</em> {{.Advantage}}{{end}}
{{- if .RelevantURL}}<br>Is this a real competitor? <a href="{{.RelevantURL}}">Yes</a> | <a href="{{.IrrelevantURL}}">No</a>{{end}}
</li>
{{- end}}
</ul>
{{- end}}
{{- if .Verdict}}
<h3>Verdict</h3>
{{.Verdict}}
{{- end}}
{{- if .Gap}}
<h3>Market Gap</h3>
{{.Gap}}
{{- end}}
{{- if .UnsubscribeURL}}
<p><small><a href="{{.UnsubscribeURL}}">Unsubscribe</a></small></p>
{{- end}}
`

var digestTmpl = template.Must(template.New("digest").Parse(digestTemplate))

type itemView struct {
	Name          string
	URL           template.URL
	Source        string
	Price         string
	Score         int
	Reasoning     string
	Advantage     string
	RelevantURL   template.URL
	IrrelevantURL template.URL
}

type digestView struct {
	IdeaTitle      string
	NoMatches      bool
	Items          []itemView
	Verdict        template.HTML
	Gap            template.HTML
	UnsubscribeURL template.URL
}

// Composer renders digests. BaseURL, when set, is used to build the
// feedback and unsubscribe links.
type Composer struct {
	baseURL string
	md      goldmark.Markdown
	text    *converter.Converter
}

// NewComposer creates a Composer.
func NewComposer(baseURL string) *Composer {
	return &Composer{
		baseURL: strings.TrimRight(baseURL, "/"),
		md:      goldmark.New(),
		text: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Subject returns the subject line for d.
func Subject(d Digest) string {
	if d.NoMatches {
		return "Monitoring update: no new competitors found"
	}
	if len(d.Items) == 1 {
		return "🚨 1 New Competitor Found for Your Idea"
	}
	return fmt.Sprintf("🚨 %d New Competitors Found for Your Idea", len(d.Items))
}

// Compose renders d into a Message with HTML and plain-text bodies.
func (c *Composer) Compose(d Digest) (Message, error) {
	view := digestView{
		IdeaTitle: d.IdeaTitle,
		NoMatches: d.NoMatches,
	}
	for _, it := range d.Items {
		iv := itemView{
			Name:      it.Name,
			URL:       safeURL(it.URL),
			Source:    it.Source,
			Price:     formatPrice(it.Price),
			Score:     it.Score,
			Reasoning: it.Reasoning,
			Advantage: it.Advantage,
		}
		if c.baseURL != "" && it.CompetitorID != "" {
			iv.RelevantURL = template.URL(c.feedbackURL(it.CompetitorID, true))
			iv.IrrelevantURL = template.URL(c.feedbackURL(it.CompetitorID, false))
		}
		view.Items = append(view.Items, iv)
	}
	if d.Verdict != "" {
		v, err := c.markdown(d.Verdict)
		if err != nil {
			return Message{}, err
		}
		view.Verdict = v
	}
	if d.Gap != "" {
		g, err := c.markdown(d.Gap)
		if err != nil {
			return Message{}, err
		}
		view.Gap = g
	}
	if c.baseURL != "" {
		view.UnsubscribeURL = template.URL(c.baseURL + "/api/unsubscribe?email=" + url.QueryEscape(d.To))
	}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	html := buf.String()
	text, err := c.text.ConvertString(html)
	if err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{
		To:      d.To,
		Subject: Subject(d),
		HTML:    html,
		Text:    text,
	}, nil
}

func (c *Composer) feedbackURL(competitorID string, relevant bool) string {
	v := "0"
	if relevant {
		v = "1"
	}
	return c.baseURL + "/api/feedback?competitor_id=" + url.QueryEscape(competitorID) + "&is_relevant=" + v
}

// markdown renders model-written text. Raw HTML in the input is not passed through.
func (c *Composer) markdown(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func formatPrice(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *p)
}

// safeURL only lets http(s) links through to href attributes.
func safeURL(raw string) template.URL {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "#"
	}
	return template.URL(u.String())
}
