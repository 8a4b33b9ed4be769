package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fulmenhq/offlinegen/internal/assets"
	"github.com/fulmenhq/offlinegen/internal/sheet"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/mediapath"
)

// sheetLink is one (sheet name, sheet URL) row of a channel's locations block.
type sheetLink struct {
	Name string
	Link string
}

// carouselAsset is one scheduled slide.
type carouselAsset struct {
	Link            string `json:"link"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	LaunchStartDate string `json:"launchStartDate"`
	LaunchEndDate   string `json:"launchEndDate"`
	Type            string `json:"type"`
	IsGMT           bool   `json:"isGMT"`
}

// CarouselRenderer builds a self-contained slideshow page from the schedule
// sheets linked in a channel page's ".locations" block.
type CarouselRenderer struct {
	fetcher TextFetcher

	once   sync.Once
	tpl    *raymond.Template
	script string
	style  string
	err    error
}

func NewCarouselRenderer(fetcher TextFetcher) *CarouselRenderer {
	return &CarouselRenderer{fetcher: fetcher}
}

func (g *CarouselRenderer) load() error {
	g.once.Do(func() {
		src, err := assets.GetTemplate("carousel/carousel.hbs")
		if err != nil {
			g.err = err
			return
		}
		script, err := assets.GetTemplate("carousel/carousel.js")
		if err != nil {
			g.err = err
			return
		}
		style, err := assets.GetTemplate("carousel/carousel.css")
		if err != nil {
			g.err = err
			return
		}
		tpl, err := raymond.Parse(string(src))
		if err != nil {
			g.err = fmt.Errorf("parse carousel template: %w", err)
			return
		}
		tpl.RegisterHelper("title", func(s string) string {
			return cases.Title(language.English).String(strings.NewReplacer("-", " ", "_", " ").Replace(s))
		})
		g.tpl, g.script, g.style = tpl, string(script), string(style)
	})
	return g.err
}

// Render fetches the channel page, collects the scheduled assets and renders
// the carousel. Invalid rows are skipped. When no asset survived and a sheet
// failed, no HTML is produced.
func (g *CarouselRenderer) Render(ctx context.Context, host, pagePath string) (*Output, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	page, err := g.fetcher.Text(ctx, host, pagePath)
	if err != nil {
		return nil, err
	}
	links, err := extractSheetLinks(page)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		logger.Warn("no schedule sheets found", logger.String("page", pagePath))
	}

	var slides []carouselAsset
	sheetFailed := false
	for _, l := range links {
		rows, err := g.sheetRows(ctx, host, l)
		if err != nil {
			sheetFailed = true
			logger.Warn("schedule sheet unusable, skipping",
				logger.String("page", pagePath),
				logger.String("sheet", l.Name),
				logger.String("link", l.Link),
				logger.Err(err))
			continue
		}
		for i, row := range rows {
			a, err := assetFromRow(row)
			if err != nil {
				logger.Warn("invalid schedule row, skipping",
					logger.String("page", pagePath),
					logger.String("sheet", l.Name),
					logger.Int("row", i),
					logger.Err(err))
				continue
			}
			slides = append(slides, a)
		}
	}

	if len(slides) == 0 && sheetFailed {
		logger.Warn("no assets extracted after sheet errors, not writing html", logger.String("page", pagePath))
		return &Output{}, nil
	}

	out, err := g.render(pagePath, slides)
	if err != nil {
		return nil, err
	}
	return &Output{HTML: []byte(out), Extra: sameOriginPaths(host, slides)}, nil
}

func (g *CarouselRenderer) sheetRows(ctx context.Context, host string, l sheetLink) ([]map[string]interface{}, error) {
	u, err := url.Parse(strings.TrimSpace(l.Link))
	if err != nil {
		return nil, fmt.Errorf("invalid sheet link: %w", err)
	}
	if u.Path == "" {
		return nil, fmt.Errorf("sheet link %q has no path", l.Link)
	}
	raw, err := g.fetcher.Text(ctx, host, u.Path)
	if err != nil {
		return nil, err
	}
	return sheet.Rows[map[string]interface{}]([]byte(raw), l.Name)
}

func (g *CarouselRenderer) render(pagePath string, slides []carouselAsset) (string, error) {
	if slides == nil {
		slides = []carouselAsset{}
	}
	data, err := json.Marshal(slides)
	if err != nil {
		return "", err
	}
	return g.tpl.Exec(map[string]interface{}{
		"name":       mediapath.CurrentPathName(pagePath),
		"path":       pagePath,
		"count":      len(slides),
		"assetsJSON": string(data),
		"script":     g.script,
		"style":      g.style,
	})
}

func assetFromRow(row map[string]interface{}) (carouselAsset, error) {
	field := func(k string) string {
		v, ok := row[k]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
	a := carouselAsset{
		Link:            field("Link"),
		StartTime:       field("Start Time"),
		EndTime:         field("End Time"),
		LaunchStartDate: field("Launch Start"),
		LaunchEndDate:   field("Launch End"),
		IsGMT:           isGMT(field("Timezone")),
	}
	kind, err := mediaType(a.Link)
	if err != nil {
		return a, err
	}
	a.Type = kind
	for _, t := range []string{a.StartTime, a.EndTime} {
		if err := validateTime(t); err != nil {
			return a, err
		}
	}
	for _, d := range []string{a.LaunchStartDate, a.LaunchEndDate} {
		if err := validateDate(d); err != nil {
			return a, err
		}
	}
	return a, nil
}

// sameOriginPaths returns the origin paths of slides hosted by host, so the
// page manifest lists them.
func sameOriginPaths(host string, slides []carouselAsset) []string {
	hu, err := url.Parse(host)
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range slides {
		u, err := url.Parse(s.Link)
		if err != nil || u.Path == "" {
			continue
		}
		if (u.Host == "" && strings.HasPrefix(u.Path, "/")) || strings.EqualFold(u.Host, hu.Host) {
			out = append(out, u.Path)
		}
	}
	return out
}

// extractSheetLinks reads the (name, link) rows of the ".locations" block.
// Rows are either elements whose first two child elements hold name and
// link, or, failing that, nested first-child divs followed by their link
// sibling.
func extractSheetLinks(page string) ([]sheetLink, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse channel html: %w", err)
	}
	container := findByClass(doc, "locations")
	if container == nil {
		return nil, nil
	}

	var links []sheetLink
	for _, row := range elementChildren(container) {
		cells := elementChildren(row)
		if len(cells) < 2 {
			continue
		}
		name, link := collectText(cells[0]), collectText(cells[1])
		if name != "" && link != "" {
			links = append(links, sheetLink{Name: name, Link: link})
		}
	}
	if len(links) > 0 {
		return links, nil
	}

	firsts := firstChildDivs(container)
	for i, n := range firsts {
		if i == 0 {
			continue
		}
		next := nextElement(n)
		if next == nil {
			continue
		}
		name, link := collectText(n), collectText(next)
		if name != "" && link != "" {
			links = append(links, sheetLink{Name: name, Link: link})
		}
	}
	return links, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// firstChildDivs returns, in document order, every div below root that is
// the first element child of its parent.
func firstChildDivs(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Div && elementChildren(n)[0] == c {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
