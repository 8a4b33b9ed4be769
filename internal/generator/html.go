package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTMLRenderer fetches the page from the origin and writes it back as
// normalized HTML.
type HTMLRenderer struct {
	fetcher TextFetcher
}

func NewHTMLRenderer(fetcher TextFetcher) *HTMLRenderer {
	return &HTMLRenderer{fetcher: fetcher}
}

func (g *HTMLRenderer) Render(ctx context.Context, host, pagePath string) (*Output, error) {
	text, err := g.fetcher.Text(ctx, host, pagePath)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return &Output{HTML: buf.Bytes()}, nil
}
