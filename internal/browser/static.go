package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// StaticPage is a Page over an in-memory HTML document. It backs `preview`
// of saved pages and lets tests script how the page reacts to clicks and
// navigations through OnClick and OnNavigate.
type StaticPage struct {
	mu      sync.Mutex
	html    string
	address *url.URL
	changes chan struct{}

	// OnClick is called after a selector matched, it usually calls SetHTML.
	OnClick func(page *StaticPage, selector string) error
	// OnNavigate is called after the address changed.
	OnNavigate func(page *StaticPage, address *url.URL) error
}

func NewStaticPage(address, html string) (*StaticPage, error) {
	parsed, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	return &StaticPage{
		html:    html,
		address: parsed,
		changes: make(chan struct{}, 1),
	}, nil
}

// SetHTML replaces the document and signals Changes.
func (p *StaticPage) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()

	select {
	case p.changes <- struct{}{}:
	default:
	}
}

func (p *StaticPage) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

func (p *StaticPage) Document(ctx context.Context) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.HTML()))
}

func (p *StaticPage) URL(ctx context.Context) (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := *p.address
	return &copied, nil
}

func (p *StaticPage) Click(ctx context.Context, selector string) (bool, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return false, err
	}
	if doc.Find(selector).Length() == 0 {
		return false, nil
	}
	if p.OnClick != nil {
		err = p.OnClick(p, selector)
		if err != nil {
			return true, err
		}
	}
	return true, nil
}

func (p *StaticPage) Navigate(ctx context.Context, address string) error {
	p.mu.Lock()
	parsed, err := p.address.Parse(address)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.address = parsed
	p.mu.Unlock()

	if p.OnNavigate != nil {
		return p.OnNavigate(p, parsed)
	}
	return nil
}

func (p *StaticPage) Changes() <-chan struct{} {
	return p.changes
}
