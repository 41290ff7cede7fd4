package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"mfsync/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	report_rod_connect = "rod.connect"
	report_rod_click   = "rod.click"
	report_rod_observe = "rod.observe"
)

type RodOptions struct {
	// ControlURL is the DevTools websocket of an already running browser in
	// which the user is logged in. When empty a browser is launched.
	ControlURL string `json:"control_url"`
	// UserDataDir keeps the login session of a launched browser across runs.
	UserDataDir string `json:"user_data_dir"`
	Bin         string `json:"bin"`
	Headless    bool   `json:"headless"`
	// PageURL is opened when no existing tab already shows it.
	PageURL string `json:"page_url"`
}

// RodPage is a Page backed by a Chromium tab controlled through go-rod.
type RodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launched bool
	events   domEvents
	tel      telemetry.API
}

// domEvents maps DevTools events to Changes notifications. Child node events
// are only sent for nodes the client has fetched, so every new document
// queues a refetch of the whole tree.
type domEvents struct {
	changes chan struct{}
	refetch chan struct{}
}

func newDOMEvents() domEvents {
	return domEvents{
		changes: make(chan struct{}, 1),
		refetch: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (e domEvents) documentReplaced() {
	signal(e.refetch)
	signal(e.changes)
}

func (e domEvents) nodesChanged() {
	signal(e.changes)
}

// ConnectRod attaches to (or launches) a browser and picks the tab showing
// opts.PageURL, opening one if needed. The returned page stays usable until
// ctx ends or Close is called.
func ConnectRod(ctx context.Context, opts RodOptions, tel telemetry.API) (*RodPage, error) {
	tel = telemetry.NewScopedAPI("browser", tel)

	controlURL := opts.ControlURL
	launched := false
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		var err error
		controlURL, err = l.Context(ctx).Launch()
		if err != nil {
			tel.ReportBroken(report_rod_connect, fmt.Errorf("launch: %w", err))
			return nil, err
		}
		launched = true
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	err := browser.Connect()
	if err != nil {
		tel.ReportBroken(report_rod_connect, fmt.Errorf("connect: %w", err), controlURL)
		return nil, err
	}

	page, err := findPage(browser, opts.PageURL)
	if err != nil {
		tel.ReportBroken(report_rod_connect, fmt.Errorf("open page: %w", err), opts.PageURL)
		return nil, err
	}

	p := &RodPage{
		browser:  browser,
		page:     page,
		launched: launched,
		events:   newDOMEvents(),
		tel:      tel,
	}
	err = proto.DOMEnable{}.Call(page)
	if err != nil {
		// waits still poll without DOM events
		tel.ReportWarning(report_rod_observe, fmt.Errorf("enable dom: %w", err))
	}
	go p.observe(ctx)
	go p.trackDocument(ctx)
	signal(p.events.refetch)
	return p, nil
}

func findPage(browser *rod.Browser, pageURL string) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err == nil && pageURL != "" {
		parsed, parseErr := url.Parse(pageURL)
		if parseErr == nil && parsed.Host != "" {
			existing, findErr := pages.FindByURL(regexp.QuoteMeta(parsed.Host))
			if findErr == nil {
				return existing, nil
			}
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, err
	}
	return page, page.WaitLoad()
}

// observe turns DOM and load events into Changes notifications.
func (p *RodPage) observe(ctx context.Context) {
	wait := p.page.Context(ctx).EachEvent(
		func(*proto.DOMDocumentUpdated) { p.events.documentReplaced() },
		func(*proto.PageLoadEventFired) { p.events.documentReplaced() },
		func(*proto.DOMChildNodeInserted) { p.events.nodesChanged() },
		func(*proto.DOMChildNodeRemoved) { p.events.nodesChanged() },
		func(*proto.DOMChildNodeCountUpdated) { p.events.nodesChanged() },
		func(*proto.DOMCharacterDataModified) { p.events.nodesChanged() },
	)
	wait()
}

// trackDocument fetches the full node tree whenever a document replaced the
// previous one, so in-place re-renders emit child node events.
func (p *RodPage) trackDocument(ctx context.Context) {
	depth := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.events.refetch:
			_, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(p.page.Context(ctx))
			if err != nil && ctx.Err() == nil {
				p.tel.ReportWarning(report_rod_observe, fmt.Errorf("get document: %w", err))
			}
		}
	}
}

func (p *RodPage) Document(ctx context.Context) (*goquery.Document, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *RodPage) URL(ctx context.Context) (*url.URL, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return nil, err
	}
	return url.Parse(info.URL)
}

func (p *RodPage) Click(ctx context.Context, selector string) (bool, error) {
	elements, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return false, err
	}
	if elements.Empty() {
		return false, nil
	}
	el := elements.First()

	err = el.Click(proto.InputMouseButtonLeft, 1)
	if err == nil {
		return true, nil
	}

	// controls hidden behind sticky headers cannot receive a real mouse click
	p.tel.ReportWarning(report_rod_click, fmt.Errorf("mouse click: %w", err), selector)
	_, err = el.Eval(`() => this.click()`)
	if err != nil {
		p.tel.ReportBroken(report_rod_click, fmt.Errorf("script click: %w", err), selector)
		return true, err
	}
	return true, nil
}

func (p *RodPage) Navigate(ctx context.Context, address string) error {
	page := p.page.Context(ctx)
	err := page.Navigate(address)
	if err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *RodPage) Changes() <-chan struct{} {
	return p.events.changes
}

// Close closes the browser only if it was launched by ConnectRod, an attached
// browser belongs to the user.
func (p *RodPage) Close() error {
	if !p.launched {
		return nil
	}
	return p.browser.Close()
}
