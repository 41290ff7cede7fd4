package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"mfsync/internal/browser"
	"mfsync/internal/components/chrono"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/endpoint"
	"mfsync/internal/orchestrator"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/internal/session"
)

// app holds what every command shares, built from the loaded config.
type app struct {
	cfg       Config
	tel       telemetry.API
	clock     chrono.API
	kv        session.SQLKV
	sessions  session.Store
	selectors moneyforward.Selectors
}

func openApp(cfg Config) (*app, error) {
	tel := telemetry.SlogAPI{}

	clock, err := chrono.NewStandardImpl(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("sync.timezone: %w", err)
	}
	selectors, err := moneyforward.WithDefaults(cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("selectors: %w", err)
	}
	kv, err := session.OpenSQLKV(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{
		cfg:       cfg,
		tel:       tel,
		clock:     clock,
		kv:        kv,
		sessions:  session.NewStore(kv, tel),
		selectors: selectors,
	}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

func validateEndpoint(address string) error {
	parsed, err := url.Parse(address)
	if err != nil {
		return err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("endpoint address must be an http(s) url, got %q", address)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint address %q has no host", address)
	}
	return nil
}

// prompter asks the user a question and returns the answer line.
type prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// endpointAddress returns the stored endpoint, then the configured one. When
// neither exists and prompt is set, the user is asked and the answer stored.
func (a *app) endpointAddress(ctx context.Context, prompt prompter) (string, error) {
	address, err := a.sessions.Endpoint(ctx)
	if err != nil {
		return "", err
	}
	if address != "" {
		return address, nil
	}
	if a.cfg.Endpoint.URL != "" {
		return a.cfg.Endpoint.URL, nil
	}
	if prompt == nil {
		return "", fmt.Errorf("no endpoint address, set one with `mfsync endpoint set <url>`")
	}

	line, err := prompt.Ask(ctx, "Endpoint (deployment) URL: ")
	if err != nil {
		return "", fmt.Errorf("read endpoint address: %w", err)
	}
	address = strings.TrimSpace(line)
	err = validateEndpoint(address)
	if err != nil {
		return "", err
	}
	err = a.sessions.SetEndpoint(ctx, address)
	if err != nil {
		return "", err
	}
	return address, nil
}

func (a *app) connectPage(ctx context.Context) (*browser.RodPage, error) {
	return browser.ConnectRod(ctx, a.cfg.Browser, a.tel)
}

func (a *app) orchestrator(page browser.Page, address string) (*orchestrator.Orchestrator, error) {
	opts, err := a.cfg.orchestratorOptions()
	if err != nil {
		return nil, err
	}
	sink := endpoint.NewClient(address, a.cfg.endpointOptions(), a.tel)
	return orchestrator.New(page, a.selectors, a.sessions, sink, a.clock, opts, a.tel), nil
}

// sync resumes the pending session if there is one, otherwise starts a new
// run in mode.
func (a *app) sync(ctx context.Context, page browser.Page, address string, mode session.Mode) (orchestrator.Result, error) {
	orch, err := a.orchestrator(page, address)
	if err != nil {
		return orchestrator.Result{}, err
	}
	res, resumed, err := orch.Resume(ctx)
	if resumed {
		if res.Mode != mode {
			a.tel.ReportWarning("app.sync", "resumed a pending session instead of starting a new one", string(res.Mode))
		}
		return res, err
	}
	if err != nil {
		return res, err
	}
	return orch.Run(ctx, mode)
}
