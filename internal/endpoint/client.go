// Package endpoint talks to the remote aggregation endpoint.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"mfsync/internal/components/assert"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/scrapers/moneyforward"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_send            = "client.send"
	report_client_get_sync_config = "client.get-sync-config"
	report_client_sync_data       = "client.sync-data"
)

const snippetLength = 200

type SyncMode string

const (
	SyncFull        SyncMode = "Full"
	SyncIncremental SyncMode = "Incremental"
)

// SyncConfig is supplied by the endpoint and picks the depth of a sync.
type SyncConfig struct {
	Mode SyncMode
}

type Options struct {
	// Retries is the number of attempts made after the first one failed.
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	// RequestsPerSecond limits outgoing requests, zero disables the limit.
	RequestsPerSecond float64
}

type request struct {
	Action string                `json:"action"`
	Data   []moneyforward.Record `json:"data,omitempty"`
}

type response struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type Client struct {
	http    *resty.Client
	address string
	opts    Options
	tel     telemetry.API
}

func NewClient(address string, opts Options, tel telemetry.API) *Client {
	assert.NotEmptyStr(address)
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("endpoint", tel)

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	// avoids a preflight on deployments that only accept simple requests
	httpClient.SetHeader("Content-Type", "text/plain;charset=utf-8")

	if opts.RequestsPerSecond > 0 {
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:    httpClient,
		address: address,
		opts:    opts,
		tel:     tel,
	}
}

func (c *Client) Address() string {
	return c.address
}

// Send posts payload and decodes the JSON answer into out. Transport
// failures and non-success statuses are retried with a fixed delay, invalid
// or explicitly failed responses are not.
func (c *Client) Send(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		c.tel.ReportBroken(report_client_send, fmt.Errorf("json marshal: %w", err))
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), uint64(max(c.opts.Retries, 0))),
		ctx,
	)

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++

		res, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(c.address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if res.IsError() {
			return fmt.Errorf("http status %s", res.Status())
		}

		err = decode(res, out)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch err.(type) {
	case *InvalidResponseError, *ApplicationError:
		c.tel.ReportBroken(report_client_send, err, c.address)
		return err
	}

	netErr := &NetworkError{Attempts: attempts, Err: err}
	c.tel.ReportBroken(report_client_send, netErr, c.address)
	return netErr
}

func decode(res *resty.Response, out any) error {
	raw := bytes.TrimSpace(res.Body())
	if len(raw) == 0 || raw[0] == '<' {
		return &InvalidResponseError{Status: res.StatusCode(), Snippet: snippet(raw)}
	}

	var envelope response
	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return &InvalidResponseError{Status: res.StatusCode(), Snippet: snippet(raw), Err: err}
	}
	if envelope.Status == "error" {
		return &ApplicationError{Message: envelope.Message}
	}
	if out == nil {
		return nil
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return &InvalidResponseError{Status: res.StatusCode(), Snippet: snippet(raw), Err: err}
	}
	return nil
}

func snippet(raw []byte) string {
	if len(raw) <= snippetLength {
		return string(raw)
	}
	cut := raw[:snippetLength]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "..."
}

// GetSyncConfig asks the endpoint how deep the sync should go. Unknown modes
// fall back to an incremental sync.
func (c *Client) GetSyncConfig(ctx context.Context) (SyncConfig, error) {
	var res response
	err := c.Send(ctx, request{Action: "get_sync_config"}, &res)
	if err != nil {
		return SyncConfig{}, err
	}

	mode := SyncMode(res.Mode)
	switch mode {
	case SyncFull, SyncIncremental:
	default:
		c.tel.ReportWarning(report_client_get_sync_config, "unknown sync mode, using incremental", res.Mode)
		mode = SyncIncremental
	}
	return SyncConfig{Mode: mode}, nil
}

// SyncData delivers records and returns how many the endpoint newly stored.
func (c *Client) SyncData(ctx context.Context, records []moneyforward.Record) (int, error) {
	c.tel.ReportDebug(report_client_sync_data, len(records))

	var res response
	err := c.Send(ctx, request{Action: "sync_data", Data: records}, &res)
	if err != nil {
		return 0, err
	}
	c.tel.ReportCount(report_client_sync_data, int64(res.Count))
	return res.Count, nil
}
