// Package sii fetches tax-document data from the external document registry:
// the CSV export of a period's documents and the listing of available
// periods. It owns the request templates and header requirements of that
// upstream; payload interpretation lives in the normalizer.
package sii

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notluquis/bioalergia-sub006/internal/remote"
)

// DocumentUnit discriminates the two independently-synced document sets.
type DocumentUnit string

const (
	// UnitIssued covers documents issued by the tenant.
	UnitIssued DocumentUnit = "emitidos"

	// UnitReceived covers documents received from counterparties.
	UnitReceived DocumentUnit = "recibidos"
)

// Valid reports whether the unit is one of the known document sets.
func (u DocumentUnit) Valid() bool {
	return u == UnitIssued || u == UnitReceived
}

// Period is one month-period for which the registry reports documents.
type Period struct {
	Period string
	Count  int
}

// CredentialSource supplies bearer credentials and accepts invalidation
// after an upstream authorization failure.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client issues authenticated requests against the document registry.
type Client struct {
	http    *remote.Client
	creds   CredentialSource
	baseURL string
	rut     string
}

// NewClient creates a registry client for the given tenant RUT. workspaceID
// and resourceID are forwarded on every request; the upstream authorizes on
// them in addition to the bearer token.
func NewClient(creds CredentialSource, baseURL, rut, workspaceID, resourceID string, opts ...remote.Option) *Client {
	headers := map[string]string{}
	if workspaceID != "" {
		headers["X-Workspace-Id"] = workspaceID
	}
	if resourceID != "" {
		headers["X-Resource-Id"] = resourceID
	}
	opts = append([]remote.Option{remote.WithForwardingHeaders(headers)}, opts...)
	return &Client{
		http:    remote.NewClient(opts...),
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
		rut:     rut,
	}
}

// FetchDocumentCSV downloads the delimited export of one document unit for
// one period. A NotFoundError from the upstream means the unit has no data
// for the period and is propagated for the caller to treat as empty.
func (c *Client) FetchDocumentCSV(ctx context.Context, unit DocumentUnit, period string) ([]byte, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("unknown document unit %q", unit)
	}
	url := fmt.Sprintf("%s/%s/detalle/%s/periodo/%s/csv", c.baseURL, unit, c.rut, period)
	return c.getWithRetry(ctx, url)
}

// periodEnvelope is the JSON envelope of the period-listing endpoint.
type periodEnvelope struct {
	Code    int `json:"code"`
	Details []struct {
		Periodo   string `json:"periodo"`
		Emitidos  int    `json:"emitidos"`
		Recibidos int    `json:"recibidos"`
	} `json:"details"`
}

// ListPeriods returns the periods for which the registry reports at least one
// document of the given unit. Entries with a zero count are not available
// periods and are dropped.
func (c *Client) ListPeriods(ctx context.Context, unit DocumentUnit) ([]Period, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("unknown document unit %q", unit)
	}
	url := fmt.Sprintf("%s/%s/periodos/%s", c.baseURL, unit, c.rut)
	body, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	var envelope periodEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &remote.TransportError{Err: fmt.Errorf("decoding period listing: %w", err)}
	}

	periods := make([]Period, 0, len(envelope.Details))
	for _, d := range envelope.Details {
		count := d.Emitidos
		if unit == UnitReceived {
			count = d.Recibidos
		}
		if count > 0 {
			periods = append(periods, Period{Period: d.Periodo, Count: count})
		}
	}
	return periods, nil
}

// getWithRetry performs an authenticated GET, forcing one credential refresh
// and retry when the upstream rejects the bearer token.
func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.http.Get(ctx, url, token)
	if err == nil || !remote.IsAuth(err) {
		return body, err
	}

	// The cached credential was rejected; discard it and retry exactly once
	// with a freshly issued one.
	c.creds.Invalidate()
	token, err = c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.Get(ctx, url, token)
}
