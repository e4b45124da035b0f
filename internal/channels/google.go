package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/notluquis/bioalergia-sub006/internal/remote"
)

// googleProvider talks to the calendar provider's watch/stop endpoints.
type googleProvider struct {
	http    *remote.Client
	creds   CredentialSource
	baseURL string
}

// NewGoogleProvider creates a Provider over the calendar provider's push
// subscription API.
func NewGoogleProvider(creds CredentialSource, baseURL string, opts ...remote.Option) Provider {
	return &googleProvider{
		http:    remote.NewClient(opts...),
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// watchBody is the provider registration payload.
type watchBody struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Params  map[string]string `json:"params,omitempty"`
}

// watchResult is the provider registration response.
type watchResult struct {
	ResourceID string `json:"resourceId"`
	Expiration string `json:"expiration"` // epoch milliseconds as string
}

func (p *googleProvider) Watch(ctx context.Context, req WatchRequest) (*WatchResponse, error) {
	token, err := p.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	body := watchBody{
		ID:      req.ChannelID,
		Type:    "web_hook",
		Address: req.Address,
	}
	if req.TTL > 0 {
		body.Params = map[string]string{
			"ttl": strconv.FormatInt(int64(req.TTL.Seconds()), 10),
		}
	}

	url := fmt.Sprintf("%s/calendars/%s/events/watch", p.baseURL, req.OwnerResourceID)
	var result watchResult
	if err := p.http.PostJSON(ctx, url, token, body, &result); err != nil {
		return nil, err
	}

	resp := &WatchResponse{ExternalResourceID: result.ResourceID}
	if ms, err := strconv.ParseInt(result.Expiration, 10, 64); err == nil && ms > 0 {
		resp.Expiration = time.UnixMilli(ms)
	}
	return resp, nil
}

// stopBody is the provider cancellation payload.
type stopBody struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
}

func (p *googleProvider) Stop(ctx context.Context, channelID, externalResourceID string) error {
	token, err := p.creds.Token(ctx)
	if err != nil {
		return err
	}
	url := p.baseURL + "/channels/stop"
	return p.http.PostJSON(ctx, url, token, stopBody{ID: channelID, ResourceID: externalResourceID}, nil)
}
