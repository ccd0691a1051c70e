// Package slackconvention resolves ownership from a chat-channel naming
// convention: a "team-<service>" channel is treated as weak evidence
// that the matching team owns the service. Not a pack dependency, so
// this talks to the Slack Web API directly over net/http rather than
// pulling in an unlisted client library.
package slackconvention

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const confidence = 0.7

type channelListResponse struct {
	OK       bool `json:"ok"`
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
}

// Config points the provider at the Slack Web API.
type Config struct {
	Token  string
	Prefix string // e.g. "team-"
}

// Provider implements ownership.Provider against the Slack conversations API.
type Provider struct {
	token  string
	prefix string
	client *http.Client
}

func New(cfg Config) *Provider {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "team-"
	}
	return &Provider{token: cfg.Token, prefix: prefix, client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *Provider) Name() string { return string(nthlayer.OwnershipChatConvention) }

func (p *Provider) Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error) {
	channel := p.prefix + service

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://slack.com/api/conversations.list?types=public_channel,private_channel", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list channelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("slackconvention: decode channel list: %w", err)
	}
	if !list.OK {
		return nil, fmt.Errorf("slackconvention: api error")
	}

	for _, c := range list.Channels {
		if strings.EqualFold(c.Name, channel) {
			owner := strings.TrimPrefix(strings.ToLower(c.Name), p.prefix)
			return &nthlayer.OwnershipSignal{
				Source:     nthlayer.OwnershipChatConvention,
				Owner:      owner,
				Confidence: confidence,
				Metadata:   map[string]any{"chat_channel": c.Name},
			}, nil
		}
	}
	return nil, nil
}
