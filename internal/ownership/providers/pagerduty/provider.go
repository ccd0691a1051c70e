// Package pagerduty resolves ownership from an on-call/escalation REST
// API, attributing the primary and secondary on-call responders.
package pagerduty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	primaryConfidence   = 0.95
	secondaryConfidence = 0.90
)

type onCallResponse struct {
	Primary   *responder `json:"primary"`
	Secondary *responder `json:"secondary"`
	Escalation string    `json:"escalation_policy"`
	Channel    string    `json:"chat_channel"`
}

type responder struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Config points the provider at the on-call API.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Provider implements ownership.Provider against a PagerDuty-shaped
// on-call API. Secondary is reported as a second call.
type Provider struct {
	baseURL string
	token   string
	client  *http.Client
	primary bool
}

// New builds a provider reporting the primary on-call as its signal.
// NewSecondary builds one reporting the secondary on-call instead.
func New(cfg Config) *Provider          { return newProvider(cfg, true) }
func NewSecondary(cfg Config) *Provider { return newProvider(cfg, false) }

func newProvider(cfg Config, primary bool) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Provider{baseURL: cfg.BaseURL, token: cfg.Token, client: &http.Client{Timeout: timeout}, primary: primary}
}

func (p *Provider) Name() string {
	if p.primary {
		return string(nthlayer.OwnershipOnCallPrimary)
	}
	return string(nthlayer.OwnershipOnCallSecondary)
}

func (p *Provider) Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/oncalls?service="+service, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Token token="+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagerduty: unexpected status %d", resp.StatusCode)
	}

	var oncall onCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&oncall); err != nil {
		return nil, fmt.Errorf("pagerduty: decode oncall: %w", err)
	}

	var source nthlayer.OwnershipSource
	var who *responder
	var confidence float64
	if p.primary {
		source, who, confidence = nthlayer.OwnershipOnCallPrimary, oncall.Primary, primaryConfidence
	} else {
		source, who, confidence = nthlayer.OwnershipOnCallSecondary, oncall.Secondary, secondaryConfidence
	}
	if who == nil {
		return nil, nil
	}

	return &nthlayer.OwnershipSignal{
		Source:     source,
		Owner:      who.Name,
		Confidence: confidence,
		Metadata: map[string]any{
			"email":            who.Email,
			"pager_escalation": oncall.Escalation,
			"chat_channel":     oncall.Channel,
		},
	}, nil
}
