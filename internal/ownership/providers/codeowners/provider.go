// Package codeowners resolves ownership from a repository's CODEOWNERS
// file, attributing the first owner of the last matching pattern.
package codeowners

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const confidence = 0.9

// Rule is one parsed CODEOWNERS line.
type Rule struct {
	Pattern string
	Owners  []string
}

// Provider fetches and parses a CODEOWNERS file for a given repository.
// No SDK in the pack fits this format, so the parser is hand-rolled.
type Provider struct {
	client  *http.Client
	rawURL  func(repo string) string
}

// New builds a Provider. rawURL maps a repository identifier to the raw
// file URL to fetch CODEOWNERS from (e.g. a GitHub raw content URL).
func New(rawURL func(repo string) string) *Provider {
	return &Provider{client: &http.Client{Timeout: 5 * time.Second}, rawURL: rawURL}
}

func (p *Provider) Name() string { return string(nthlayer.OwnershipCodeOwners) }

func (p *Provider) Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error) {
	if repo == "" {
		return nil, nil
	}

	rules, err := p.fetchRules(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("codeowners: fetch %s: %w", repo, err)
	}

	owner := bestMatch(rules, service)
	if owner == "" {
		return nil, nil
	}

	return &nthlayer.OwnershipSignal{
		Source:     nthlayer.OwnershipCodeOwners,
		Owner:      owner,
		Confidence: confidence,
		Metadata:   map[string]any{"repository": repo},
	}, nil
}

// bestMatch returns the owner of the last rule whose pattern matches
// service, mirroring CODEOWNERS' "last match wins" semantics.
func bestMatch(rules []Rule, service string) string {
	owner := ""
	for _, rule := range rules {
		if patternMatches(rule.Pattern, service) && len(rule.Owners) > 0 {
			owner = strings.TrimPrefix(rule.Owners[0], "@")
		}
	}
	return owner
}

func patternMatches(pattern, service string) bool {
	trimmed := strings.Trim(pattern, "/*")
	return trimmed == "" || strings.Contains(service, trimmed)
}

func (p *Provider) fetchRules(ctx context.Context, repo string) ([]Rule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.rawURL(repo), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return parse(resp.Body)
}

func parse(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rules = append(rules, Rule{Pattern: fields[0], Owners: fields[1:]})
	}
	return rules, scanner.Err()
}
