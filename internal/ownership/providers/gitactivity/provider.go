// Package gitactivity resolves ownership from commit authorship
// frequency over a repository's recent history, the weakest signal in
// the priority table since it reflects recent activity rather than
// declared responsibility.
package gitactivity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	confidenceCeiling = 0.6
	lookback          = 90 * 24 * time.Hour
)

// Provider implements ownership.Provider by cloning (or opening a local
// mirror of) a repository and tallying commit authorship.
type Provider struct {
	cloneDir func(repo string) string
}

// New builds a Provider. cloneDir maps a repository URL to a local path
// containing (or to receive) a bare clone used for log inspection.
func New(cloneDir func(repo string) string) *Provider {
	return &Provider{cloneDir: cloneDir}
}

func (p *Provider) Name() string { return string(nthlayer.OwnershipGitActivity) }

func (p *Provider) Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error) {
	if repo == "" {
		return nil, nil
	}

	path := p.cloneDir(repo)
	r, err := git.PlainOpen(path)
	if err != nil {
		r, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: repo, Depth: 200})
		if err != nil {
			return nil, fmt.Errorf("gitactivity: clone %s: %w", repo, err)
		}
	}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("gitactivity: head: %w", err)
	}

	commits, err := r.Log(&git.LogOptions{From: head.Hash(), Since: commitSince()})
	if err != nil {
		return nil, fmt.Errorf("gitactivity: log: %w", err)
	}

	counts := make(map[string]int)
	err = commits.ForEach(func(c *object.Commit) error {
		counts[c.Author.Email]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}

	top, total := topAuthor(counts)
	confidence := confidenceCeiling * (float64(counts[top]) / float64(total))

	return &nthlayer.OwnershipSignal{
		Source:     nthlayer.OwnershipGitActivity,
		Owner:      top,
		Confidence: confidence,
		Metadata:   map[string]any{"email": top, "commit_count": counts[top]},
	}, nil
}

func commitSince() *time.Time {
	t := time.Now().Add(-lookback)
	return &t
}

func topAuthor(counts map[string]int) (string, int) {
	type pair struct {
		author string
		count  int
	}
	pairs := make([]pair, 0, len(counts))
	total := 0
	for author, count := range counts {
		pairs = append(pairs, pair{author, count})
		total += count
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })
	return pairs[0].author, total
}
