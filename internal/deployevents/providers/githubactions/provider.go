// Package githubactions normalizes GitHub Actions "workflow_run"
// webhook deliveries into nthlayer.DeploymentEvent, verifying the
// X-Hub-Signature-256 header before parsing the payload.
package githubactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rsionnach/nthlayer/internal/deployevents"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const ProviderName = "github_actions"

type workflowRunPayload struct {
	Action      string `json:"action"`
	WorkflowRun struct {
		ID         int64  `json:"id"`
		HeadSHA    string `json:"head_sha"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		RunStartedAt time.Time `json:"run_started_at"`
		UpdatedAt  time.Time `json:"updated_at"`
		HeadRepository struct {
			FullName string `json:"full_name"`
		} `json:"head_repository"`
		Actor struct {
			Login string `json:"login"`
		} `json:"actor"`
		HeadBranch string `json:"head_branch"`
	} `json:"workflow_run"`
}

// Adapter verifies and parses GitHub Actions deployment webhooks.
type Adapter struct {
	secret []byte
	// ServiceFromRepo maps a repository full name to the canonical
	// service name; callers typically wire this to the identity
	// resolver's Resolve with provider "github".
	ServiceFromRepo func(repoFullName string) string
}

func New(secret []byte, serviceFromRepo func(string) string) *Adapter {
	return &Adapter{secret: secret, ServiceFromRepo: serviceFromRepo}
}

func (a *Adapter) Name() string { return ProviderName }

// Verify checks the X-Hub-Signature-256 header against body.
func (a *Adapter) Verify(signatureHeader string, body []byte) error {
	return deployevents.VerifyHMACSHA256(a.secret, signatureHeader, body)
}

// Parse normalizes a workflow_run payload into a DeploymentEvent.
// Only "completed" runs are treated as deployment events; in-progress
// deliveries return (nil, nil) so the caller can answer 202 Accepted
// without persisting a half-finished run.
func (a *Adapter) Parse(ctx context.Context, body []byte) (*nthlayer.DeploymentEvent, error) {
	var payload workflowRunPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("githubactions: decode payload: %w", err)
	}
	if payload.WorkflowRun.Status != "completed" {
		return nil, nil
	}

	service := payload.WorkflowRun.HeadRepository.FullName
	if a.ServiceFromRepo != nil {
		service = a.ServiceFromRepo(payload.WorkflowRun.HeadRepository.FullName)
	}

	return &nthlayer.DeploymentEvent{
		Provider:        ProviderName,
		ExternalEventID: strconv.FormatInt(payload.WorkflowRun.ID, 10),
		Service:         service,
		CommitSHA:       payload.WorkflowRun.HeadSHA,
		Environment:     payload.WorkflowRun.HeadBranch,
		Author:          payload.WorkflowRun.Actor.Login,
		StartedAt:       payload.WorkflowRun.RunStartedAt,
		FinishedAt:      payload.WorkflowRun.UpdatedAt,
	}, nil
}
