// Package tfecloud normalizes Terraform Cloud/Enterprise run
// notification webhooks into nthlayer.DeploymentEvent. The
// notification payload itself only carries the run ID and status; the
// adapter uses a go-tfe client to fetch the full run and workspace for
// commit SHA and environment.
package tfecloud

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-tfe"

	"github.com/rsionnach/nthlayer/internal/deployevents"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const ProviderName = "tfe_cloud"

type notificationPayload struct {
	RunID          string `json:"run_id"`
	RunStatus      string `json:"run_status"`
	WorkspaceName  string `json:"workspace_name"`
	OrganizationName string `json:"organization_name"`
}

// Adapter verifies and parses Terraform Cloud run notifications,
// hydrating a full nthlayer.DeploymentEvent by calling back into the
// TFE API for the run's configuration version and workspace.
type Adapter struct {
	secret []byte
	client *tfe.Client
	// ServiceFromWorkspace maps a TFE workspace name to the canonical
	// service name.
	ServiceFromWorkspace func(workspace string) string
}

func New(client *tfe.Client, secret []byte, serviceFromWorkspace func(string) string) *Adapter {
	return &Adapter{client: client, secret: secret, ServiceFromWorkspace: serviceFromWorkspace}
}

func (a *Adapter) Name() string { return ProviderName }

// Verify checks the HMAC-SHA256 signature TFE sends in the
// X-TFE-Notification-Signature header, which — unlike GitHub's — is
// not hex-prefixed.
func (a *Adapter) Verify(signatureHeader string, body []byte) error {
	expected, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return deployevents.ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(body)
	if subtle.ConstantTimeCompare(expected, mac.Sum(nil)) != 1 {
		return deployevents.ErrSignatureMismatch
	}
	return nil
}

// Parse hydrates a completed run's detail via the TFE API. Only
// "applied" and "errored" runs are treated as terminal deployment
// events; all other statuses return (nil, nil).
func (a *Adapter) Parse(ctx context.Context, body []byte) (*nthlayer.DeploymentEvent, error) {
	var payload notificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tfecloud: decode notification: %w", err)
	}
	if payload.RunStatus != string(tfe.RunApplied) && payload.RunStatus != string(tfe.RunErrored) {
		return nil, nil
	}

	run, err := a.client.Runs.ReadWithOptions(ctx, payload.RunID, &tfe.RunReadOptions{
		Include: []tfe.RunIncludeOpt{tfe.RunWorkspace, tfe.RunConfigurationVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("tfecloud: read run %s: %w", payload.RunID, err)
	}

	service := payload.WorkspaceName
	if run.Workspace != nil {
		service = run.Workspace.Name
	}
	if a.ServiceFromWorkspace != nil {
		service = a.ServiceFromWorkspace(service)
	}

	commitSHA := ""
	if run.ConfigurationVersion != nil {
		commitSHA = run.ConfigurationVersion.ID
	}

	ev := &nthlayer.DeploymentEvent{
		Provider:        ProviderName,
		ExternalEventID: run.ID,
		Service:         service,
		CommitSHA:       commitSHA,
		Environment:     payload.OrganizationName,
		StartedAt:       run.CreatedAt,
		FinishedAt:      run.CreatedAt,
	}
	if run.StatusTimestamps != nil {
		if !run.StatusTimestamps.AppliedAt.IsZero() {
			ev.FinishedAt = run.StatusTimestamps.AppliedAt
		} else if !run.StatusTimestamps.ErroredAt.IsZero() {
			ev.FinishedAt = run.StatusTimestamps.ErroredAt
		}
	}
	return ev, nil
}
