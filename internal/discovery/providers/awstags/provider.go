// Package awstags discovers dependency edges from a
// "dependencies=svc1,svc2" EC2 instance tag convention.
package awstags

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const tagConfidence = 0.7

const (
	serviceTagKey      = "service"
	dependenciesTagKey = "dependencies"
)

// Provider implements discovery.Provider over EC2 instance tags.
type Provider struct {
	client *ec2.Client
}

func New(client *ec2.Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return "awstags" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	out, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []types.Filter{
			{Name: aws.String("key"), Values: []string{serviceTagKey}},
			{Name: aws.String("value"), Values: []string{service}},
		},
	})
	if err != nil {
		return nil, err
	}

	resourceIDs := make(map[string]struct{})
	for _, tag := range out.Tags {
		resourceIDs[aws.ToString(tag.ResourceId)] = struct{}{}
	}

	var edges []nthlayer.DiscoveredDependency
	for resourceID := range resourceIDs {
		depsOut, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
			Filters: []types.Filter{
				{Name: aws.String("resource-id"), Values: []string{resourceID}},
				{Name: aws.String("key"), Values: []string{dependenciesTagKey}},
			},
		})
		if err != nil {
			continue
		}
		for _, tag := range depsOut.Tags {
			for _, dep := range strings.Split(aws.ToString(tag.Value), ",") {
				dep = strings.TrimSpace(dep)
				if dep == "" {
					continue
				}
				edges = append(edges, nthlayer.DiscoveredDependency{
					SourceService: service,
					TargetService: dep,
					Provider:      p.Name(),
					DepType:       nthlayer.DepTypeService,
					Confidence:    tagConfidence,
					Metadata:      map[string]any{"resource_id": resourceID},
				})
			}
		}
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	out, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []types.Filter{{Name: aws.String("key"), Values: []string{serviceTagKey}}},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, tag := range out.Tags {
		seen[aws.ToString(tag.Value)] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{MaxResults: aws.Int32(5)})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}
