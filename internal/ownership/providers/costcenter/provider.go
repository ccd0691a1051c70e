// Package costcenter resolves ownership from a cloud resource's
// "cost-center" tag, reusing the same AWS tag surface as the
// discovery cloud-directory providers.
package costcenter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const confidence = 0.75

// Provider implements ownership.Provider over EC2 cost-center tags.
type Provider struct {
	client *ec2.Client
}

func New(client *ec2.Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return string(nthlayer.OwnershipCostCenter) }

func (p *Provider) Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error) {
	out, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []types.Filter{
			{Name: aws.String("key"), Values: []string{"service"}},
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

	for resourceID := range resourceIDs {
		costOut, err := p.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
			Filters: []types.Filter{
				{Name: aws.String("resource-id"), Values: []string{resourceID}},
				{Name: aws.String("key"), Values: []string{"cost-center"}},
			},
		})
		if err != nil || len(costOut.Tags) == 0 {
			continue
		}
		return &nthlayer.OwnershipSignal{
			Source:     nthlayer.OwnershipCostCenter,
			Owner:      aws.ToString(costOut.Tags[0].Value),
			Confidence: confidence,
			Metadata:   map[string]any{"resource_id": resourceID},
		}, nil
	}
	return nil, nil
}
