package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2API is the subset of the EC2 client used for inventory and quarantine
type EC2API interface {
	ec2.DescribeInstancesAPIClient
	ModifyInstanceAttribute(ctx context.Context, params *ec2.ModifyInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error)
}

// Client is the AWS provider client, one EC2 client per region
type Client struct {
	ec2Clients map[string]EC2API
	regions    []string
}

// NewClient creates a new AWS client using the default credential chain
func NewClient(ctx context.Context, regions []string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	if len(regions) == 0 {
		if cfg.Region == "" {
			return nil, fmt.Errorf("no aws region configured")
		}
		regions = []string{cfg.Region}
	}

	clients := make(map[string]EC2API, len(regions))
	for _, region := range regions {
		region := region
		clients[region] = ec2.NewFromConfig(cfg, func(o *ec2.Options) {
			o.Region = region
		})
	}
	return NewClientWithAPI(clients), nil
}

// NewClientWithAPI creates a client over pre-built per-region EC2 clients
func NewClientWithAPI(clients map[string]EC2API) *Client {
	regions := make([]string, 0, len(clients))
	for region := range clients {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return &Client{ec2Clients: clients, regions: regions}
}

// Regions returns the regions the client covers
func (c *Client) Regions() []string {
	return c.regions
}
