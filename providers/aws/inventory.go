package aws

import (
	"context"
	"fmt"
	"net/netip"

	"secops-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// liveStates are the instance states worth reporting to recon
var liveStates = []string{"pending", "running", "stopping", "stopped"}

// Name implements agents.AssetInventory
func (c *Client) Name() string { return "aws" }

// FindAssets lists EC2 instances whose private or public address is in [first, last]
func (c *Client) FindAssets(ctx context.Context, first, last netip.Addr) ([]models.Asset, error) {
	var assets []models.Asset
	for _, region := range c.regions {
		found, err := c.describeRegion(ctx, region, first, last)
		if err != nil {
			return nil, fmt.Errorf("describe instances in %s: %w", region, err)
		}
		assets = append(assets, found...)
	}
	return assets, nil
}

func (c *Client) describeRegion(ctx context.Context, region string, first, last netip.Addr) ([]models.Asset, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: liveStates,
			},
		},
	}

	var assets []models.Asset
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2Clients[region], input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				asset := toAsset(region, inst)
				if inRange(asset, first, last) {
					assets = append(assets, asset)
				}
			}
		}
	}
	return assets, nil
}

func toAsset(region string, inst types.Instance) models.Asset {
	asset := models.Asset{
		Provider:  models.ProviderAWS,
		ID:        aws.ToString(inst.InstanceId),
		Region:    region,
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		Platform:  aws.ToString(inst.PlatformDetails),
	}
	if inst.State != nil {
		asset.State = string(inst.State.Name)
	}
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			asset.Name = aws.ToString(tag.Value)
		}
	}
	return asset
}

func inRange(asset models.Asset, first, last netip.Addr) bool {
	for _, s := range []string{asset.PrivateIP, asset.PublicIP} {
		if addr, err := netip.ParseAddr(s); err == nil && models.AddrInRange(addr, first, last) {
			return true
		}
	}
	return false
}
