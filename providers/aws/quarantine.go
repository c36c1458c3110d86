package aws

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"secops-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Quarantine isolates EC2 instances by replacing their security groups with
// a single quarantine group that allows no traffic. Security groups are
// regional, so each region carries its own group.
type Quarantine struct {
	client *Client
	groups map[string]string // region -> security group id
}

// NewQuarantine creates a new quarantine containment backend
func NewQuarantine(client *Client, groups map[string]string) (*Quarantine, error) {
	if client == nil {
		return nil, fmt.Errorf("quarantine requires an aws client")
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("quarantine security group is required")
	}
	owned := make(map[string]string, len(groups))
	for region, group := range groups {
		if group == "" {
			return nil, fmt.Errorf("quarantine security group for %s is empty", region)
		}
		owned[region] = group
	}
	return &Quarantine{client: client, groups: owned}, nil
}

// Contain implements agents.Containment. Only isolation is supported; the
// target is an instance id or one of its addresses.
func (q *Quarantine) Contain(ctx context.Context, target string, action models.ContainmentAction) error {
	if action != models.ContainmentIsolate {
		return fmt.Errorf("action %q is not supported for ec2 instances", action)
	}

	filters, err := lookupFor(target)
	if err != nil {
		return err
	}

	for _, region := range q.client.regions {
		api := q.client.ec2Clients[region]
		for _, filter := range filters {
			out, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
				Filters: filter,
			})
			if err != nil {
				return fmt.Errorf("describe instances in %s: %w", region, err)
			}
			instanceID := firstInstance(out)
			if instanceID == "" {
				continue
			}
			group, ok := q.groups[region]
			if !ok {
				return fmt.Errorf("quarantine %s: no quarantine security group configured for %s", instanceID, region)
			}
			_, err = api.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
				InstanceId: aws.String(instanceID),
				Groups:     []string{group},
			})
			if err != nil {
				return fmt.Errorf("quarantine %s: %w", instanceID, err)
			}
			return nil
		}
	}
	return fmt.Errorf("no ec2 instance matches %s", target)
}

// lookupFor returns the DescribeInstances filters that identify target.
// Filters are used even for instance ids so a miss in one region is not an error.
func lookupFor(target string) ([][]types.Filter, error) {
	if strings.HasPrefix(target, "i-") {
		return [][]types.Filter{
			{{Name: aws.String("instance-id"), Values: []string{target}}},
		}, nil
	}
	if _, err := netip.ParseAddr(target); err != nil {
		return nil, fmt.Errorf("%w: ec2 target must be an instance id or ip address", models.ErrInvalidParameters)
	}
	return [][]types.Filter{
		{{Name: aws.String("private-ip-address"), Values: []string{target}}},
		{{Name: aws.String("ip-address"), Values: []string{target}}},
	}, nil
}

func firstInstance(out *ec2.DescribeInstancesOutput) string {
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			if id := aws.ToString(inst.InstanceId); id != "" {
				return id
			}
		}
	}
	return ""
}
