package aws

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// fakeEC2 serves a fixed instance list and evaluates the filters this package sends
type fakeEC2 struct {
	mu        sync.Mutex
	instances []types.Instance
	err       error
	modified  map[string][]string
}

func newFakeEC2(instances ...types.Instance) *fakeEC2 {
	return &fakeEC2{instances: instances, modified: make(map[string][]string)}
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var matched []types.Instance
	for _, inst := range f.instances {
		if matchesAll(inst, in.Filters) {
			matched = append(matched, inst)
		}
	}
	out := &ec2.DescribeInstancesOutput{}
	if len(matched) > 0 {
		out.Reservations = []types.Reservation{{Instances: matched}}
	}
	return out, nil
}

func (f *fakeEC2) ModifyInstanceAttribute(_ context.Context, in *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.InstanceId)
	for _, inst := range f.instances {
		if aws.ToString(inst.InstanceId) == id {
			f.modified[id] = in.Groups
			return &ec2.ModifyInstanceAttributeOutput{}, nil
		}
	}
	return nil, errors.New("InvalidInstanceID.NotFound")
}

func matchesAll(inst types.Instance, filters []types.Filter) bool {
	for _, f := range filters {
		var field string
		switch aws.ToString(f.Name) {
		case "instance-state-name":
			if inst.State != nil {
				field = string(inst.State.Name)
			}
		case "instance-id":
			field = aws.ToString(inst.InstanceId)
		case "private-ip-address":
			field = aws.ToString(inst.PrivateIpAddress)
		case "ip-address":
			field = aws.ToString(inst.PublicIpAddress)
		default:
			return false
		}
		if !contains(f.Values, field) {
			return false
		}
	}
	return true
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func instance(id, privateIP, publicIP string, state types.InstanceStateName, name string) types.Instance {
	inst := types.Instance{
		InstanceId:       aws.String(id),
		PrivateIpAddress: aws.String(privateIP),
		State:            &types.InstanceState{Name: state},
		PlatformDetails:  aws.String("Linux/UNIX"),
	}
	if publicIP != "" {
		inst.PublicIpAddress = aws.String(publicIP)
	}
	if name != "" {
		inst.Tags = []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}}
	}
	return inst
}
