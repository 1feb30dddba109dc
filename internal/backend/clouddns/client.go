package clouddns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"

	"github.com/discourse/ddns-sd/internal/backend"
)

// route53Client adapts route53iface.Route53API (the teacher's own
// dependency, reused directly) to ChangeBatchAPI.
type route53Client struct {
	api route53iface.Route53API
}

// NewRoute53Client builds a production ChangeBatchAPI backed by the AWS
// SDK, grounded on provider/aws.go's NewAWSProvider session construction.
func NewRoute53Client(region string) (ChangeBatchAPI, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: building AWS session: %v", backend.ErrFatal, err)
	}
	return &route53Client{api: route53.New(sess)}, nil
}

func (c *route53Client) ListResourceRecordSets(ctx context.Context, zoneID string) ([]*route53.ResourceRecordSet, error) {
	var out []*route53.ResourceRecordSet
	params := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}
	err := c.api.ListResourceRecordSetsPagesWithContext(ctx, params,
		func(resp *route53.ListResourceRecordSetsOutput, lastPage bool) bool {
			out = append(out, resp.ResourceRecordSets...)
			return true
		})
	return out, err
}

func (c *route53Client) ChangeResourceRecordSets(ctx context.Context, zoneID string, batch *route53.ChangeBatch) error {
	_, err := c.api.ChangeResourceRecordSetsWithContext(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch:  batch,
	}, request.WithAppendUserAgent("ddns-sd"))
	return err
}

func init() {
	backend.Register("cloud-dns", func(cfg map[string]string) (backend.Backend, error) {
		zoneID, ok := cfg["zone_id"]
		if !ok || zoneID == "" {
			return nil, fmt.Errorf("%w: cloud-dns backend requires zone_id", backend.ErrFatal)
		}
		region := cfg["region"]
		if region == "" {
			region = "us-east-1"
		}
		client, err := NewRoute53Client(region)
		if err != nil {
			return nil, err
		}
		return New(client, zoneID), nil
	})
}
