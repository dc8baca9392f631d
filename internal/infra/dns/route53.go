package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	rTypes "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
)

const providerName = "dns provider"

// Route53API is the slice of the Route53 client used here.
type Route53API interface {
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53Records ensures A records in a Route53 hosted zone. Projects select it with
// dns.provider = route53; credentials come from the default AWS chain.
type Route53Records struct {
	client Route53API
}

func NewRoute53Records(awsConfig aws.Config) *Route53Records {
	return &Route53Records{client: route53.NewFromConfig(awsConfig)}
}

func NewRoute53RecordsWithClient(client Route53API) *Route53Records {
	return &Route53Records{client: client}
}

func (d *Route53Records) EnsureARecord(ctx context.Context, zoneID, fqdn, ip string) (provider.Result, error) {
	zoneID = strings.TrimPrefix(zoneID, "/hostedzone/")
	name := strings.TrimSuffix(fqdn, ".") + "."

	out, err := d.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: rTypes.RRTypeA,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return translate(err)
	}
	for _, set := range out.ResourceRecordSets {
		if strings.EqualFold(aws.ToString(set.Name), name) && set.Type == rTypes.RRTypeA {
			return provider.Ok(map[string]any{"created": false}), nil
		}
	}

	resp, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &rTypes.ChangeBatch{
			Comment: aws.String("site provisioner"),
			Changes: []rTypes.Change{
				{
					Action: rTypes.ChangeActionCreate,
					ResourceRecordSet: &rTypes.ResourceRecordSet{
						Name:            aws.String(name),
						Type:            rTypes.RRTypeA,
						TTL:             aws.Int64(300),
						ResourceRecords: []rTypes.ResourceRecord{{Value: aws.String(ip)}},
					},
				},
			},
		},
	})
	if err != nil {
		return translate(err)
	}
	changeID := ""
	if resp.ChangeInfo != nil {
		changeID = aws.ToString(resp.ChangeInfo.Id)
	}
	slog.Info("route53 record change submitted", "fqdn", fqdn, "changeID", changeID)
	return provider.Ok(map[string]any{"created": true, "changeId": changeID}), nil
}

// translate separates API rejections, which belong in the step result, from
// transport failures.
func translate(err error) (provider.Result, error) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return provider.Rejected(fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())), nil
	}
	return provider.Result{}, errs.TranslateTransport(providerName, err)
}
