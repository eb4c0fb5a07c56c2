// Package awspricing implements the price catalog port on the AWS Price List API.
package awspricing

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
)

// API is the subset of *pricing.Client used here.
type API interface {
	GetProducts(ctx context.Context, in *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Catalog returns the raw product documents of a service in a region.
type Catalog struct {
	api     API
	metrics *metrics.Metrics
}

var _ ports.PriceCatalog = (*Catalog)(nil)

func New(api API, m *metrics.Metrics) *Catalog {
	return &Catalog{api: api, metrics: m}
}

// NewFromConfig builds a catalog client. The Price List API is served from a handful of
// regions only, so the endpoint region is independent of the product region being queried.
func NewFromConfig(cfg aws.Config, endpointRegion string, m *metrics.Metrics) *Catalog {
	client := pricing.NewFromConfig(cfg, func(o *pricing.Options) {
		if endpointRegion != "" {
			o.Region = endpointRegion
		}
	})
	return New(client, m)
}

// GetProducts implements ports.PriceCatalog.
func (c *Catalog) GetProducts(ctx context.Context, serviceCode, region string) ([]string, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveRemoteCall("GetProducts", time.Since(start).Seconds()) }()

	in := &pricing.GetProductsInput{
		ServiceCode: aws.String(serviceCode),
		MaxResults:  aws.Int32(100),
	}
	if region != "" {
		in.Filters = []types.Filter{{
			Field: aws.String("regionCode"),
			Type:  types.FilterTypeTermMatch,
			Value: aws.String(region),
		}}
	}

	var records []string
	for {
		out, err := c.api.GetProducts(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("get products for %s in %s: %w", serviceCode, region, err)
		}
		records = append(records, out.PriceList...)
		if aws.ToString(out.NextToken) == "" {
			return records, nil
		}
		in.NextToken = out.NextToken
	}
}
