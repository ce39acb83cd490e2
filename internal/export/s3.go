// Package export writes completed session carts to S3-compatible storage.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/ashureev/sommelier/internal/config"
	"github.com/ashureev/sommelier/internal/feed"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
)

// putObjectAPI is the part of the S3 client the exporter uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter stores each completed cart as a JSON object keyed by session id.
type S3Exporter struct {
	client putObjectAPI
	bucket string
	prefix string
}

var _ feed.CartExporter = (*S3Exporter)(nil)

// New builds an exporter using the default AWS credential chain.
func New(ctx context.Context, cfg config.ExportConfig, optFns ...func(*awsconfig.LoadOptions) error) (*S3Exporter, error) {
	if !cfg.Enabled() {
		return nil, errors.New("export: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := append([]func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}, optFns...)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client putObjectAPI, bucket, prefix string) *S3Exporter {
	return &S3Exporter{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key used for a session's cart.
func (x *S3Exporter) Key(sessionID string) string {
	return path.Join(x.prefix, sessionID+".json")
}

// ExportCart uploads the summary. Re-exporting a session overwrites its object.
func (x *S3Exporter) ExportCart(ctx context.Context, summary *feed.CartSummary) error {
	if summary == nil {
		return errors.New("export: nil cart summary")
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("export: encode cart %s: %w", summary.SessionID, err)
	}

	_, err = x.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(x.bucket),
		Key:           aws.String(x.Key(summary.SessionID)),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      map[string]string{"session-id": summary.SessionID},
	})
	if err != nil {
		return fmt.Errorf("export: put cart %s: %w", summary.SessionID, err)
	}
	return nil
}
