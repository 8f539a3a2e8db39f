// Package s3 provides a sink decorator uploading finished output to S3
// compatible object storage. The wrapped sink writes a local file as usual;
// on success the file is uploaded under the configured prefix.
package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
)

// Config holds the object storage parameters. A custom endpoint with
// path-style addressing supports MinIO and other S3 compatible stores.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Uploader wraps a sink and uploads its output file after a successful
// pass. Failed passes leave the local file in place for inspection and
// upload nothing.
type Uploader[B api.Basis, F api.Field, S api.Step, Z api.Zone] struct {
	inner  api.Sink[B, F, S, Z]
	path   string
	config Config
	logger *zap.Logger
}

// NewUploader decorates inner, whose output lands at the local path.
func NewUploader[B api.Basis, F api.Field, S api.Step, Z api.Zone](
	inner api.Sink[B, F, S, Z], localPath string, config Config, logger *zap.Logger,
) *Uploader[B, F, S, Z] {
	return &Uploader[B, F, S, Z]{inner: inner, path: localPath, config: config, logger: logger}
}

func (u *Uploader[B, F, S, Z]) Properties() api.SinkProperties {
	return u.inner.Properties()
}

func (u *Uploader[B, F, S, Z]) Configure(settings api.Settings) error {
	return u.inner.Configure(settings)
}

// Consume drives the wrapped sink, then uploads the finished file.
func (u *Uploader[B, F, S, Z]) Consume(ctx context.Context, src api.Source[B, F, S, Z], geometry F) error {
	if err := u.inner.Consume(ctx, src, geometry); err != nil {
		return err
	}
	return u.upload(ctx)
}

func (u *Uploader[B, F, S, Z]) upload(ctx context.Context) error {
	client, err := newClient(ctx, u.config)
	if err != nil {
		return &api.SerializationError{Sink: "s3", Err: err}
	}

	file, err := os.Open(u.path)
	if err != nil {
		return &api.SerializationError{Sink: "s3", Err: err}
	}
	defer file.Close()

	key := path.Join(u.config.Prefix, path.Base(u.path))
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.config.Bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return &api.SerializationError{Sink: "s3", Err: fmt.Errorf("failed to upload %s: %w", key, err)}
	}

	u.logger.Info("Output uploaded",
		zap.String("bucket", u.config.Bucket),
		zap.String("key", key))
	return nil
}

func newClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				if cfg.UseSSL {
					endpoint = "https://" + endpoint
				} else {
					endpoint = "http://" + endpoint
				}
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
