package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/mitchzink/snowflake-exporter/cmd/compressors"
	"github.com/mitchzink/snowflake-exporter/cmd/formatters"
)

var ErrS3ClientNotInitialized = errors.New("S3 client not initialized")

// newS3Client builds an S3 client from the configured endpoint and
// static credentials. Path-style addressing keeps MinIO and other
// S3-compatible stores working.
func newS3Client(config S3Config) (*s3.S3, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return s3.New(sess), nil
}

// artifactContentType picks a Content-Type for an uploaded artifact.
// Compressed artifacts are opaque bytes regardless of the inner format.
func (e *Exporter) artifactContentType() string {
	compressor, err := compressors.GetCompressor(e.config.Compression)
	if err == nil && compressor.Extension() != "" {
		return "application/octet-stream"
	}
	return formatters.GetFormatter(e.config.OutputFormat).MIMEType()
}

// uploadArtifacts pushes every successful artifact, and the bundle if
// one was built, to the configured bucket. The object key is the
// artifact filename so that remote listings mirror the output directory.
func (e *Exporter) uploadArtifacts(artifacts []ExportArtifact, bundle *ExportArtifact) error {
	client, err := newS3Client(e.config.S3)
	if err != nil {
		return err
	}

	contentType := e.artifactContentType()
	for _, artifact := range artifacts {
		if err := putObject(client, e.config.S3.Bucket, artifact.Name, artifact.Bytes, contentType); err != nil {
			return fmt.Errorf("failed to upload %s: %w", artifact.Name, err)
		}
		e.logger.Info(fmt.Sprintf("☁️  Uploaded %s (%d bytes)", artifact.Name, len(artifact.Bytes)))
	}

	if bundle != nil {
		if err := putObject(client, e.config.S3.Bucket, bundle.Name, bundle.Bytes, "application/zip"); err != nil {
			return fmt.Errorf("failed to upload %s: %w", bundle.Name, err)
		}
		e.logger.Info(fmt.Sprintf("☁️  Uploaded %s (%d bytes)", bundle.Name, len(bundle.Bytes)))
	}

	return nil
}

func putObject(client *s3.S3, bucket, key string, data []byte, contentType string) error {
	if client == nil {
		return ErrS3ClientNotInitialized
	}

	putInput := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	_, err := client.PutObject(putInput)
	return err
}
