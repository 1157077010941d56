// Package storage issues time-boxed presigned URLs for job inputs and
// transcript outputs. Media bytes never pass through this service.
package storage

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectGateway signs upload and download URLs against a single media bucket.
type ObjectGateway struct {
	presign     *s3.PresignClient
	bucket      string
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

// NewObjectGateway creates a gateway using the default AWS credential chain.
func NewObjectGateway(ctx context.Context, bucket string, uploadTTL, downloadTTL time.Duration) (*ObjectGateway, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg)
	return &ObjectGateway{
		presign:     s3.NewPresignClient(client),
		bucket:      bucket,
		uploadTTL:   uploadTTL,
		downloadTTL: downloadTTL,
	}, nil
}

// Bucket returns the media bucket name, which the dispatcher puts on the
// wire so the worker reads inputs from the same place uploads land.
func (g *ObjectGateway) Bucket() string {
	return g.bucket
}

// NewUploadKey generates a fresh object key for a client upload, preserving
// the original file extension so the worker can sniff the container format.
func (g *ObjectGateway) NewUploadKey(filename string) string {
	return fmt.Sprintf("uploads/%s%s", uuid.New().String(), path.Ext(filename))
}

// PresignUpload returns a time-boxed PUT URL for the given object key.
func (g *ObjectGateway) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(g.uploadTTL))
	if err != nil {
		return "", time.Time{}, err
	}
	return req.URL, time.Now().Add(g.uploadTTL), nil
}

// PresignDownload returns a short-lived GET URL for the given object key.
func (g *ObjectGateway) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(g.downloadTTL))
	if err != nil {
		return "", time.Time{}, err
	}
	return req.URL, time.Now().Add(g.downloadTTL), nil
}
