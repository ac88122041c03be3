// Package objectstore is the S3-compatible, path-style image and feature
// blob store for egressed tracks (spec §6). Path-style addressing and two
// fixed buckets (facetrack, cartrack) mean every write is a single
// PutObject call against a key built from a pure template function — no
// listing, versioning, or lifecycle management lives here.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fyuneru/boxnet/errors"
)

// Store wraps an S3-compatible client configured for path-style addressing
// against the two fixed buckets spec §6 names.
type Store struct {
	client     *s3.Client
	faceBucket string
	carBucket  string
}

// Config bundles the S3-compatible endpoint and credentials, mirroring
// config.ObjectStoreConfig.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	FaceBucket      string
	CarBucket       string
}

// New builds a Store against an S3-compatible endpoint using static
// credentials and path-style addressing, per spec §6.
func New(ctx context.Context, cfg Config) (*Store, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	baseEndpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(baseEndpoint)
	})

	return &Store{client: client, faceBucket: cfg.FaceBucket, carBucket: cfg.CarBucket}, nil
}

// put uploads body to bucket/key.
func (s *Store) put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.Wrapf(err, "put object %s/%s", bucket, key)
	}
	return nil
}

func datePrefix(ts time.Time) string {
	return ts.Format("2006/01/02")
}

// PutFaceBackground stores a face track's background image.
func (s *Store) PutFaceBackground(ctx context.Context, ts time.Time, uuid string, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_bg.jpg", datePrefix(ts), uuid, uuid)
	return s.put(ctx, s.faceBucket, key, jpeg, "image/jpeg")
}

// PutFaceSmall stores face i's small (aligned) crop.
func (s *Store) PutFaceSmall(ctx context.Context, ts time.Time, uuid string, i int, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_%d_s.jpg", datePrefix(ts), uuid, uuid, i)
	return s.put(ctx, s.faceBucket, key, jpeg, "image/jpeg")
}

// PutFaceLarge stores face i's large (display) crop.
func (s *Store) PutFaceLarge(ctx context.Context, ts time.Time, uuid string, i int, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_%d_l.jpg", datePrefix(ts), uuid, uuid, i)
	return s.put(ctx, s.faceBucket, key, jpeg, "image/jpeg")
}

// PutFaceFeature stores face i's raw feature blob as text.
func (s *Store) PutFaceFeature(ctx context.Context, ts time.Time, uuid string, i int, feature []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_%d_fea.txt", datePrefix(ts), uuid, uuid, i)
	return s.put(ctx, s.faceBucket, key, feature, "text/plain")
}

// PutCarBackground stores a vehicle track's background image.
func (s *Store) PutCarBackground(ctx context.Context, ts time.Time, uuid string, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_bg.jpg", datePrefix(ts), uuid, uuid)
	return s.put(ctx, s.carBucket, key, jpeg, "image/jpeg")
}

// PutCarVehicle stores vehicle frame i.
func (s *Store) PutCarVehicle(ctx context.Context, ts time.Time, uuid string, i int, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_%d.jpg", datePrefix(ts), uuid, uuid, i)
	return s.put(ctx, s.carBucket, key, jpeg, "image/jpeg")
}

// PutCarPlate stores the vehicle's plate crop.
func (s *Store) PutCarPlate(ctx context.Context, ts time.Time, uuid string, jpeg []byte) error {
	key := fmt.Sprintf("/%s/%s/%s_plate.jpg", datePrefix(ts), uuid, uuid)
	return s.put(ctx, s.carBucket, key, jpeg, "image/jpeg")
}
