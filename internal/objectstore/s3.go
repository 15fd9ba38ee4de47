package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// S3Store implements Store against an S3-compatible endpoint (AWS S3 or a
// self-hosted MinIO, per the system's original object store), grounded on
// the upload/download/delete/list/presign method set of the Python
// storage service this pipeline replaces.
type S3Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	ensureOnce chan struct{}
}

// S3Config names the subset of connection parameters the adapter needs.
// Endpoint is optional; when set, it points at a non-AWS S3-compatible
// service (MinIO) instead of the default AWS S3 endpoint resolution.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Store builds an S3Store and ensures the configured bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket cannot be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "load_config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	store := &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		_, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &s.bucket})
		if createErr != nil {
			return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "ensure_bucket", createErr)
		}
		return nil
	}
	return classifyS3Error("ensure_bucket", err)
}

func classifyS3Error(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, op, err)
		case "AccessDenied", "Forbidden":
			return corepipeerrors.NewStorageError(corepipeerrors.KindStorageAuth, op, err)
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, op, err)
		}
	}
	return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, op, err)
}

func (s *S3Store) PutFile(ctx context.Context, logicalPath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_file", err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
		Body:   f,
	})
	if err != nil {
		return classifyS3Error("put_file", err)
	}
	return nil
}

func (s *S3Store) PutBytes(ctx context.Context, logicalPath string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classifyS3Error("put_bytes", err)
	}
	return nil
}

func (s *S3Store) GetFile(ctx context.Context, logicalPath, localPath string) error {
	data, err := s.GetBytes(ctx, logicalPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_file", err)
	}
	return nil
}

func (s *S3Store) GetBytes(ctx context.Context, logicalPath string) ([]byte, error) {
	rc, err := s.GetReader(ctx, logicalPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "get_bytes", err)
	}
	return data, nil
}

func (s *S3Store) GetReader(ctx context.Context, logicalPath string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
	})
	if err != nil {
		return nil, classifyS3Error("get_reader", err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, logicalPath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
	})
	if err != nil {
		return classifyS3Error("delete", err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	}
	if !recursive {
		delim := "/"
		input.Delimiter = &delim
	}

	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list", err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{}
			if obj.Key != nil {
				info.Path = *obj.Key
			}
			if obj.Size != nil {
				info.SizeBytes = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *S3Store) Exists(ctx context.Context, logicalPath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, classifyS3Error("exists", err)
	}
	return true, nil
}

func (s *S3Store) Presign(ctx context.Context, logicalPath string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &logicalPath,
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", classifyS3Error("presign", err)
	}
	return req.URL, nil
}
