package imagehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/userhub/internal/common"
	appconfig "github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/google/uuid"
)

// KeyPrefix is the folder all profile photos are stored under.
const KeyPrefix = "profile-photos/"

// s3API is the subset of *s3.Client used by S3Host.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// seams for tests
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newObjectKey = func() string {
		return KeyPrefix + uuid.NewString()
	}
)

// S3Host is a Host backed by a single S3 bucket.
type S3Host struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3Host builds an S3 client from the server config. Static credentials
// and path-style addressing are used so MinIO works out of the box.
func NewS3Host(ctx context.Context, c *appconfig.Config) (*S3Host, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3Host(client, c.S3Bucket, c.S3PublicURL), nil
}

func newS3Host(client s3API, bucket, publicURL string) *S3Host {
	return &S3Host{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (h *S3Host) EnsureBucket(ctx context.Context) error {
	_, err := h.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(h.bucket)})
	if err == nil {
		return nil
	}

	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("%w: head bucket: %w", common.ErrorExternalService, err)
	}

	if _, err := h.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(h.bucket)}); err != nil {
		return fmt.Errorf("%w: create bucket: %w", common.ErrorExternalService, err)
	}
	return nil
}

// Upload stores body under a fresh key. The returned external id is the key.
func (h *S3Host) Upload(ctx context.Context, body io.Reader, size int64, contentType string) (*models.ProfilePhoto, error) {
	key := newObjectKey()

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: put object: %w", common.ErrorExternalService, err)
	}

	return &models.ProfilePhoto{URL: h.publicURL + "/" + key, ExternalID: key}, nil
}

// Remove deletes the object. A missing object is not an error.
func (h *S3Host) Remove(ctx context.Context, externalID string) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(externalID),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("%w: delete object: %w", common.ErrorExternalService, err)
	}
	return nil
}

// List returns every object under KeyPrefix, following continuation tokens.
func (h *S3Host) List(ctx context.Context) ([]Object, error) {
	p := s3.NewListObjectsV2Paginator(h.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
		Prefix: aws.String(KeyPrefix),
	})

	var out []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list objects: %w", common.ErrorExternalService, err)
		}
		for _, o := range page.Contents {
			out = append(out, Object{
				ExternalID:   aws.ToString(o.Key),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	return out, nil
}
