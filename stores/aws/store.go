package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"canvas-server/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Store struct {
	s3Client ObjectAPI
	bucket   string
	prefix   string
}

// NewStore creates a new S3-based store using the default AWS credential
// chain.
func NewStore(ctx context.Context, bucketName, prefix string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName, prefix), nil
}

func NewStoreWithClient(client ObjectAPI, bucketName, prefix string) *s3Store {
	return &s3Store{
		s3Client: client,
		bucket:   bucketName,
		prefix:   prefix,
	}
}

func (s *s3Store) key(canvasID string) string {
	// PathEscape keeps "/" and ".." from creating pseudo-directories
	return s.prefix + url.PathEscape(canvasID) + ".canvas"
}

func (s *s3Store) Put(ctx context.Context, canvasID string, payload []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(canvasID)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to save canvas %s: %w", canvasID, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, canvasID string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(canvasID)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrCanvasNotFound
		}
		return nil, fmt.Errorf("failed to get canvas %s: %w", canvasID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read canvas data: %w", err)
	}
	return data, nil
}
