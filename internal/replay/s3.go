package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Store keeps replays as objects in one bucket
type S3Store struct {
	svc    *s3.S3
	bucket string
	prefix string
}

// NewS3Store creates a store over bucket using the default credential chain
func NewS3Store(region, bucket, prefix string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return &S3Store{svc: s3.New(sess), bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) key(hash string) string {
	return path.Join(s.prefix, hash)
}

func (s *S3Store) Put(ctx context.Context, hash string, data []byte) error {
	if err := validHash(hash); err != nil {
		return err
	}
	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(s.key(hash)),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/octet-stream"),
		CacheControl: aws.String("private, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("uploading replay: %w", err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := validHash(hash); err != nil {
		return nil, err
	}
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if isMissing(err) {
		return nil, fmt.Errorf("replay %s: %w", hash, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading replay: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 does not report missing keys on delete, so a
// HEAD request decides whether the replay existed.
func (s *S3Store) Delete(ctx context.Context, hash string) error {
	if err := validHash(hash); err != nil {
		return err
	}
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if isMissing(err) {
		return fmt.Errorf("replay %s: %w", hash, errNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking replay: %w", err)
	}
	_, err = s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		return fmt.Errorf("deleting replay: %w", err)
	}
	return nil
}

func isMissing(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
