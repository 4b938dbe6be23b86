package kvstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ztrue/tracerr"
)

type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	Timeout  time.Duration
}

// S3 keeps one object per key. Keys are base64url encoded below Prefix.
type S3 struct {
	client s3iface.S3API
	cfg    S3Config
}

var _ Store = (*S3)(nil)

func NewS3(client s3iface.S3API, cfg S3Config) *S3 {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3{client: client, cfg: cfg}
}

// OpenS3 builds a client from the default credential chain.
func OpenS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return NewS3(s3.New(sess), cfg), nil
}

func (s *S3) objectKey(key []byte) *string {
	return aws.String(s.cfg.Prefix + base64.RawURLEncoding.EncodeToString(key))
}

func (s *S3) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    s.objectKey(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrNotFound
		}
		return nil, tracerr.Wrap(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	return data, tracerr.Wrap(err)
}

func (s *S3) Put(key, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    s.objectKey(key),
		Body:   bytes.NewReader(value),
	})
	return tracerr.Wrap(err)
}

func (s *S3) Delete(key []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    s.objectKey(key),
	})
	return tracerr.Wrap(err)
}

func (s *S3) Close() error { return nil }
