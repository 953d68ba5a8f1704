package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/thaispalmer/yn-automation/internal/common"
	mc "github.com/thaispalmer/yn-automation/internal/master/config"
)

// Seams for tests.
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps keys as objects <prefix><username> and <prefix><username>.pub.
type S3Store struct {
	client objectAPI
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds a client for an S3 compatible endpoint. Static
// credentials are used when an access key is configured, otherwise the
// default AWS credential chain applies.
func NewS3Store(ctx context.Context, c mc.S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keys: load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (s *S3Store) objectKey(username string) string {
	return path.Join(s.prefix, username)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("keys: put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("keys: %s: %w", key, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("keys: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, username string, pair common.KeyPair) error {
	key := s.objectKey(username)
	if err := s.put(ctx, key, pair.Private); err != nil {
		return err
	}
	return s.put(ctx, key+".pub", pair.Public)
}

func (s *S3Store) Get(ctx context.Context, username string) (common.KeyPair, error) {
	key := s.objectKey(username)
	priv, err := s.get(ctx, key)
	if err != nil {
		return common.KeyPair{}, err
	}
	pub, err := s.get(ctx, key+".pub")
	if err != nil {
		common.WipeByteArray(priv)
		return common.KeyPair{}, err
	}
	return common.KeyPair{Private: priv, Public: pub}, nil
}
