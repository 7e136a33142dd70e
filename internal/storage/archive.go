// Package storage は取り込みファイルのオブジェクトストレージへの保管を提供する。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archiver は取り込み元ファイルを保管するインターフェース。
type Archiver interface {
	// Archive はファイル内容を保管し、保管先のキーを返す。
	Archive(ctx context.Context, farmID, filename, contentType string, body []byte) (string, error)
}

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO等を使う場合のみ指定
	AccessKey string
	SecretKey string
}

// putObjectAPI はS3クライアントのうちアップロードに使うメソッド。
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver はS3互換ストレージにファイルを保管する。
type S3Archiver struct {
	client putObjectAPI
	bucket string
	now    func() time.Time
}

// NewS3Archiver はS3Archiverを生成する。
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archiver(client, cfg.Bucket), nil
}

func newS3Archiver(client putObjectAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, now: time.Now}
}

// ObjectKey は農場・日付単位で分けた保管キーを組み立てる。
func ObjectKey(farmID, filename string, at time.Time) string {
	base := path.Base(filename)
	if base == "." || base == "/" {
		base = "upload"
	}
	return fmt.Sprintf("rainfall-imports/%s/%04d/%02d/%s-%s",
		farmID, at.Year(), int(at.Month()), uuid.New().String(), base)
}

// Archive はファイル内容をS3にアップロードする。
func (a *S3Archiver) Archive(ctx context.Context, farmID, filename, contentType string, body []byte) (string, error) {
	key := ObjectKey(farmID, filename, a.now().UTC())
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      map[string]string{"farm-id": farmID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return key, nil
}

// NopArchiver は保管を行わない。バケット未設定時に使う。
type NopArchiver struct{}

// Archive は何もせず空のキーを返す。
func (NopArchiver) Archive(context.Context, string, string, string, []byte) (string, error) {
	return "", nil
}

var (
	_ Archiver = (*S3Archiver)(nil)
	_ Archiver = NopArchiver{}
)
