// Package blob uploads export files to S3-compatible object storage.
package blob

import (
	"context"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

// Config selects the bucket and endpoint. Empty credentials fall back to the
// default AWS chain.
type Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style" mapstructure:"path_style"`
}

// PutObjectAPI is the S3 call the uploader makes.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes files under a key prefix in one bucket.
type Uploader struct {
	api    PutObjectAPI
	bucket string
	prefix string
	log    *zap.Logger
}

// Upload is one stored object.
type Upload struct {
	Key  string `json:"key"`
	URI  string `json:"uri"`
	Size int64  `json:"size"`
}

// NewUploader wraps an existing S3 client.
func NewUploader(api PutObjectAPI, bucket, prefix string, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.L()
	}
	return &Uploader{api: api, bucket: bucket, prefix: prefix, log: log}
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("blob: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewUploader(client, cfg.Bucket, cfg.Prefix, log), nil
}

// Key joins the uploader prefix, dir and the file's base name.
func (u *Uploader) Key(dir, file string) string {
	return path.Join(u.prefix, dir, filepath.Base(file))
}

// UploadFile stores the file at localPath under key with optional object
// metadata.
func (u *Uploader) UploadFile(ctx context.Context, key, localPath string, md map[string]string) (*Upload, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "blob: stat %s", localPath)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      md,
	}
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := u.api.PutObject(ctx, in); err != nil {
		return nil, eris.Wrapf(err, "blob: put s3://%s/%s", u.bucket, key)
	}

	up := &Upload{Key: key, URI: "s3://" + u.bucket + "/" + key, Size: info.Size()}
	u.log.Info("uploaded export", zap.String("uri", up.URI), zap.Int64("bytes", up.Size))
	return up, nil
}

// UploadExports stores each export under a directory named for its export
// id and tags it with the record count.
func (u *Uploader) UploadExports(ctx context.Context, results []pipelinedb.ExportResult) ([]Upload, error) {
	out := make([]Upload, 0, len(results))
	for _, r := range results {
		key := u.Key(r.ExportedAt.UTC().Format("2006-01-02")+"/"+r.ExportID, r.Path)
		up, err := u.UploadFile(ctx, key, r.Path, map[string]string{
			"export-id": r.ExportID,
			"format":    r.Format,
			"count":     strconv.Itoa(r.Count),
		})
		if err != nil {
			return out, err
		}
		out = append(out, *up)
	}
	return out, nil
}
