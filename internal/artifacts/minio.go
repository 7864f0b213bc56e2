// Package artifacts copies downloaded and filled PDFs, and result exports,
// to S3-compatible object storage so a batch can run on a disposable host.
package artifacts

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Uploader stores a local file under an object key and returns its location.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Enabled   bool   `mapstructure:"enabled"`
}

// objectStore is the subset of *minio.Client the uploader needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioUploader uploads artifacts with minio-go.
type MinioUploader struct {
	client objectStore
	cfg    Config
}

// NewMinioUploader connects to the configured endpoint.
func NewMinioUploader(cfg Config) (*MinioUploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, eris.New("artifacts: endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "artifacts: create minio client")
	}
	return &MinioUploader{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return eris.Wrapf(err, "artifacts: check bucket %s", u.cfg.Bucket)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "artifacts: create bucket %s", u.cfg.Bucket)
	}
	zap.L().Info("created artifact bucket", zap.String("bucket", u.cfg.Bucket))
	return nil
}

// Upload puts localPath at key (under the configured prefix) and returns an
// s3:// style location.
func (u *MinioUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	object := u.objectName(key)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := u.client.FPutObject(ctx, u.cfg.Bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", eris.Wrapf(err, "artifacts: upload %s", localPath)
	}

	zap.L().Debug("uploaded artifact",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, object), nil
}

func (u *MinioUploader) objectName(key string) string {
	if u.cfg.Prefix == "" {
		return key
	}
	return path.Join(u.cfg.Prefix, key)
}

// Key builds the object key for a batch artifact: <batch>/<kind>/<file>.
func Key(batchID, kind, localPath string) string {
	if batchID == "" {
		batchID = "unbatched"
	}
	return path.Join(batchID, kind, filepath.Base(localPath))
}
