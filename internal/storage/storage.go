// Package storage keeps ticket photos in a MinIO/S3 bucket.
package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

const DefaultBucket = "bet-images"

// ObjectAPI is the part of *minio.Client the store calls.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// ImageStore uploads images under <user>/<yyyy-mm>/<uuid>.<ext>.
type ImageStore struct {
	api    ObjectAPI
	bucket string
	logger *zap.Logger
	now    func() time.Time
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, cfg common.StorageConfig, logger *zap.Logger) (*ImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: new minio client")
	}
	store := NewWithAPI(client, cfg.Bucket, logger)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	store.logger.Info("storage.connected", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", store.bucket))
	return store, nil
}

func NewWithAPI(api ObjectAPI, bucket string, logger *zap.Logger) *ImageStore {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &ImageStore{api: api, bucket: bucket, logger: common.LoggerOrGlobal(logger), now: time.Now}
}

func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return eris.Wrapf(err, "storage: check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "storage: create bucket %s", s.bucket)
	}
	s.logger.Info("storage.bucket.created", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads data and returns the object path stored as bets.image_path.
func (s *ImageStore) Put(ctx context.Context, userID string, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", common.NewAppError("EMPTY_IMAGE", "image is empty", common.ErrInvalidInput)
	}
	if userID == "" {
		userID = "anonymous"
	}
	name := path.Join(userID, s.now().UTC().Format("2006-01"), uuid.NewString()+"."+extFor(mime))

	info, err := s.api.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mime})
	if err != nil {
		s.logger.Error("storage.put.failed", zap.String("object", name), zap.Error(err))
		return "", eris.Wrap(err, "storage: put object")
	}
	s.logger.Debug("storage.put.ok", zap.String("object", name), zap.Int64("size", info.Size))
	return name, nil
}

func (s *ImageStore) Remove(ctx context.Context, objectPath string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return eris.Wrapf(err, "storage: remove %s", objectPath)
	}
	return nil
}

// URL returns a presigned GET link valid for expiry.
func (s *ImageStore) URL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	u, err := s.api.PresignedGetObject(ctx, s.bucket, objectPath, expiry, nil)
	if err != nil {
		return "", eris.Wrapf(err, "storage: presign %s", objectPath)
	}
	return u.String(), nil
}

func extFor(mime string) string {
	for ext, mt := range constants.ImageExtensions {
		if mt == mime && ext != "jpeg" && ext != "tif" {
			return ext
		}
	}
	if strings.HasPrefix(mime, "image/") {
		return strings.TrimPrefix(mime, "image/")
	}
	return "bin"
}
