package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"meu_perito_go/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StorageProvider keeps the source documents behind extracted case records.
// Keys come from GenerateSourceDocumentKey.
type StorageProvider interface {
	PutDocument(ctx context.Context, key string, body io.Reader, size int64) (*StoredDocument, error)
	OpenDocument(ctx context.Context, key string) (io.ReadCloser, error)
	RemoveDocument(ctx context.Context, key string) error
	IsConfigured() bool
}

// StoredDocument describes a document after it was written
type StoredDocument struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Backend string    `json:"backend"`
	SavedAt time.Time `json:"saved_at"`
}

// NewStorage picks R2 when every credential is set and the bucket answers,
// local disk otherwise.
func NewStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) StorageProvider {
	log = log.With().Str("component", "storage").Logger()
	if !cfg.R2Configured() {
		log.Info().Str("path", cfg.UploadDir).Msg("document storage: local filesystem")
		return NewLocalStorage(cfg.UploadDir)
	}

	r2, err := NewR2Storage(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("R2 storage unavailable, falling back to local filesystem")
		return NewLocalStorage(cfg.UploadDir)
	}

	headCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := r2.client.HeadBucket(headCtx, &s3.HeadBucketInput{Bucket: aws.String(cfg.R2BucketName)}); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.R2BucketName).Msg("R2 bucket check failed, falling back to local filesystem")
		return NewLocalStorage(cfg.UploadDir)
	}

	log.Info().Str("bucket", cfg.R2BucketName).Msg("document storage: Cloudflare R2")
	return r2
}

// R2Storage keeps documents in a Cloudflare R2 bucket through the S3 API
type R2Storage struct {
	client *s3.Client
	bucket string
}

// NewR2Storage builds an S3 client against the account's R2 endpoint
func NewR2Storage(ctx context.Context, cfg *config.Config) (*R2Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("r2 credentials: %w", err)
	}

	endpoint := "https://" + cfg.R2AccountID + ".r2.cloudflarestorage.com"
	return &R2Storage{
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}),
		bucket: cfg.R2BucketName,
	}, nil
}

func (r *R2Storage) IsConfigured() bool {
	return r.client != nil && r.bucket != ""
}

func (r *R2Storage) object(key string) (*string, *string) {
	return aws.String(r.bucket), aws.String(key)
}

func (r *R2Storage) PutDocument(ctx context.Context, key string, body io.Reader, size int64) (*StoredDocument, error) {
	bucket, objectKey := r.object(key)
	if _, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        bucket,
		Key:           objectKey,
		Body:          body,
		ContentType:   aws.String(AllowedMimeType),
		ContentLength: aws.Int64(size),
	}); err != nil {
		return nil, fmt.Errorf("r2 put %s: %w", key, err)
	}
	return &StoredDocument{Key: key, Size: size, Backend: "r2", SavedAt: time.Now().UTC()}, nil
}

func (r *R2Storage) OpenDocument(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket, objectKey := r.object(key)
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: objectKey})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, newDocketError(ErrNotFound, "key", "document %q not found", key)
		}
		return nil, fmt.Errorf("r2 get %s: %w", key, err)
	}
	return out.Body, nil
}

func (r *R2Storage) RemoveDocument(ctx context.Context, key string) error {
	bucket, objectKey := r.object(key)
	if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: objectKey}); err != nil {
		return fmt.Errorf("r2 delete %s: %w", key, err)
	}
	return nil
}

// LocalStorage keeps documents under a base directory
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

func (l *LocalStorage) IsConfigured() bool {
	return l.baseDir != ""
}

// resolve maps a key to a path inside baseDir, rejecting traversal
func (l *LocalStorage) resolve(key string) (string, error) {
	full := filepath.Join(l.baseDir, filepath.FromSlash(key))
	base, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	if abs == base || !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", newDocketError(ErrInvalidInput, "key", "storage key %q escapes the storage directory", key)
	}
	return full, nil
}

func (l *LocalStorage) PutDocument(ctx context.Context, key string, body io.Reader, size int64) (*StoredDocument, error) {
	target, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("local put %s: %w", key, err)
	}

	// write to a temp file first so a reader never sees half a document
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("local put %s: %w", key, err)
	}
	written, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("local put %s: %w", key, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("local put %s: %w", key, err)
	}
	return &StoredDocument{Key: key, Size: written, Backend: "local", SavedAt: time.Now().UTC()}, nil
}

func (l *LocalStorage) OpenDocument(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, newDocketError(ErrNotFound, "key", "document %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("local open %s: %w", key, err)
	}
	return f, nil
}

// RemoveDocument deletes the file; a missing file is not an error
func (l *LocalStorage) RemoveDocument(ctx context.Context, key string) error {
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local delete %s: %w", key, err)
	}
	return nil
}

// GenerateSourceDocumentKey returns a unique key for an uploaded court
// document, grouped by upload day: documents/2025/03/10/<uuid>.pdf
func GenerateSourceDocumentKey(originalFilename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if ext == "" {
		ext = ".pdf"
	}
	return path.Join("documents", now.Format("2006/01/02"), uuid.New().String()+ext)
}
