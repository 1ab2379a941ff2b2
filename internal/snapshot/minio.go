// Package snapshot archives a question row before an editor overwrites it.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Snapshot is the archived state of one row.
type Snapshot struct {
	Area       string    `json:"area"`
	QuestionID string    `json:"questionId"`
	SheetRow   int       `json:"sheetRow"`
	Header     []string  `json:"header"`
	Values     []string  `json:"values"`
	Actor      string    `json:"actor"`
	TakenAt    time.Time `json:"takenAt"`
}

// Archiver stores snapshots.
type Archiver interface {
	Archive(ctx context.Context, snap Snapshot) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

type minioPutter struct {
	client *minio.Client
}

func (p minioPutter) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: contentType})
	return err
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchiver writes one JSON object per snapshot.
type MinioArchiver struct {
	objects objectPutter
	bucket  string
}

// NewMinioArchiver connects and creates the bucket when missing.
func NewMinioArchiver(ctx context.Context, cfg MinioConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioArchiver{objects: minioPutter{client: client}, bucket: cfg.Bucket}, nil
}

// Archive uploads snap and returns its object key.
func (a *MinioArchiver) Archive(ctx context.Context, snap Snapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	key := ObjectKey(snap)
	if err := a.objects.PutObject(ctx, a.bucket, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey is "<area>/<question id>/<UTC time>-r<sheet row>.json".
func ObjectKey(snap Snapshot) string {
	return fmt.Sprintf("%s/%s/%s-r%d.json",
		keySegment(snap.Area),
		keySegment(snap.QuestionID),
		snap.TakenAt.UTC().Format("20060102T150405.000Z"),
		snap.SheetRow,
	)
}

func keySegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(value)
}

// Nop discards snapshots. Used when no object store is configured.
type Nop struct{}

func (Nop) Archive(context.Context, Snapshot) (string, error) { return "", nil }
