package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/uam-labs/arbiter/pkg/canonical"
)

// EvidencePack is an exported, checksummed bundle of audit entries.
type EvidencePack struct {
	GeneratedAt time.Time `json:"generated_at"`
	EntryCount  int       `json:"entry_count"`
	ChainHead   string    `json:"chain_head"`
	Checksum    string    `json:"checksum"`
	Archive     []byte    `json:"-"`
}

// Export builds a zip of the filtered entries plus a manifest. The
// checksum covers the archive bytes so a reviewer can verify integrity
// independently of the transport.
func Export(l *Log, f Filter) (*EvidencePack, error) {
	entries := l.Query(f)
	if len(entries) == 0 {
		return nil, fmt.Errorf("audit: no entries match export filter")
	}

	eventsJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entries: %w", err)
	}

	now := time.Now().UTC()
	manifest := map[string]any{
		"generated_at": now,
		"entry_count":  len(entries),
		"chain_head":   l.ChainHead(),
		"first_seq":    entries[0].Sequence,
		"last_seq":     entries[len(entries)-1].Sequence,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, file := range []struct {
		name string
		data []byte
	}{
		{"events.json", eventsJSON},
		{"manifest.json", manifestJSON},
	} {
		f, err := w.Create(file.name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(file.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	archive := buf.Bytes()
	return &EvidencePack{
		GeneratedAt: now,
		EntryCount:  len(entries),
		ChainHead:   l.ChainHead(),
		Checksum:    canonical.HashBytes(archive),
		Archive:     archive,
	}, nil
}

// S3Uploader ships evidence packs to an object store bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds uploader configuration. Endpoint supports MinIO and
// LocalStack for local verification.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Uploader creates an uploader using the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("audit: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores the pack archive under its checksum and returns the key.
func (u *S3Uploader) Upload(ctx context.Context, pack *EvidencePack) (string, error) {
	key := u.prefix + pack.GeneratedAt.Format("2006/01/02/") + pack.Checksum + ".zip"

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pack.Archive),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("audit: upload evidence pack: %w", err)
	}
	return key, nil
}
