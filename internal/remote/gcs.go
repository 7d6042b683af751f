package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/artho/internal/domain"
)

// GCS keeps the backup document as one object in a bucket. It assumes
// Application Default Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
	object string
	log    zerolog.Logger
}

// NewGCS creates a storage client for bucket/object.
func NewGCS(ctx context.Context, bucket, object string, log zerolog.Logger, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, object: object, log: log}, nil
}

// Download reads the object. A missing object means no remote copy yet.
func (g *GCS) Download(ctx context.Context) (*domain.Snapshot, error) {
	r, err := g.client.Bucket(g.bucket).Object(g.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		g.log.Debug().Str("bucket", g.bucket).Str("object", g.object).Msg("No remote backup yet")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Download: open GCS object reader: %w", err)
	}
	defer r.Close()

	snap, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	return snap, nil
}

// Upload overwrites the object. The new content only becomes visible when
// the writer closes successfully.
func (g *GCS) Upload(ctx context.Context, snap domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	w.ContentType = "application/json"

	if err := Encode(w, snap); err != nil {
		// Cancelling the context aborts the upload without finalizing it.
		cancel()
		_ = w.Close()
		return fmt.Errorf("Upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload: %w", err)
	}

	g.log.Info().Str("bucket", g.bucket).Str("object", g.object).Int("transactions", len(snap.Transactions)).Msg("Uploaded backup")
	return nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
