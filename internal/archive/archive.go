// Package archive copies finished transcripts and reports to object storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"
)

// ObjectPutter stores one object. *objectstore.Client satisfies it.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Archiver struct {
	store  ObjectPutter
	prefix string
	logger *slog.Logger
}

func New(store ObjectPutter, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{store: store, prefix: prefix, logger: logger}
}

// Key is the object key for an artifact of a media item.
func Key(prefix, mediaID, name string) string {
	return path.Join(prefix, mediaID, name)
}

func (a *Archiver) Archive(ctx context.Context, mediaID, name string, data []byte, contentType string) error {
	if mediaID == "" {
		return fmt.Errorf("archive %s: media id is required", name)
	}

	key := Key(a.prefix, mediaID, name)
	if err := a.store.Put(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	a.logger.Info("Artifact archived",
		slog.String("media_id", mediaID),
		slog.String("key", key),
		slog.Int("size", len(data)),
	)
	return nil
}
