package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
)

// Process letterboxes the video to 16:9. When a new file is produced the library
// follows it and the original is deleted.
func (p *Phases) Process(ctx context.Context, in Input) (job.Result, error) {
	src := in.State.VideoPath
	if src == "" {
		return nil, fmt.Errorf("%w: no media file to process", job.ErrInvalidRequest)
	}

	in.Report(ctx, 10, "Fixing aspect ratio")
	out, err := p.Media.FixAspectRatio(ctx, src, func(pct float64) {
		in.Report(ctx, scale(pct, 10, 90), "Fixing aspect ratio")
	})
	if err != nil {
		return nil, err
	}

	res := &job.Processed{OriginalPath: src, OutputPath: out}
	if !res.Renamed() {
		return res, nil
	}

	if p.Library != nil {
		res.MediaID = p.followRename(ctx, in.State.MediaID, src, out)
	}
	removeQuietly(p.logger, src)

	p.logger.Info("Aspect ratio fixed",
		slog.String("job_id", in.JobID),
		slog.String("from", src),
		slog.String("to", out),
	)
	return res, nil
}

// followRename points the library record for src at out. Without a media id the
// record is looked up by its current path. It returns the record's id, if any.
func (p *Phases) followRename(ctx context.Context, id, src, out string) string {
	if id == "" {
		item, err := p.Library.FindByPath(ctx, src)
		if err != nil {
			if !errors.Is(err, library.ErrMediaNotFound) {
				p.logger.Warn("Library lookup failed", slog.String("path", src), slog.Any("error", err))
			}
			return ""
		}
		id = item.ID
	}

	if err := p.Library.UpdatePath(ctx, id, out); err != nil {
		p.logger.Warn("Failed to update library path",
			slog.String("media_id", id),
			slog.Any("error", fmt.Errorf("%w: %w", job.ErrPersistence, err)),
		)
	}
	return id
}

// NormalizeAudio applies EBU R128 loudness normalization in place.
func (p *Phases) NormalizeAudio(ctx context.Context, in Input) (job.Result, error) {
	src := in.State.VideoPath
	if src == "" {
		return nil, fmt.Errorf("%w: no media file to normalize", job.ErrInvalidRequest)
	}

	in.Report(ctx, 10, "Normalizing audio")
	out, err := p.Media.NormalizeAudio(ctx, src, func(pct float64) {
		in.Report(ctx, scale(pct, 10, 90), "Normalizing audio")
	})
	if err != nil {
		return nil, err
	}
	return &job.Processed{OriginalPath: src, OutputPath: out}, nil
}
