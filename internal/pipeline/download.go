package pipeline

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mediaflow/internal/job"
)

// Download fetches URL input with the fast profile and tries to import it into the
// library. File input only records the path.
func (p *Phases) Download(ctx context.Context, in Input) (job.Result, error) {
	req := in.State.Request
	if req.InputType == job.InputFile {
		return &job.Acquisition{VideoPath: req.Input, Title: job.TitleFromPath(req.Input)}, nil
	}

	dir, err := p.downloadDir(ctx)
	if err != nil {
		return nil, err
	}

	in.Report(ctx, 5, "Downloading video")
	res, err := p.Downloader.Download(ctx, req.Input, dir, func(pct float64) {
		in.Report(ctx, scale(pct, 5, 25), "Downloading video")
	})
	if err != nil {
		return nil, err
	}

	acq := &job.Acquisition{VideoPath: res.Path, Title: res.Title}
	if in.State.Title != "" {
		acq.Title = in.State.Title
	}

	if p.Library != nil {
		item, err := p.Library.Import(ctx, res.Path)
		if err != nil {
			p.logger.Warn("Library import failed after download",
				slog.String("job_id", in.JobID),
				slog.String("path", res.Path),
				slog.Any("error", err),
			)
		} else {
			acq.MediaID = item.ID
		}
	}

	p.logger.Info("Download finished",
		slog.String("job_id", in.JobID),
		slog.String("path", res.Path),
		slog.String("media_id", acq.MediaID),
	)
	return acq, nil
}
