package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
)

const csvContentType = "text/csv"

// multipartThreshold is the file size above which uploads go through the
// multipart manager.
const multipartThreshold int64 = 64 * 1024 * 1024

var dayPattern = regexp.MustCompile(`(\d{4})-(\d{2})-\d{2}\.csv$`)

// ExistenceChecker is satisfied by Reader.
type ExistenceChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver uploads closed CSV record files. Rotation hands paths to
// Enqueue and Run performs the uploads off the record writer's goroutine.
type Archiver struct {
	writer domain.BlobWriter
	exists ExistenceChecker
	prefix string
	queue  chan string
	logger *slog.Logger
}

// NewArchiver creates an Archiver. exists may be nil, in which case Sweep
// uploads every file it finds.
func NewArchiver(writer domain.BlobWriter, exists ExistenceChecker, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		exists: exists,
		prefix: prefix,
		queue:  make(chan string, 16),
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Key returns the object key for a local file:
// <prefix>/<YYYY>/<MM>/<file name>. Files whose names carry no date are
// filed under their modification month.
func (a *Archiver) Key(localPath string, modTime time.Time) string {
	name := filepath.Base(localPath)
	year, month := modTime.UTC().Format("2006"), modTime.UTC().Format("01")
	if m := dayPattern.FindStringSubmatch(name); m != nil {
		year, month = m[1], m[2]
	}
	return path.Join(a.prefix, year, month, name)
}

// Upload sends one file to the bucket.
func (a *Archiver) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3blob: open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: stat %s: %w", localPath, err)
	}
	key := a.Key(localPath, info.ModTime())

	if info.Size() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, f, minPartSize)
	} else {
		err = a.writer.Put(ctx, key, f, csvContentType)
	}
	if err != nil {
		metrics.ArchiveUploads.WithLabelValues("failed").Inc()
		return err
	}

	metrics.ArchiveUploads.WithLabelValues("uploaded").Inc()
	a.logger.InfoContext(ctx, "record file archived",
		slog.String("file", localPath),
		slog.String("key", key),
		slog.Int64("bytes", info.Size()),
	)
	return nil
}

// Enqueue schedules localPath for upload. It never blocks; when the queue
// is full the file is left for the next Sweep.
func (a *Archiver) Enqueue(localPath string) {
	select {
	case a.queue <- localPath:
	default:
		a.logger.Warn("archive queue full, deferring to next sweep",
			slog.String("file", localPath),
		)
	}
}

// Sweep uploads every file in dir matching pattern that is not yet in the
// bucket. skip names a file that is still being written.
func (a *Archiver) Sweep(ctx context.Context, dir, pattern, skip string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("s3blob: sweep %s: %w", dir, err)
	}
	sort.Strings(matches)

	uploaded := 0
	for _, m := range matches {
		if ctx.Err() != nil {
			return uploaded, ctx.Err()
		}
		if skip != "" && filepath.Clean(m) == filepath.Clean(skip) {
			continue
		}
		if a.exists != nil {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			ok, err := a.exists.Exists(ctx, a.Key(m, info.ModTime()))
			if err != nil {
				a.logger.WarnContext(ctx, "archive existence check failed",
					slog.String("file", m),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ok {
				continue
			}
		}
		if err := a.Upload(ctx, m); err != nil {
			a.logger.WarnContext(ctx, "archive upload failed",
				slog.String("file", m),
				slog.String("error", err.Error()),
			)
			continue
		}
		uploaded++
	}
	return uploaded, nil
}

// Run uploads queued files until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-a.queue:
			if err := a.Upload(ctx, p); err != nil {
				a.logger.WarnContext(ctx, "archive upload failed",
					slog.String("file", p),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
