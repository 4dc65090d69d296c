// Package record implements the append-only observation log and the
// wrappers that keep it off the ingestion path.
package record

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

var csvHeader = []string{"observed_at", "symbol", "price", "volume", "change_percent"}

// CSVStore appends observations to one CSV file per UTC day, named
// <prefix>-YYYY-MM-DD.csv. Each new file starts with a header row.
type CSVStore struct {
	dir      string
	prefix   string
	onRotate func(path string)

	mu   sync.Mutex
	day  string
	file *os.File
	w    *csv.Writer
}

// NewCSVStore creates dir if needed. onRotate, when non-nil, is called with
// the path of each file that is closed because the day changed.
func NewCSVStore(dir, prefix string, onRotate func(path string)) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create dir %s: %w", dir, err)
	}
	if prefix == "" {
		prefix = "tickers"
	}
	return &CSVStore{dir: dir, prefix: prefix, onRotate: onRotate}, nil
}

// Append writes one row and flushes it.
func (s *CSVStore) Append(_ context.Context, obs domain.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := obs.ObservedAt.UTC()
	if err := s.rotate(at.Format(time.DateOnly)); err != nil {
		return err
	}

	row := []string{
		at.Format(time.RFC3339),
		obs.Symbol,
		strconv.FormatFloat(obs.Price, 'f', -1, 64),
		strconv.FormatFloat(obs.Volume, 'f', -1, 64),
		strconv.FormatFloat(obs.ChangePercent, 'f', -1, 64),
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("record: write row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("record: flush: %w", err)
	}
	return nil
}

// Path returns the file for day (YYYY-MM-DD).
func (s *CSVStore) Path(day string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.csv", s.prefix, day))
}

func (s *CSVStore) rotate(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}

	var closed string
	if s.file != nil {
		closed = s.file.Name()
		if err := s.closeLocked(); err != nil {
			return err
		}
	}

	path := s.Path(day)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("record: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("record: stat %s: %w", path, err)
	}

	s.file = f
	s.w = csv.NewWriter(f)
	s.day = day
	if info.Size() == 0 {
		if err := s.w.Write(csvHeader); err != nil {
			return fmt.Errorf("record: write header: %w", err)
		}
	}

	if closed != "" && s.onRotate != nil {
		s.onRotate(closed)
	}
	return nil
}

func (s *CSVStore) closeLocked() error {
	s.w.Flush()
	err := s.file.Close()
	s.file, s.w = nil, nil
	if err != nil {
		return fmt.Errorf("record: close: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.closeLocked()
}
