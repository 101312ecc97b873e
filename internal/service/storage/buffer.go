package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/repository"
)

const (
	// CountBufferLimit forces a flush once this many rows are pending.
	CountBufferLimit = 500
	// CountBufferFlushInterval defines how often buffered rows are flushed.
	CountBufferFlushInterval = 30 * time.Second
)

var countsHeader = []string{"ts", "zone_id", "label", "current", "peak"}

// CountBuffer buffers count rows in memory and periodically appends them to
// the CSV log and, for rows tied to a known video, to the database.
type CountBuffer struct {
	csvPath   string
	interval  time.Duration
	rows      []model.CountRecord
	mu        sync.Mutex
	logger    *logger.Logger
	countRepo repository.CountRepository
}

// NewCountBuffer creates a buffer writing to csvPath. countRepo may be nil.
func NewCountBuffer(csvPath string, interval time.Duration, logger *logger.Logger, countRepo repository.CountRepository) *CountBuffer {
	if interval <= 0 {
		interval = CountBufferFlushInterval
	}
	return &CountBuffer{
		csvPath:   csvPath,
		interval:  interval,
		rows:      make([]model.CountRecord, 0),
		logger:    logger,
		countRepo: countRepo,
	}
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (b *CountBuffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return nil
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Add appends rows to the buffer, flushing early when the limit is reached.
func (b *CountBuffer) Add(rows ...model.CountRecord) {
	b.mu.Lock()
	b.rows = append(b.rows, rows...)
	full := len(b.rows) >= CountBufferLimit
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

// Pending returns how many rows wait for the next flush.
func (b *CountBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Flush writes buffered rows to the CSV file and the database and resets the buffer.
func (b *CountBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.rows) == 0 {
		return
	}

	if err := b.appendCSV(b.rows); err != nil {
		b.logger.Error("Error writing counts log: %v", err)
	}

	if b.countRepo != nil {
		var dbRows []model.CountRecord
		for _, r := range b.rows {
			if r.VideoID > 0 {
				dbRows = append(dbRows, r)
			}
		}
		if err := b.countRepo.InsertBatch(dbRows); err != nil {
			b.logger.Error("Error saving counts to database: %v", err)
		}
	}

	b.logger.Info("Flushed %d count rows", len(b.rows))
	b.rows = b.rows[:0]
}

func (b *CountBuffer) appendCSV(rows []model.CountRecord) error {
	if err := os.MkdirAll(filepath.Dir(b.csvPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	_, statErr := os.Stat(b.csvPath)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(b.csvPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.csvPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(countsHeader); err != nil {
			return err
		}
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatFloat(float64(r.Timestamp.UnixMilli())/1000, 'f', 3, 64),
			r.ZoneID,
			r.Label,
			strconv.Itoa(r.Current),
			strconv.Itoa(r.Peak),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
