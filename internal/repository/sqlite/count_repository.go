package sqlite

import (
	"fmt"

	"zonecounter/internal/model"
)

// CountRepository implements repository.CountRepository for SQLite.
type CountRepository struct {
	db *DB
}

// NewCountRepository creates a new SQLite count repository.
func NewCountRepository(db *DB) *CountRepository {
	return &CountRepository{db: db}
}

// InsertBatch adds multiple count rows in a single transaction.
func (r *CountRepository) InsertBatch(records []model.CountRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO zone_counts (video_id, zone_id, ts, label, current, peak)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.VideoID, rec.ZoneID, rec.Timestamp.UTC(), rec.Label, rec.Current, rec.Peak); err != nil {
			return fmt.Errorf("failed to insert count: %w", err)
		}
	}

	return tx.Commit()
}

// GetByVideoID returns the newest count rows of a video, oldest first.
// A non-positive limit returns every row.
func (r *CountRepository) GetByVideoID(videoID int64, limit int) ([]model.CountRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, video_id, zone_id, ts, label, current, peak FROM (
			SELECT id, video_id, zone_id, ts, label, current, peak
			FROM zone_counts WHERE video_id = ? ORDER BY id DESC
	`
	args := []interface{}{videoID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query += ") ORDER BY id"

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()

	records := []model.CountRecord{}
	for rows.Next() {
		var rec model.CountRecord
		if err := rows.Scan(&rec.ID, &rec.VideoID, &rec.ZoneID, &rec.Timestamp, &rec.Label, &rec.Current, &rec.Peak); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByVideoID removes every count row of a video.
func (r *CountRepository) DeleteByVideoID(videoID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM zone_counts WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("failed to delete counts: %w", err)
	}
	return nil
}
