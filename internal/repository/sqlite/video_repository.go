package sqlite

import (
	"database/sql"
	"fmt"

	"zonecounter/internal/model"
)

// VideoRepository implements repository.VideoRepository for SQLite.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a new SQLite video repository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, filename, original_name, mime_type, filepath, filesize, created_at`

func scanVideo(row interface{ Scan(...interface{}) error }) (*model.Video, error) {
	var v model.Video
	if err := row.Scan(&v.ID, &v.Filename, &v.OriginalName, &v.MimeType, &v.FilePath, &v.FileSize, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// Insert adds a new video record to the database.
func (r *VideoRepository) Insert(v *model.Video) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO videos (filename, original_name, mime_type, filepath, filesize)
		VALUES (?, ?, ?, ?, ?)
	`, v.Filename, v.OriginalName, v.MimeType, v.FilePath, v.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert video: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a video by its ID. A missing row returns nil, nil.
func (r *VideoRepository) GetByID(id int64) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// GetByFilename retrieves a video by its stored filename. A missing row returns nil, nil.
func (r *VideoRepository) GetByFilename(filename string) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE filename = ?`, filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// GetAll returns every video, newest first.
func (r *VideoRepository) GetAll() ([]model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT ` + videoColumns + ` FROM videos ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// GetLatest returns the most recently uploaded video, or nil when there is none.
func (r *VideoRepository) GetLatest() (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT ` + videoColumns + ` FROM videos ORDER BY id DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest video: %w", err)
	}
	return v, nil
}

// GetStats returns statistics about stored videos and count rows.
func (r *VideoRepository) GetStats() (*model.VideoStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.VideoStats{PerVideo: make(map[int64]int)}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM videos`).
		Scan(&stats.TotalVideos, &stats.TotalSizeBytes); err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM zone_counts`).Scan(&stats.CountRows); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := r.db.Conn().Query(`SELECT video_id, COUNT(*) FROM zone_counts GROUP BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to group counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		stats.PerVideo[id] = n
	}
	return stats, rows.Err()
}

// Delete removes a video together with its zones and count rows.
func (r *VideoRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM zone_counts WHERE video_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete counts: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM video_zones WHERE video_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete zones: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM videos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}
