package sqlite

import (
	"fmt"

	"zonecounter/internal/model"
)

// ZoneRepository implements repository.ZoneRepository for SQLite.
type ZoneRepository struct {
	db *DB
}

// NewZoneRepository creates a new SQLite zone repository.
func NewZoneRepository(db *DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// ReplaceForVideo swaps the stored zone layout of a video in one transaction.
func (r *ZoneRepository) ReplaceForVideo(videoID int64, zones []model.Zone) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM video_zones WHERE video_id = ?`, videoID); err != nil {
		return 0, fmt.Errorf("failed to clear zones: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO video_zones (
			video_id, zone_id, label,
			topleft_x, topleft_y, topright_x, topright_y,
			bottomleft_x, bottomleft_y, bottomright_x, bottomright_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, z := range zones {
		if _, err := stmt.Exec(videoID, z.ID, z.Label,
			z.TopLeft.X, z.TopLeft.Y, z.TopRight.X, z.TopRight.Y,
			z.BottomLeft.X, z.BottomLeft.Y, z.BottomRight.X, z.BottomRight.Y); err != nil {
			return 0, fmt.Errorf("failed to insert zone %s: %w", z.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit zones: %w", err)
	}
	return inserted, nil
}

// GetByVideoID returns the zones saved for a video in insertion order.
func (r *ZoneRepository) GetByVideoID(videoID int64) ([]model.Zone, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT zone_id, label,
			topleft_x, topleft_y, topright_x, topright_y,
			bottomleft_x, bottomleft_y, bottomright_x, bottomright_y
		FROM video_zones WHERE video_id = ? ORDER BY id
	`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	zones := []model.Zone{}
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Label,
			&z.TopLeft.X, &z.TopLeft.Y, &z.TopRight.X, &z.TopRight.Y,
			&z.BottomLeft.X, &z.BottomLeft.Y, &z.BottomRight.X, &z.BottomRight.Y); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
