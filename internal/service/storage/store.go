// Package storage persists zone layouts and occupancy logs: zones.json and
// counts_log.csv on disk, plus per-video rows in the database.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"zonecounter/internal/dto"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/repository"
	"zonecounter/internal/timeutil"
)

// Store is the local sink behind /save_zones and /log_counts.
type Store struct {
	zonesFile string
	buffer    *CountBuffer
	videoRepo repository.VideoRepository
	zoneRepo  repository.ZoneRepository
	clock     timeutil.Clock
	logger    *logger.Logger

	mu sync.Mutex // guards zonesFile
}

// NewStore creates a store. The repositories may be nil when no database is configured.
func NewStore(zonesFile string, buffer *CountBuffer, videoRepo repository.VideoRepository,
	zoneRepo repository.ZoneRepository, clock timeutil.Clock, logger *logger.Logger) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		zonesFile: zonesFile,
		buffer:    buffer,
		videoRepo: videoRepo,
		zoneRepo:  zoneRepo,
		clock:     clock,
		logger:    logger,
	}
}

// SaveZones rewrites zones.json and, when a video can be resolved, replaces
// that video's zone rows. Without a file name the latest upload is used.
func (s *Store) SaveZones(ctx context.Context, req dto.SaveZonesRequest) (dto.SaveZonesResponse, error) {
	zones := req.Zones
	if zones == nil {
		zones = []model.Zone{}
	}
	if err := s.writeZones(zones); err != nil {
		return dto.SaveZonesResponse{}, err
	}

	resp := dto.SaveZonesResponse{OK: true}
	if s.zoneRepo == nil {
		return resp, nil
	}

	video := s.resolveVideo(req.File, true)
	if video == nil {
		return resp, nil
	}

	inserted, err := s.zoneRepo.ReplaceForVideo(video.ID, zones)
	if err != nil {
		s.logger.Warning("Saving zones for video %s: %v", video.Filename, err)
		return resp, nil
	}
	resp.Inserted = inserted
	return resp, nil
}

// LogCounts sums the snapshot and buffers one row per zone for the CSV log
// and, when file names a known video, the database.
func (s *Store) LogCounts(ctx context.Context, req dto.LogCountsRequest) (dto.LogCountsResponse, error) {
	now := s.clock.Now()
	resp := dto.LogCountsResponse{OK: true}

	var videoID int64
	if req.File != "" {
		if v := s.resolveVideo(req.File, false); v != nil {
			videoID = v.ID
		}
	}

	rows := make([]model.CountRecord, 0, len(req.Counts))
	for zoneID, c := range req.Counts {
		resp.TotalCurrent += c.Current
		resp.TotalPeak += c.Peak
		rows = append(rows, model.CountRecord{
			VideoID:   videoID,
			ZoneID:    zoneID,
			Label:     c.Label,
			Current:   c.Current,
			Peak:      c.Peak,
			Timestamp: now,
		})
	}
	s.buffer.Add(rows...)
	return resp, nil
}

// LoadZones reads zones.json. A missing file yields no zones.
func (s *Store) LoadZones() ([]model.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.zonesFile)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Zone{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.zonesFile, err)
	}

	var zones []model.Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.zonesFile, err)
	}
	return zones, nil
}

// ZonesFile returns the zones.json path.
func (s *Store) ZonesFile() string {
	return s.zonesFile
}

// CountsFile flushes pending rows and returns the CSV log path.
func (s *Store) CountsFile() string {
	s.buffer.Flush()
	return s.buffer.csvPath
}

func (s *Store) writeZones(zones []model.Zone) error {
	data, err := json.MarshalIndent(zones, "", "  ")
	if err != nil {
		return fmt.Errorf("encode zones: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.zonesFile), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := s.zonesFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.zonesFile)
}

func (s *Store) resolveVideo(file string, fallbackLatest bool) *model.Video {
	if s.videoRepo == nil {
		return nil
	}

	var (
		v   *model.Video
		err error
	)
	if file != "" {
		v, err = s.videoRepo.GetByFilename(file)
	} else if fallbackLatest {
		v, err = s.videoRepo.GetLatest()
	}
	if err != nil {
		s.logger.Warning("Looking up video %q: %v", file, err)
		return nil
	}
	return v
}
