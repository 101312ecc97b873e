package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"zonecounter/internal/model"
	"zonecounter/internal/repository/sqlite"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// run imports a zones.json snapshot into the video_zones table of one video.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	zonesPath := fs.String("zones", "data/zones.json", "Zones JSON file")
	dbPath := fs.String("db", "data/zonecounter.db", "Database path")
	videoName := fs.String("video", "", "Stored video filename (default: latest upload)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*zonesPath)
	if err != nil {
		return fmt.Errorf("read zones: %w", err)
	}
	var zones []model.Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return fmt.Errorf("parse zones: %w", err)
	}
	for i := range zones {
		zones[i] = zones[i].Normalize()
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqlite.New(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	videoRepo := sqlite.NewVideoRepository(db)
	var video *model.Video
	if *videoName != "" {
		video, err = videoRepo.GetByFilename(*videoName)
	} else {
		video, err = videoRepo.GetLatest()
	}
	if err != nil {
		return err
	}
	if video == nil {
		return fmt.Errorf("no video found (requested %q)", *videoName)
	}

	fmt.Fprintf(out, "Importing %d zones from %s for video %s\n", len(zones), *zonesPath, video.Filename)
	inserted, err := sqlite.NewZoneRepository(db).ReplaceForVideo(video.ID, zones)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Stored %d zones for video %d\n", inserted, video.ID)

	stats, err := videoRepo.GetStats()
	if err == nil {
		fmt.Fprintf(out, "\n📊 Database Statistics:\n")
		fmt.Fprintf(out, "   Total videos: %d\n", stats.TotalVideos)
		fmt.Fprintf(out, "   Total size: %d bytes\n", stats.TotalSizeBytes)
		fmt.Fprintf(out, "   Count rows: %d\n", stats.CountRows)
	}
	return nil
}
