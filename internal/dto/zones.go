package dto

import "zonecounter/internal/model"

// SaveZonesRequest is the body of POST /save_zones.
type SaveZonesRequest struct {
	Zones []model.Zone `json:"zones"`
	File  string       `json:"file"`
}

// SaveZonesResponse reports how many zone rows were stored for the video.
type SaveZonesResponse struct {
	OK       bool `json:"ok"`
	Inserted int  `json:"inserted"`
}

// CreateZoneRequest carries two opposite corners drawn by the operator.
type CreateZoneRequest struct {
	Label string      `json:"label"`
	From  model.Point `json:"from"`
	To    model.Point `json:"to"`
}

// RenameZoneRequest changes a zone label.
type RenameZoneRequest struct {
	Label string `json:"label"`
}
