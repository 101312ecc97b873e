package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"zonecounter/internal/dto"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/pipeline"
	"zonecounter/internal/service"
)

// ZonesHandler serves /api/zones: GET lists zones, POST creates one from two
// corners, PUT replaces the whole list.
func ZonesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httputil.WriteJSONOK(w, manager.Zones())

		case http.MethodPost:
			var req dto.CreateZoneRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "invalid zone: "+err.Error())
				return
			}
			zone := manager.AddZone(req)
			logger.Info("Zone %s (%s) created", zone.ID, zone.Label)
			httputil.WriteJSON(w, http.StatusCreated, zone)

		case http.MethodPut:
			var zones []model.Zone
			if err := json.NewDecoder(r.Body).Decode(&zones); err != nil {
				httputil.BadRequest(w, "invalid zone list: "+err.Error())
				return
			}
			httputil.WriteJSONOK(w, manager.ReplaceZones(zones))

		default:
			httputil.MethodNotAllowed(w)
		}
	}
}

// ZoneHandler serves /api/zones/{id}: PATCH renames, DELETE removes the zone
// together with its counts.
func ZoneHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			httputil.BadRequest(w, "zone id required")
			return
		}

		switch r.Method {
		case http.MethodPatch:
			var req dto.RenameZoneRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "invalid request: "+err.Error())
				return
			}
			zone, err := manager.RenameZone(id, req.Label)
			if errors.Is(err, pipeline.ErrZoneNotFound) {
				httputil.NotFound(w, "zone not found")
				return
			}
			httputil.WriteJSONOK(w, zone)

		case http.MethodDelete:
			if err := manager.DeleteZone(id); errors.Is(err, pipeline.ErrZoneNotFound) {
				httputil.NotFound(w, "zone not found")
				return
			}
			logger.Info("Zone %s deleted", id)
			w.WriteHeader(http.StatusNoContent)

		default:
			httputil.MethodNotAllowed(w)
		}
	}
}
