package handler

import (
	"net/http"

	"zonecounter/internal/httputil"
)

// CameraLister reports the network cameras that have sent frames.
type CameraLister interface {
	Cameras() []string
}

// CamerasHandler handles GET /api/cameras with the names accepted by
// POST /api/detection/start as {"source":"camera","camera":name}.
func CamerasHandler(cameras CameraLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string][]string{"cameras": cameras.Cameras()})
	}
}
