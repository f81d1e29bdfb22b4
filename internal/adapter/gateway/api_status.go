package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus   `json:"service"`
	Tools    []string        `json:"tools"`
	Surfaces []SurfaceStatus `json:"surfaces"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func statusHandler(deps HandlerDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		schemas := deps.Tools.Schemas()
		names := make([]string, 0, len(schemas))
		for _, s := range schemas {
			names = append(names, s.Name)
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          deps.Name,
				Version:       deps.Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Tools:    names,
			Surfaces: surfaceStatuses(deps.Surfaces),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			deps.Logger.Warn("status encode failed", "error", err)
		}
	}
}
