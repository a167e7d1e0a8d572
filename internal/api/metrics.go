package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Mirror        MirrorMetrics  `json:"mirror"`
	History       HistoryMetrics `json:"history"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MirrorMetrics contains mirrored entity counts by kind.
type MirrorMetrics struct {
	Domains int `json:"domains"`
	Devices int `json:"devices"`
	Labels  int `json:"labels"`
}

// HistoryMetrics contains history journal statistics.
type HistoryMetrics struct {
	Enabled        bool  `json:"enabled"`
	DroppedEntries int64 `json:"dropped_entries"`
}

// handleMetrics returns system metrics: runtime stats, hub occupancy,
// and mirror entity counts.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Mirror: MirrorMetrics{
			Domains: len(s.view.ListAll(mirror.Filter{Kind: entity.KindDomain})),
			Devices: len(s.view.ListAll(mirror.Filter{Kind: entity.KindDevice})),
			Labels:  len(s.view.ListAll(mirror.Filter{Kind: entity.KindLabel})),
		},
	}

	if s.hub != nil {
		metrics.WebSocket = WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	if s.journal != nil {
		metrics.History = HistoryMetrics{
			Enabled:        true,
			DroppedEntries: s.journal.Dropped(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
