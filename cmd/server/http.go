package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/transport/broadcast"
	"github.com/dr-vortex/annihilation/internal/transport/ws"
)

type levelStats struct {
	Tick     uint64  `json:"tick"`
	TPS      float64 `json:"tps"`
	Entities int     `json:"entities"`
	Systems  int     `json:"systems"`
	Pending  int     `json:"pending"`
}

func readStats(ctx context.Context, loop *level.Loop) (levelStats, error) {
	var s levelStats
	err := loop.Do(ctx, func(l *level.Level) error {
		s = levelStats{
			Tick:     l.Tick(),
			TPS:      l.TPS(),
			Entities: l.Len(),
			Systems:  len(l.Systems()),
			Pending:  len(l.PendingResolutions()),
		}
		return nil
	})
	return s, err
}

func newMux(loop *level.Loop, wsSrv *ws.Server, mirror *broadcast.Redis, levelID string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-loop.Done():
			http.Error(rw, "level loop stopped", http.StatusServiceUnavailable)
		default:
			_, _ = rw.Write([]byte("ok"))
		}
	})
	mux.HandleFunc("/v1/level", levelHandler(loop, logger))
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		s, err := readStats(ctx, loop)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP annihilation_level_tick Current level tick.\n")
		fmt.Fprintf(rw, "# TYPE annihilation_level_tick gauge\n")
		fmt.Fprintf(rw, "annihilation_level_tick{level=%q} %d\n", levelID, s.Tick)
		fmt.Fprintf(rw, "# HELP annihilation_level_tps Measured ticks per second.\n")
		fmt.Fprintf(rw, "# TYPE annihilation_level_tps gauge\n")
		fmt.Fprintf(rw, "annihilation_level_tps{level=%q} %.3f\n", levelID, s.TPS)
		fmt.Fprintf(rw, "# HELP annihilation_level_entities Entities in the level.\n")
		fmt.Fprintf(rw, "# TYPE annihilation_level_entities gauge\n")
		fmt.Fprintf(rw, "annihilation_level_entities{level=%q} %d\n", levelID, s.Entities)
		fmt.Fprintf(rw, "# HELP annihilation_level_pending_resolutions Projectiles in flight.\n")
		fmt.Fprintf(rw, "# TYPE annihilation_level_pending_resolutions gauge\n")
		fmt.Fprintf(rw, "annihilation_level_pending_resolutions{level=%q} %d\n", levelID, s.Pending)
		fmt.Fprintf(rw, "# HELP annihilation_sessions Connected player sessions.\n")
		fmt.Fprintf(rw, "# TYPE annihilation_sessions gauge\n")
		fmt.Fprintf(rw, "annihilation_sessions{level=%q} %d\n", levelID, wsSrv.Sessions())
		if mirror != nil {
			fmt.Fprintf(rw, "# HELP annihilation_redis_dropped_total Broadcasts dropped by the redis mirror.\n")
			fmt.Fprintf(rw, "# TYPE annihilation_redis_dropped_total counter\n")
			fmt.Fprintf(rw, "annihilation_redis_dropped_total{level=%q} %d\n", levelID, mirror.Dropped())
		}
	})
	mux.HandleFunc("/admin/v1/stats", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		s, err := readStats(ctx, loop)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "level_id": levelID, "stats": s, "sessions": wsSrv.Sessions()})
	})
	return mux
}

// levelHandler serves the current snapshot as schema-checked JSON.
func levelHandler(loop *level.Loop, logger *slog.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		snap, err := loop.Snapshot(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		b, err := json.Marshal(snap.Public())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := protocol.ValidateLevel(b); err != nil {
			logger.Error("snapshot failed schema validation", "tick", snap.Tick, "err", err)
			http.Error(rw, "snapshot failed validation", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(b)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
