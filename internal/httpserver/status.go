// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Introspection surface: node identity plus liveness/readiness probes.

package httpserver

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"dbgrid/internal/sqlengine"
)

func (h *handler) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	cpuCount, _ := cpu.Counts(true)

	var load float64
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		load = pct[0]
	}

	memory := map[string]any{}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		memory = map[string]any{
			"total":     vm.Total,
			"available": vm.Available,
			"used":      vm.Used,
			"percent":   vm.UsedPercent,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hostname":     hostname,
		"os":           runtime.GOOS,
		"architecture": runtime.GOARCH,
		"cpu_count":    cpuCount,
		"cpu_load":     load,
		"memory":       memory,
	})
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.deps.Coordinator.Executor.Query(ctx, sqlengine.Request{SQL: "SELECT 1", NumThreads: sqlengine.AutoThreads}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "executor": "error"})
		return
	}

	if err := diskWritable(h.deps.Config.CacheOutputBase); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "disk": "error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "executor": "ok", "disk": "ok"})
}

func diskWritable(root string) error {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(root, ".dbgrid-ready-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
