// Package api exposes the controller and benchmark results over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/lac1"
	"github.com/smac-tools/stagebench/internal/monitoring"
	"github.com/smac-tools/stagebench/internal/report"
)

type Server struct {
	ctrl *lac1.Controller
	db   *db.DB
}

// NewServer builds the HTTP surface over a controller and results database.
// With a database present, every transaction executed on the controller's
// session is recorded to the command log, including moves, homing, and
// initialization traffic. Logging failures must not fail the command itself.
func NewServer(ctrl *lac1.Controller, database *db.DB) *Server {
	if database != nil {
		ctrl.Session().SetCommandHook(func(command string, response []string) {
			if err := database.RecordCommand(command, strings.Join(response, "\n")); err != nil {
				monitoring.Logf("api: failed to record command %q: %v", command, err)
			}
		})
	}
	return &Server{
		ctrl: ctrl,
		db:   database,
	}
}

// ServeMux returns the HTTP routes for the daemon.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/move", s.moveHandler)
	mux.HandleFunc("/api/home", s.homeHandler)
	mux.HandleFunc("/api/runs", s.listRunsHandler)
	mux.HandleFunc("/api/runs/fastest", s.fastestRunHandler)
	mux.HandleFunc("/api/runs/chart", s.runsChartHandler)
	mux.HandleFunc("/debug/tail", s.tailHandler)
	mux.HandleFunc("/", s.rootHandler)
	return mux
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("stagebench: LAC-1 stage controller\n"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

type statusResponse struct {
	Stage      string  `json:"stage"`
	TravelMM   float64 `json:"travel_mm"`
	PositionMM float64 `json:"position_mm"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pos, err := s.ctrl.PositionMM(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read position: %v", err), http.StatusBadGateway)
		return
	}

	s.writeJSON(w, statusResponse{
		Stage:      s.ctrl.Profile().GetName(),
		TravelMM:   s.ctrl.Profile().GetTravelMM(),
		PositionMM: pos,
	})
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.FormValue("command"))
	if raw == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	cmd, ok := lac1.ParseRaw(raw)
	if !ok {
		http.Error(w, "Malformed command", http.StatusBadRequest)
		return
	}
	if !lac1.IsAllowedCommand(cmd.Mnemonic) {
		http.Error(w, fmt.Sprintf("Command %q is not allowed", cmd.Mnemonic), http.StatusForbidden)
		return
	}

	lines, err := s.ctrl.Session().Exec(r.Context(), cmd)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to send command: %v", err), http.StatusBadGateway)
		return
	}

	s.writeJSON(w, map[string]any{"command": raw, "response": lines})
}

func (s *Server) moveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	posMM, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("position_mm")), 64)
	if err != nil {
		http.Error(w, "Invalid position_mm", http.StatusBadRequest)
		return
	}

	if err := s.ctrl.MoveAbsoluteMM(r.Context(), posMM, true); err != nil {
		var rangeErr *lac1.ErrOutOfRange
		if errors.As(err, &rangeErr) {
			http.Error(w, rangeErr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("Move failed: %v", err), http.StatusBadGateway)
		return
	}

	io.WriteString(w, fmt.Sprintf("Moved to %.3f mm", posMM))
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ctrl.Home(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("Homing failed: %v", err), http.StatusBadGateway)
		return
	}
	io.WriteString(w, "Homed")
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "No results database", http.StatusNotFound)
		return
	}

	runs, err := s.db.Runs()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query runs: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, runs)
}

func (s *Server) fastestRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "No results database", http.StatusNotFound)
		return
	}

	best, err := s.db.FastestRun()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query runs: %v", err), http.StatusInternalServerError)
		return
	}
	if best == nil {
		http.Error(w, "No completed runs", http.StatusNotFound)
		return
	}
	s.writeJSON(w, best)
}

func (s *Server) runsChartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "No results database", http.StatusNotFound)
		return
	}

	runs, err := s.db.Runs()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query runs: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderRunsChart(w, runs); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
	}
}

// tailHandler issues Server-Sent Events for every raw line read from the
// controller.
func (s *Server) tailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.ctrl.Session().Subscribe()
	defer s.ctrl.Session().Unsubscribe(id)

	// initial ping to establish the stream
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
