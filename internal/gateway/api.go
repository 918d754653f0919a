// ABOUTME: HTTP handlers for health probes and the agent listing API
// ABOUTME: Provides GET /health, GET /health/ready and GET /api/agents

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AgentInfoResponse is the JSON response element for GET /api/agents.
type AgentInfoResponse struct {
	ID         string    `json:"id"`
	Connected  bool      `json:"connected"`
	Address    string    `json:"address,omitempty"`
	LastOnline time.Time `json:"last_online"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the server has at least one agent connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n := g.registry.Count()
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", n)
}

// handleListAgents handles GET /api/agents requests.
// It returns a JSON array of every known agent, ordered by id.
// Supports optional ?connected=true to return only live agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("listing agents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	onlyConnected := r.URL.Query().Get("connected") == "true"

	response := make([]AgentInfoResponse, 0, len(agents))
	for _, a := range agents {
		if onlyConnected && !a.Connected {
			continue
		}
		response = append(response, AgentInfoResponse{
			ID:         a.ID,
			Connected:  a.Connected,
			Address:    a.Address,
			LastOnline: a.LastOnline.UTC(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
