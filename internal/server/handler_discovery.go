package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "keysweep API",
		Version:     "v1",
		Description: "Read-only status of a running keyspace search",
		Endpoints: []endpointInfo{
			{"/api/v1/status", []string{"GET"}, "Coordinator phase, cursor and counters"},
			{"/api/v1/workers", []string{"GET"}, "Active worker slots with their chunks and progress"},
			{"/api/v1/chunks", []string{"GET"}, "Chunk ledger; ?lost=true lists incomplete chunks, ?run= filters by run"},
			{"/api/v1/runs", []string{"GET"}, "Run history"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/", []string{"GET"}, "HTML dashboard, reloads every 2s"},
			{"/chunks", []string{"GET"}, "HTML chunk ledger; ?lost=true, ?run=, ?page="},
		},
	})
}
