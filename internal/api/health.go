package api

import "net/http"

// health is a simple liveness endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusHandler reports index counts alongside the effective configuration.
type statusHandler struct {
	index      IndexStats
	model      string
	persistDir string
	cacheDir   string
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status             string `json:"status"`
	ChatIndexItems     int    `json:"chat_index_items"`
	GenerateIndexItems int    `json:"generate_index_items"`
	IndexFingerprint   string `json:"index_fingerprint,omitempty"`
	Model              string `json:"model"`
	PersistDir         string `json:"persist_dir"`
	CacheDir           string `json:"cache_dir"`
}

// status reports the served index generation. Before the first build the
// counts are zero; the endpoint never blocks on a rebuild.
func (h *statusHandler) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:     "OK",
		Model:      h.model,
		PersistDir: h.persistDir,
		CacheDir:   h.cacheDir,
	}

	if stats, ok := h.index.Stats(); ok {
		resp.ChatIndexItems = stats.Files
		resp.GenerateIndexItems = stats.Chunks
		resp.IndexFingerprint = stats.Fingerprint
	}

	writeJSON(w, http.StatusOK, resp)
}
