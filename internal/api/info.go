package api

import "net/http"

// infoResponse is the JSON response for GET /v1/info.
type infoResponse struct {
	Version      string `json:"version"`
	BaseURL      string `json:"base_url"`
	BaseMediaURL string `json:"base_media_url"`
	Format       string `json:"format"`
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, infoResponse{
		Version:      s.client.Version(),
		BaseURL:      s.client.BaseURL(),
		BaseMediaURL: s.client.BaseMediaURL(),
		Format:       s.client.Output(),
	})
}
