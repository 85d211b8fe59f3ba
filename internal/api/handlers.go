package api

import (
	"encoding/json"
	"net/http"

	"github.com/JakeFAU/readerglass/internal/settings"
	"github.com/JakeFAU/readerglass/internal/tracker"
)

// progressDTO is the wire shape of the tracker status.
type progressDTO struct {
	State        string `json:"state"`
	BookID       string `json:"book_id,omitempty"`
	ChapterIndex int    `json:"chapter_index"`
	ChapterCount int    `json:"chapter_count"`
	TurningPages int    `json:"turning_pages"`
	Progress     int    `json:"progress"`
}

func toProgressDTO(st tracker.Status) progressDTO {
	return progressDTO{
		State:        st.State,
		BookID:       st.BookID,
		ChapterIndex: st.ChapterIndex,
		ChapterCount: st.ChapterCount,
		TurningPages: st.TurningPages,
		Progress:     st.Progress,
	}
}

// getProgress handles GET /v1/progress. It always succeeds; an idle tracker
// reports the uninitialized state.
func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "tracker unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(s.tracker.Status()))
}

type settingsResponse struct {
	Settings settings.Snapshot `json:"settings"`
	Version  uint64            `json:"version"`
}

// getSettings handles GET /v1/settings.
func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings unavailable")
		return
	}
	snap, version := s.settings.Snapshot()
	writeJSON(w, http.StatusOK, settingsResponse{Settings: snap, Version: version})
}

// putSettings handles PUT /v1/settings. The body is a partial record merged
// shallowly on top of the current one; unknown keys are dropped. Local
// mutation always succeeds and returns the stamped record.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings unavailable")
		return
	}
	var partial settings.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	snap, version := s.settings.Mutate(partial)
	writeJSON(w, http.StatusOK, settingsResponse{Settings: snap, Version: version})
}

type externalSettingsRequest struct {
	Data    settings.Snapshot `json:"data"`
	Version uint64            `json:"version"`
}

// postExternalSettings handles POST /v1/settings/external: a full snapshot
// pushed from another view, arbitrated by the optimistic version. A stale
// snapshot is rejected with 409 and the current version so the caller can
// re-pull and retry.
func (s *Server) postExternalSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings unavailable")
		return
	}
	var req externalSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "missing data")
		return
	}
	if !s.settings.ApplyExternal(req.Data, req.Version) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "stale snapshot",
			"version": s.settings.Version(),
		})
		return
	}
	snap, version := s.settings.Snapshot()
	writeJSON(w, http.StatusOK, settingsResponse{Settings: snap, Version: version})
}
