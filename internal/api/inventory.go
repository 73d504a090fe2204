package api

import (
	"net/http"
)

// handleListInventory returns every device the daemon has ever observed,
// from the persistent inventory. Unlike /devices this includes devices not
// present in the current snapshots; first_seen/last_seen bound when each
// one was observable.
func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	if s.inventory == nil {
		writeUnavailable(w, "inventory store is not configured")
		return
	}

	records, err := s.inventory.List(r.Context())
	if err != nil {
		s.logger.Error("inventory list failed", "error", err)
		writeInternalError(w, "failed to list inventory")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"inventory": records, "count": len(records)})
}
