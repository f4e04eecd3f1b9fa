package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/server/middleware"
	"github.com/amjad-AR/ChatApp/internal/store"
)

// History endpoints read the same store the distributor writes, so a client
// that missed a live push can always catch up.

func (a *App) handleHallHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := a.store.Query(r.Context(), store.Filter{Kind: protocol.KindPublic})
	if err != nil {
		a.logger.Error("hall history query failed", slog.Any("error", err))
		writeJSONError(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *App) handlePrivateHistory(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.UserID == "" {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	otherID := r.PathValue("userID")
	if otherID == "" {
		writeJSONError(w, http.StatusBadRequest, "user ID is required")
		return
	}

	messages, err := a.store.Query(r.Context(), store.Filter{
		Kind:         protocol.KindPrivate,
		Participants: [2]string{reqMeta.UserID, otherID},
	})
	if err != nil {
		a.logger.Error("private history query failed", slog.Any("error", err))
		writeJSONError(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		v = []any{}
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
