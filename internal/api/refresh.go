package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// RefreshResult is the response for a synchronous refresh that reached a
// successful terminal cycle.
type RefreshResult struct {
	Category string         `json:"category"`
	Sequence uint64         `json:"sequence"`
	Taken    time.Time      `json:"taken"`
	Devices  int            `json:"devices"`
	Stats    CategoryStatus `json:"stats"`
}

// handleRefreshCategory triggers a refresh cycle for one category and waits
// for its terminal result under the request context.
//
// This is the one route where a gateway failure propagates synchronously: a
// cycle give-up returns 502 carrying the classified failure kind, and a
// caller deadline returns 504 while the cycle keeps running for the other
// joiners. Success returns the fresh cycle's statistics.
func (s *Server) handleRefreshCategory(w http.ResponseWriter, r *http.Request) {
	catStr := chi.URLParam(r, "category")
	cat := device.Category(catStr)
	if !cat.Valid() {
		writeNotFound(w, fmt.Sprintf("unknown category %q", catStr))
		return
	}

	co, err := s.manager.Coordinator(cat)
	if err != nil {
		writeNotFound(w, fmt.Sprintf("category %q is not polled", catStr))
		return
	}

	err = co.Refresh(r.Context())

	// A cycle give-up may itself wrap a deadline error from the gateway's
	// HTTP stack, so the give-up check runs before the caller-timeout one.
	var cerr *poll.CycleError
	switch {
	case err == nil:

	case errors.As(err, &cerr):
		writeError(w, http.StatusBadGateway, string(poll.Classify(cerr)), cerr.Error())
		return

	case errors.Is(err, poll.ErrStopped):
		writeUnavailable(w, "poller is shutting down")
		return

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeWaitTimeout,
			"refresh did not finish before the request deadline; the cycle continues in the background")
		return

	default:
		writeInternalError(w, err.Error())
		return
	}

	snap := co.Snapshot()
	writeJSON(w, http.StatusOK, RefreshResult{
		Category: string(cat),
		Sequence: snap.Seq(),
		Taken:    snap.Taken().UTC(),
		Devices:  snap.Len(),
		Stats:    categoryStatus(co.Stats()),
	})
}
