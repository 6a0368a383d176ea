package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/defispring/allocation-merkle-go/pkg/merkle"
	"github.com/defispring/allocation-merkle-go/pkg/snapshot"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// handleGetCalldata handles GET /get_calldata
func (s *Server) handleGetCalldata(w http.ResponseWriter, r *http.Request) {
	address, round, ok := s.addressAndRound(w, r)
	if !ok {
		return
	}

	calldata, err := s.repo.Calldata(round, address)
	if err != nil {
		s.writeQueryError(w, "get_calldata", err)
		return
	}
	writeJSON(w, http.StatusOK, calldata)
}

// handleGetAllocationAmount handles GET /get_allocation_amount
func (s *Server) handleGetAllocationAmount(w http.ResponseWriter, r *http.Request) {
	address, round, ok := s.addressAndRound(w, r)
	if !ok {
		return
	}

	amount, err := s.repo.AllocationAmount(round, address)
	if err != nil {
		s.writeQueryError(w, "get_allocation_amount", err)
		return
	}
	writeJSON(w, http.StatusOK, amount.Hex())
}

// handleGetRoot handles GET /get_root
func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.repo.Root(parseRound(r))
	if err != nil {
		s.writeQueryError(w, "get_root", err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// handleGetRounds handles GET /get_rounds
func (s *Server) handleGetRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.repo.Rounds()
	if err != nil {
		s.writeQueryError(w, "get_rounds", err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

// handleHealth reports whether a snapshot is being served.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.repo.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"snapshotId":  snap.ID,
		"createdAt":   snap.CreatedAt,
		"rounds":      len(snap.Rounds),
		"latestRound": snap.LatestRound(),
	})
}

// handleAdminRefresh handles POST /admin/refresh
func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subject, err := s.admin.VerifyRequest(r)
	if err != nil {
		s.logger.Sugar().Warnw("Rejected admin request", "remote", r.RemoteAddr, "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.logger.Sugar().Infow("Admin refresh requested", "subject", subject)

	snap, err := s.repo.Refresh(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, snapshot.ErrRepositoryClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, fmt.Sprintf("refresh failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, types.RefreshResult{
		SnapshotID:  snap.ID,
		Rounds:      len(snap.Rounds),
		LatestRound: snap.LatestRound(),
	})
}

func (s *Server) addressAndRound(w http.ResponseWriter, r *http.Request) (string, uint8, bool) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return "", 0, false
	}

	return address, parseRound(r), true
}

// parseRound reads the optional round parameter. A missing value, or one
// that is not a number in 0..255, selects the latest round.
func parseRound(r *http.Request) uint8 {
	round, err := strconv.ParseUint(r.URL.Query().Get("round"), 10, 8)
	if err != nil {
		return 0
	}
	return uint8(round)
}

// writeQueryError maps repository errors to status codes. Lookup failures
// are client errors; anything unexpected is logged and hidden.
func (s *Server) writeQueryError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, merkle.ErrInvalidAddress),
		errors.Is(err, merkle.ErrAddressNotFound),
		errors.Is(err, snapshot.ErrNoRoundData),
		errors.Is(err, snapshot.ErrNoSnapshot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, snapshot.ErrRepositoryClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Sugar().Errorw("Query failed", "endpoint", endpoint, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
