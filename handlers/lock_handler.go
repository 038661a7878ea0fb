package handlers

import (
	"net/http"

	"github.com/courtside/schedule-engine/services"
)

type LockHandler struct {
	lockService services.LockService
}

func NewLockHandler(ls services.LockService) *LockHandler {
	return &LockHandler{lockService: ls}
}

type pinMatchRequest struct {
	MatchID int `json:"match_id" validate:"required,gt=0"`
	SlotID  int `json:"slot_id" validate:"required,gt=0"`
}

// PinMatchHandler handles POST /versions/{versionID}/match-locks
func (h *LockHandler) PinMatchHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input pinMatchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !validateInput(w, r, input) {
		return
	}

	lock, err := h.lockService.PinMatch(r.Context(), versionID, input.MatchID, input.SlotID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match_lock": lock}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UnpinMatchHandler handles DELETE /versions/{versionID}/match-locks/{matchID}
func (h *LockHandler) UnpinMatchHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.lockService.UnpinMatch(r.Context(), versionID, matchID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type blockSlotRequest struct {
	SlotID int     `json:"slot_id" validate:"required,gt=0"`
	Reason *string `json:"reason"`
}

// BlockSlotHandler handles POST /versions/{versionID}/slot-locks
func (h *LockHandler) BlockSlotHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input blockSlotRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !validateInput(w, r, input) {
		return
	}

	lock, err := h.lockService.BlockSlot(r.Context(), versionID, input.SlotID, input.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"slot_lock": lock}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UnblockSlotHandler handles DELETE /versions/{versionID}/slot-locks/{slotID}
func (h *LockHandler) UnblockSlotHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	slotID, err := getIDFromURL(r, "slotID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.lockService.UnblockSlot(r.Context(), versionID, slotID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListLocksHandler handles GET /versions/{versionID}/locks
func (h *LockHandler) ListLocksHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	locks, err := h.lockService.ListLocks(r.Context(), versionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"locks": locks}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
