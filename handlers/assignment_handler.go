package handlers

import (
	"net/http"

	"github.com/courtside/schedule-engine/services"
)

type AssignmentHandler struct {
	assignmentService services.AssignmentService
}

func NewAssignmentHandler(as services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: as}
}

type assignRequest struct {
	MatchID int `json:"match_id" validate:"required,gt=0"`
	SlotID  int `json:"slot_id" validate:"required,gt=0"`
}

// AssignHandler handles POST /versions/{versionID}/assignments. Placing a
// match that already sits elsewhere moves it; the response carries the
// refreshed conflict report so boards can re-render warnings immediately.
func (h *AssignmentHandler) AssignHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input assignRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !validateInput(w, r, input) {
		return
	}

	result, err := h.assignmentService.Assign(r.Context(), versionID, input.MatchID, input.SlotID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UnassignHandler handles DELETE /versions/{versionID}/assignments/{matchID}
func (h *AssignmentHandler) UnassignHandler(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.assignmentService.Unassign(r.Context(), versionID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
