package handlers

import (
	"net/http"

	"github.com/courtside/schedule-engine/scheduling"
	"github.com/courtside/schedule-engine/services"
)

type AutoAssignHandler struct {
	autoAssignService services.AutoAssignService
	defaults          *scheduling.PlacementRules
}

// NewAutoAssignHandler builds the handler. defaults, when non-nil, fills
// in for requests without rules; nil falls through to the engine defaults.
func NewAutoAssignHandler(as services.AutoAssignService, defaults *scheduling.PlacementRules) *AutoAssignHandler {
	return &AutoAssignHandler{autoAssignService: as, defaults: defaults}
}

func (h *AutoAssignHandler) effectiveRules(rules *scheduling.PlacementRules) *scheduling.PlacementRules {
	if rules != nil {
		return rules
	}
	return h.defaults
}

type autoAssignRequest struct {
	Rules *scheduling.PlacementRules `json:"rules"`
}

// RunHandler handles POST /versions/{versionID}/auto-assign. Omitted rules
// fall back to the engine defaults.
func (h *AutoAssignHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	input, ok := h.decodeRules(w, r)
	if !ok {
		return
	}

	result, err := h.autoAssignService.Run(r.Context(), versionID, h.effectiveRules(input.Rules))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PreviewHandler handles POST /versions/{versionID}/auto-assign/preview
func (h *AutoAssignHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	input, ok := h.decodeRules(w, r)
	if !ok {
		return
	}

	plan, err := h.autoAssignService.Preview(r.Context(), versionID, h.effectiveRules(input.Rules))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"plan": plan}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// decodeRules tolerates an empty body; both endpoints accept a bare POST.
func (h *AutoAssignHandler) decodeRules(w http.ResponseWriter, r *http.Request) (autoAssignRequest, bool) {
	var input autoAssignRequest
	if r.ContentLength == 0 {
		return input, true
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return input, false
	}
	return input, true
}
