package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/courtside/schedule-engine/services"
)

type VersionHandler struct {
	versionService services.VersionService
}

func NewVersionHandler(vs services.VersionService) *VersionHandler {
	return &VersionHandler{versionService: vs}
}

type createVersionRequest struct {
	TournamentID int `json:"tournament_id" validate:"required,gt=0"`
}

// CreateHandler handles POST /versions
func (h *VersionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var input createVersionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !validateInput(w, r, input) {
		return
	}

	version, err := h.versionService.Create(r.Context(), input.TournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"version": version}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler handles GET /versions/{versionID}
func (h *VersionHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	version, err := h.versionService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"version": version}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler handles GET /versions?tournament_id=N
func (h *VersionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tournament_id")
	tournamentID, err := strconv.Atoi(raw)
	if err != nil || tournamentID <= 0 {
		badRequestResponse(w, r, errors.New("tournament_id query parameter is required and must be positive"))
		return
	}

	versions, err := h.versionService.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"versions": versions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CloneHandler handles POST /versions/{versionID}/clone
func (h *VersionHandler) CloneHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	clone, err := h.versionService.Clone(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"version": clone}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinalizeHandler handles POST /versions/{versionID}/finalize
func (h *VersionHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	version, err := h.versionService.Finalize(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"version": version}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type rebuildSlotsRequest struct {
	Slots []services.SlotInput `json:"slots"`
}

// RebuildSlotsHandler handles PUT /versions/{versionID}/slots. The body is
// the full desired slot grid; an empty list clears the version.
func (h *VersionHandler) RebuildSlotsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input rebuildSlotsRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Slots == nil {
		badRequestResponse(w, r, errors.New("slots is required"))
		return
	}

	result, err := h.versionService.RebuildSlots(r.Context(), id, input.Slots)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type importMatchesRequest struct {
	Matches []services.MatchInput `json:"matches"`
}

// ImportMatchesHandler handles PUT /versions/{versionID}/matches. Same
// full-replacement contract as the slot grid.
func (h *VersionHandler) ImportMatchesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input importMatchesRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Matches == nil {
		badRequestResponse(w, r, errors.New("matches is required"))
		return
	}

	result, err := h.versionService.ImportMatches(r.Context(), id, input.Matches)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
