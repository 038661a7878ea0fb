package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courtside/schedule-engine/scheduling"
	"github.com/courtside/schedule-engine/services"
)

type PolicyHandler struct {
	policyService services.PolicyService
	defaults      *scheduling.PolicyConfig
}

// NewPolicyHandler builds the handler. defaults, when non-nil, is applied
// to requests that carry no config of their own; nil falls through to the
// engine defaults.
func NewPolicyHandler(ps services.PolicyService, defaults *scheduling.PolicyConfig) *PolicyHandler {
	return &PolicyHandler{policyService: ps, defaults: defaults}
}

func (h *PolicyHandler) effectiveConfig(cfg *scheduling.PolicyConfig) *scheduling.PolicyConfig {
	if cfg != nil {
		return cfg
	}
	return h.defaults
}

type policyPreviewRequest struct {
	Day    *int                     `json:"day" validate:"omitempty,gt=0"`
	Config *scheduling.PolicyConfig `json:"config"`
}

// PreviewHandler handles POST /versions/{versionID}/policy-runs/preview.
// With a day in the body it previews that day; without one it previews
// every day independently.
func (h *PolicyHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input policyPreviewRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
		if !validateInput(w, r, input) {
			return
		}
	}

	cfg := h.effectiveConfig(input.Config)

	if input.Day != nil {
		plan, err := h.policyService.PreviewDay(r.Context(), versionID, *input.Day, cfg)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
		if err := writeJSON(w, http.StatusOK, jsonResponse{"plan": plan}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}

	plans, err := h.policyService.PreviewAllDays(r.Context(), versionID, cfg)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"plans": plans}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type policyRunDayRequest struct {
	Day    int                      `json:"day" validate:"required,gt=0"`
	Config *scheduling.PolicyConfig `json:"config"`
}

// RunDayHandler handles POST /versions/{versionID}/policy-runs/day
func (h *PolicyHandler) RunDayHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input policyRunDayRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !validateInput(w, r, input) {
		return
	}

	result, err := h.policyService.RunDay(r.Context(), versionID, input.Day, h.effectiveConfig(input.Config))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type policyRunAllRequest struct {
	Config *scheduling.PolicyConfig `json:"config"`
}

// RunAllDaysHandler handles POST /versions/{versionID}/policy-runs/all_days.
// Days run in order, each in its own transaction; when a later day fails,
// the runs committed before it stay visible in the run list.
func (h *PolicyHandler) RunAllDaysHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input policyRunAllRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	results, err := h.policyService.RunAllDays(r.Context(), versionID, h.effectiveConfig(input.Config))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListRunsHandler handles GET /versions/{versionID}/policy-runs
func (h *PolicyHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	runs, err := h.policyService.ListRuns(r.Context(), versionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"runs": runs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRunHandler handles GET /policy-runs/{runID}
func (h *PolicyHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		badRequestResponse(w, r, errors.New("missing runID in URL path"))
		return
	}

	run, err := h.policyService.GetRun(r.Context(), runID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"run": run}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ReplayHandler handles POST /policy-runs/{runID}/replay. Replay never
// mutates the schedule; a divergent outcome comes back as findings in the
// body, not as an HTTP error.
func (h *PolicyHandler) ReplayHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		badRequestResponse(w, r, errors.New("missing runID in URL path"))
		return
	}

	result, err := h.policyService.Replay(r.Context(), runID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"replay": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DiffHandler handles GET /policy-runs/diff?run_a=...&run_b=...
func (h *PolicyHandler) DiffHandler(w http.ResponseWriter, r *http.Request) {
	runA := r.URL.Query().Get("run_a")
	runB := r.URL.Query().Get("run_b")
	if runA == "" || runB == "" {
		badRequestResponse(w, r, errors.New("run_a and run_b query parameters are required"))
		return
	}

	diff, err := h.policyService.Diff(r.Context(), runA, runB)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"diff": diff}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
