package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/courtside/schedule-engine/scheduling"
	"github.com/courtside/schedule-engine/services"
)

type ReportHandler struct {
	reportService services.ReportService
	thresholds    *scheduling.QualityThresholds
}

// NewReportHandler builds the handler. thresholds, when non-nil, becomes
// the baseline for quality reports; nil falls through to the engine
// defaults.
func NewReportHandler(rs services.ReportService, thresholds *scheduling.QualityThresholds) *ReportHandler {
	return &ReportHandler{reportService: rs, thresholds: thresholds}
}

// GridHandler handles GET /versions/{versionID}/grid
func (h *ReportHandler) GridHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	grid, err := h.reportService.GridSnapshot(r.Context(), versionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"grid": grid}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConflictReportHandler handles GET /versions/{versionID}/report with
// optional event_id and skip_team_conflicts query parameters.
func (h *ReportHandler) ConflictReportHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var opts scheduling.ReportOptions
	query := r.URL.Query()
	if raw := query.Get("event_id"); raw != "" {
		eventID, err := strconv.Atoi(raw)
		if err != nil || eventID <= 0 {
			badRequestResponse(w, r, errors.New("invalid event_id query parameter"))
			return
		}
		opts.EventID = &eventID
	}
	if raw := query.Get("skip_team_conflicts"); raw != "" {
		skip, err := strconv.ParseBool(raw)
		if err != nil {
			badRequestResponse(w, r, errors.New("invalid skip_team_conflicts query parameter"))
			return
		}
		opts.SkipTeamConflicts = skip
	}

	report, err := h.reportService.ConflictReport(r.Context(), versionID, opts)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"report": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// QualityReportHandler handles GET /versions/{versionID}/quality. Threshold
// query parameters override the defaults one at a time.
func (h *ReportHandler) QualityReportHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	thresholds := h.thresholds
	query := r.URL.Query()
	if query.Get("min_utilization") != "" || query.Get("max_daily_imbalance") != "" {
		t := scheduling.DefaultQualityThresholds()
		if h.thresholds != nil {
			t = *h.thresholds
		}
		if raw := query.Get("min_utilization"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 100 {
				badRequestResponse(w, r, errors.New("invalid min_utilization query parameter"))
				return
			}
			t.MinUtilization = v
		}
		if raw := query.Get("max_daily_imbalance"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				badRequestResponse(w, r, errors.New("invalid max_daily_imbalance query parameter"))
				return
			}
			t.MaxDailyImbalance = v
		}
		thresholds = &t
	}

	report, err := h.reportService.QualityReport(r.Context(), versionID, thresholds)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"quality": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
