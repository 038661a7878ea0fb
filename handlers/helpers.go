package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/courtside/schedule-engine/services"
)

type jsonResponse map[string]interface{}

var validate = validator.New()

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	if err != nil {
		return err
	}

	return nil
}

// errorResponse writes the error envelope. Every error carries a stable
// machine-readable code next to the human message so clients can branch
// without parsing prose.
func errorResponse(w http.ResponseWriter, r *http.Request, status int, code string, message interface{}) {
	env := jsonResponse{"code": code, "error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "unhandled request error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	errorResponse(w, r, http.StatusInternalServerError, "internal_error",
		"the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, "bad_request", err.Error())
}

func failedValidationResponse(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	errorResponse(w, r, http.StatusUnprocessableEntity, "validation_failed", fields)
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	errorResponse(w, r, http.StatusNotFound, "not_found", "the requested resource could not be found")
}

// validateInput runs struct-tag validation and writes the 422 response on
// failure. Returns true when the input is clean.
func validateInput(w http.ResponseWriter, r *http.Request, input interface{}) bool {
	err := validate.Struct(input)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		failedValidationResponse(w, r, fields)
		return false
	}
	badRequestResponse(w, r, err)
	return false
}

func getIDFromURL(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return 0, fmt.Errorf("missing %s in URL path", param)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", param, raw)
	}
	return id, nil
}

// mapServiceErrorToHTTP translates service sentinels into status codes and
// stable error codes. Anything unrecognized is a 500.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrVersionNotFound):
		errorResponse(w, r, http.StatusNotFound, "version_not_found", err.Error())
	case errors.Is(err, services.ErrMatchNotFound):
		errorResponse(w, r, http.StatusNotFound, "match_not_found", err.Error())
	case errors.Is(err, services.ErrSlotNotFound):
		errorResponse(w, r, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, services.ErrAssignmentMissing):
		errorResponse(w, r, http.StatusNotFound, "assignment_missing", err.Error())
	case errors.Is(err, services.ErrRunNotFound):
		errorResponse(w, r, http.StatusNotFound, "run_not_found", err.Error())
	case errors.Is(err, services.ErrLockMissing):
		errorResponse(w, r, http.StatusNotFound, "lock_not_found", err.Error())

	case errors.Is(err, services.ErrVersionFinalized):
		errorResponse(w, r, http.StatusConflict, "version_finalized", err.Error())
	case errors.Is(err, services.ErrSlotOccupied):
		errorResponse(w, r, http.StatusConflict, "slot_occupied", err.Error())
	case errors.Is(err, services.ErrMatchPinnedElsewhere):
		errorResponse(w, r, http.StatusConflict, "match_pinned_elsewhere", err.Error())
	case errors.Is(err, services.ErrSlotReservedForPin):
		errorResponse(w, r, http.StatusConflict, "slot_reserved", err.Error())
	case errors.Is(err, services.ErrPinConflictsAssignment):
		errorResponse(w, r, http.StatusConflict, "pin_conflicts_assignment", err.Error())
	case errors.Is(err, services.ErrMatchAlreadyPinned):
		errorResponse(w, r, http.StatusConflict, "match_already_pinned", err.Error())
	case errors.Is(err, services.ErrSlotAlreadyBlocked):
		errorResponse(w, r, http.StatusConflict, "slot_already_blocked", err.Error())
	case errors.Is(err, services.ErrRunSignatureInvalid):
		errorResponse(w, r, http.StatusConflict, "replay_mismatch", err.Error())

	case errors.Is(err, services.ErrValidationFailed):
		errorResponse(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, services.ErrRunVersionMismatch):
		errorResponse(w, r, http.StatusBadRequest, "run_version_mismatch", err.Error())

	case errors.Is(err, services.ErrMatchNotSchedulable):
		errorResponse(w, r, http.StatusUnprocessableEntity, "match_not_schedulable", err.Error())
	case errors.Is(err, services.ErrSlotInactive):
		errorResponse(w, r, http.StatusUnprocessableEntity, "slot_inactive", err.Error())
	case errors.Is(err, services.ErrSlotBlocked):
		errorResponse(w, r, http.StatusUnprocessableEntity, "slot_blocked", err.Error())
	case errors.Is(err, services.ErrDurationExceedsSlot):
		errorResponse(w, r, http.StatusUnprocessableEntity, "duration_exceeds_slot", err.Error())
	case errors.Is(err, services.ErrRestConstraint):
		errorResponse(w, r, http.StatusUnprocessableEntity, "rest_constraint", err.Error())
	case errors.Is(err, services.ErrStageOrder):
		errorResponse(w, r, http.StatusUnprocessableEntity, "stage_order", err.Error())
	case errors.Is(err, services.ErrTeamDailyLimit):
		errorResponse(w, r, http.StatusUnprocessableEntity, "team_daily_limit", err.Error())
	case errors.Is(err, services.ErrNoSlotsDefined):
		errorResponse(w, r, http.StatusUnprocessableEntity, "no_slots_defined", err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}
