package handlers

import "net/http"

const apiVersion = "1.0.0"

func HealthcheckHandler(w http.ResponseWriter, r *http.Request) {
	env := jsonResponse{
		"status": "available",
		"system_info": map[string]string{
			"version": apiVersion,
		},
	}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
