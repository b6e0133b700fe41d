package main

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// kindRateLimited tags requests rejected before the pipeline runs
const kindRateLimited = "RateLimited"

// ErrorResponse is the body of every failed APR request
type ErrorResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// statusForKind maps an error kind to the HTTP status the client sees
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindConnection:
		return http.StatusServiceUnavailable
	case model.KindContractCall, model.KindPriceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes body with the given status. A body that cannot be encoded
// is answered with a 500 instead.
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode response")
		statusCode = http.StatusInternalServerError
		payload, _ = json.Marshal(ErrorResponse{
			Status: "error",
			Kind:   string(model.KindUnknown),
			Error:  "failed to encode response: " + err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(append(payload, '\n')); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}
