package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lucasreed/incognito/internal/match"
	"github.com/sirupsen/logrus"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOperationError maps a coordinator error onto the wire: stable kind,
// code and message for business errors, an opaque 500 for anything else.
func writeOperationError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	var opErr *match.Error
	if errors.As(err, &opErr) {
		writeJSON(w, opErr.HTTPStatus(), map[string]interface{}{
			"error": map[string]interface{}{
				"kind":    opErr.Kind.String(),
				"code":    opErr.Code,
				"message": opErr.Message,
			},
		})
		return
	}
	logger.Errorf("unhandled operation error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    "infrastructure",
			"code":    "internal",
			"message": "internal server error",
		},
	})
}

// decodeBody decodes a JSON request body into dst, rejecting unknown noise
// politely. An empty body decodes to the zero value.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
