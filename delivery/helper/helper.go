package helper

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	types "github.com/desain-gratis/congestion/types/http"
)

func SetError(w http.ResponseWriter, body types.Error, code int) {
	errMessage := types.SerializeError(&types.CommonError{
		Errors: []types.Error{body},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(errMessage)
}

// HandleError logs err, if any, and replies with a single error body
func HandleError(w http.ResponseWriter, code, msg string, httpStatus int, err error) {
	if err != nil {
		log.Err(err).Msgf("failed to serve request")
	}

	SetError(w, types.Error{Message: msg, Code: code, HTTPCode: httpStatus}, httpStatus)
}

// SetSuccess wraps result in a CommonResponse
func SetSuccess(w http.ResponseWriter, result any) {
	payload, err := json.Marshal(&types.CommonResponse{
		Success: result,
	})
	if err != nil {
		HandleError(w, "SERVER_ERROR", "server encounter an error", http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
