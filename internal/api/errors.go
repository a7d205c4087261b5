package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/junction-api/junction/internal/jsonapierr"
)

type errorDocument struct {
	Errors []*jsonapierr.ErrorObject `json:"errors"`
}

// RenderError writes a JSON:API error document. Errors carrying their own
// document form render as-is; anything else becomes an opaque 500.
func RenderError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var objects []*jsonapierr.ErrorObject
	var documenter jsonapierr.Documenter
	if errors.As(err, &documenter) {
		objects = documenter.Objects()
	}

	status := http.StatusInternalServerError
	if len(objects) > 0 {
		status = jsonapierr.StatusCode(objects)
	} else {
		if logger != nil {
			logger.Error("unhandled request error", zap.Error(err))
		}
		objects = []*jsonapierr.ErrorObject{{
			Status: strconv.Itoa(http.StatusInternalServerError),
			Title:  "Internal Server Error",
		}}
	}

	// Marshal first so a failure never leaves a partial response behind
	data, marshalErr := json.Marshal(errorDocument{Errors: objects})
	if marshalErr != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	w.Write(data)
}

// render writes any marshaled document, marshal-first.
func render(w http.ResponseWriter, logger *zap.Logger, status int, doc interface{}) {
	data, err := json.Marshal(doc)
	if err != nil {
		RenderError(w, logger, err)
		return
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	w.Write(data)
}
