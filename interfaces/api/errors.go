package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/felixgeelhaar/narcache/application/upload"
	"github.com/felixgeelhaar/narcache/domain/hash"
	"github.com/felixgeelhaar/narcache/domain/index"
	"github.com/felixgeelhaar/narcache/domain/narinfo"
	"github.com/felixgeelhaar/narcache/domain/signature"
	"github.com/felixgeelhaar/narcache/domain/storage"
)

// apiError is one error entry in a JSON error response.
type apiError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Errors []apiError `json:"errors"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(errorResponse{
		Errors: []apiError{{
			Status: http.StatusText(status),
			Title:  http.StatusText(status),
			Detail: detail,
			Code:   code,
		}},
	})
}

// writeDomainError maps domain errors to HTTP responses. Not-found is
// a normal outcome; malformed or untrusted input is the client's
// fault; everything else is a server-side failure.
func writeDomainError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}

	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, index.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such artifact")
	case errors.Is(err, narinfo.ErrBadNarInfo),
		errors.Is(err, narinfo.ErrUnknownCompression),
		errors.Is(err, hash.ErrMalformed),
		errors.Is(err, hash.ErrUnknownAlgorithm),
		errors.Is(err, hash.ErrWrongDigestLength),
		errors.Is(err, hash.ErrInvalidBase32),
		errors.Is(err, signature.ErrMalformed),
		errors.Is(err, upload.ErrMissingURL),
		errors.Is(err, storage.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, signature.ErrNoValidSignature):
		writeError(w, http.StatusBadRequest, "signature_invalid", err.Error())
	case errors.Is(err, index.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
