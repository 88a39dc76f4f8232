package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/narcache/infrastructure/logging"
)

// narInfoContentType is the media type binary cache clients expect
// for metadata records.
const narInfoContentType = "text/x-nix-narinfo"

// narSuffixes are the artifact file extensions the nar namespace
// accepts; the extension encodes the compression.
var narSuffixes = []string{".nar.xz", ".nar.bz2", ".nar.gz", ".nar.zst", ".nar"}

func hasNarSuffix(name string) bool {
	for _, suffix := range narSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return true
		}
	}
	return false
}

// handleCacheInfo advertises the cache parameters clients use to
// decide whether and how eagerly to query this cache.
func (s *Server) handleCacheInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "StoreDir: %s\nWantMassQuery: 1\nPriority: %d\n", s.config.StoreDir, s.config.Priority)
}

// handleGetNarInfo serves a published metadata record.
func (s *Server) handleGetNarInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	id, ok := strings.CutSuffix(name, ".narinfo")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "not_found", "no such path")
		return
	}

	text, err := s.config.Coordinator.GetNarInfo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", narInfoContentType)
	_, _ = io.WriteString(w, text)
}

// handlePutNarInfo accepts the metadata half of an upload.
func (s *Server) handlePutNarInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	id, ok := strings.CutSuffix(name, ".narinfo")
	if !ok || id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "metadata must be uploaded as <name>.narinfo")
		return
	}

	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}

	text, err := io.ReadAll(r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.config.Coordinator.PutNarInfo(r.Context(), id, string(text)); err != nil {
		logging.Warn().
			Add(logging.RecordID(id)).
			Add(logging.ErrorField(err)).
			Msg("metadata upload rejected")
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// handleGetNar streams a published artifact.
func (s *Server) handleGetNar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !hasNarSuffix(name) {
		writeError(w, http.StatusNotFound, "not_found", "no such object")
		return
	}

	reader, err := s.config.Coordinator.GetNar(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, reader)
}

// handleStatNar reports artifact existence without a body.
func (s *Server) handleStatNar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !hasNarSuffix(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	exists, err := s.config.Coordinator.StatNar(r.Context(), name)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handlePutNar accepts the bytes half of an upload.
func (s *Server) handlePutNar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !hasNarSuffix(name) {
		writeError(w, http.StatusBadRequest, "bad_request", "artifact name must carry a nar extension")
		return
	}

	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}

	if err := s.config.Coordinator.PutNar(r.Context(), name, r.Body); err != nil {
		logging.Warn().
			Add(logging.Key(name)).
			Add(logging.ErrorField(err)).
			Msg("artifact upload failed")
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}
