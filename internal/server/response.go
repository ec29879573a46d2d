package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Residue []string `json:"residue,omitempty"`
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind fserr.Kind) int {
	switch kind {
	case fserr.InvalidPath:
		return http.StatusBadRequest
	case fserr.NotAuthenticated:
		return http.StatusUnauthorized
	case fserr.NotAllowed:
		return http.StatusForbidden
	case fserr.ObjectNotFound:
		return http.StatusNotFound
	case fserr.PartialFailure:
		return http.StatusConflict
	case fserr.InvalidContent:
		return http.StatusUnprocessableEntity
	case fserr.TransportFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("Failed to encode response")
	}
}

// writeError renders err. Messages of classified errors are shown as is;
// anything else is reported as an internal error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := fserr.KindOf(err)
	resp := ErrorResponse{Kind: kind.String(), Residue: fserr.ResidueOf(err)}

	var fe *fserr.Error
	switch {
	case errors.As(err, &fe) && fe.Msg != "":
		resp.Error = fe.Msg
	case kind != fserr.Unknown:
		resp.Error = fserr.Message(kind)
	default:
		resp.Error = "internal error"
		s.log.WithError(err).Error("Unclassified API error")
	}
	s.writeJSON(w, StatusFor(kind), resp)
}

// writeBadRequest reports a malformed request that never reached the
// filesystem.
func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Kind: "bad_request"})
}
