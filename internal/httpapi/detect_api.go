package httpapi

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/visionrelay/visionrelay/internal/models"
	"github.com/visionrelay/visionrelay/internal/relay"
)

// handleUpload accepts a multipart upload on the "image" field and runs it
// through the orchestrator. The size ceiling is enforced twice: at the edge by
// MaxBytesReader and again by the validator on the bytes actually read.
// Requests whose payload cannot be read at all still go through the
// orchestrator's Reject path, so they are admitted, correlated and counted
// like every other request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity := clientIdentity(r)

	// One extra MiB of slack so an oversized image reaches the validator and
	// gets the distinct too-large rejection instead of a parse error.
	edgeLimit := s.maxUploadBytes + 1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, edgeLimit)

	if err := r.ParseMultipartForm(edgeLimit); err != nil {
		status := http.StatusBadRequest
		message := "Invalid upload payload"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = "Image file too large"
		}
		s.writeReply(w, s.relaySvc.Reject(r.Context(), identity, status, message))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeReply(w, s.relaySvc.Reject(r.Context(), identity,
			http.StatusBadRequest, "No image file provided"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		s.writeReply(w, s.relaySvc.Reject(r.Context(), identity,
			http.StatusInternalServerError, "Failed to read image"))
		return
	}

	s.writeReply(w, s.relaySvc.Process(r.Context(), relay.UploadRequest{
		Raw:         raw,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Identity:    identity,
	}))
}

// writeReply sends a terminal orchestrator reply, attaching Retry-After when
// the request was rate limited.
func (s *Server) writeReply(w http.ResponseWriter, reply relay.Reply) {
	if reply.RetryAfter > 0 {
		seconds := int(reply.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	s.writeJSON(w, reply.Status, reply.Response)
}

// handleGetResult replays a recent request's response from the transient
// result store. Uses the endpoint-default rate windows, not the upload
// override.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if decision := s.defaultLimiter.Admit(r.Context(), clientIdentity(r)); !decision.Allowed {
		seconds := int(decision.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		s.writeJSON(w, http.StatusTooManyRequests, models.ClientResponse{
			Success: false,
			Error:   "Rate limit exceeded, try again later",
		})
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/api/results/")
	if requestID == "" || strings.Contains(requestID, "/") {
		s.writeJSON(w, http.StatusBadRequest, models.ClientResponse{
			Success: false,
			Error:   "Invalid request id",
		})
		return
	}

	resp, ok := s.store.Get(r.Context(), requestID)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, models.ClientResponse{
			Success:   false,
			RequestID: requestID,
			Error:     "Result not found or expired",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// clientIdentity derives the rate-limit identity from the network origin:
// the first X-Forwarded-For hop when present, else the remote address host.
func clientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
