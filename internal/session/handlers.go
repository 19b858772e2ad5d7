package session

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-splitter/internal/split"
)

const (
	// maxUploadSize handles high-resolution phone photos
	maxUploadSize = int64(50 << 20)

	maxJSONBodySize = int64(1 << 20)

	fileTooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."
)

// statusFor maps an error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrScannerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrScanFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrInvalidPhase),
		errors.Is(err, split.ErrNoRemainingQuantity):
		return http.StatusConflict
	case errors.Is(err, split.ErrInvalidLineItem),
		errors.Is(err, split.ErrInvalidRoster),
		errors.Is(err, split.ErrEmptyReceipt),
		errors.Is(err, split.ErrUnknownItem),
		errors.Is(err, split.ErrUnknownParticipant),
		errors.Is(err, split.ErrInvalidAssignment):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeErrorMessage writes a {"error": message} response
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to a status and writes it. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Internal error", "error", err)
		message = "Internal server error"
	}
	writeErrorMessage(w, status, message)
}

// decodeJSON reads a size-limited JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize)).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// lookup resolves the {id} path value to a session, writing the error
// response when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Session ID required")
		return nil, false
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleCreateSession starts a new session
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// handleGetSession returns a session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteSession deletes a session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// detectContentType falls back to the file extension when the part has no
// Content-Type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt scans an uploaded receipt into the session
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || err.Error() == "http: request body too large" {
			errorMsg = fileTooLargeMessage
		}
		writeErrorMessage(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeErrorMessage(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeErrorMessage(w, http.StatusBadRequest, fileTooLargeMessage)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeErrorMessage(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)
	if _, err := sess.Ingest(r.Context(), data, contentType); err != nil {
		slog.Error("Error ingesting receipt", "session_id", sess.ID(), "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

type ingestLine struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
}

type ingestLinesRequest struct {
	Lines []ingestLine `json:"lines"`
}

// rawLines converts the request lines, skipping lines without a price the
// same way scanned lines are skipped.
func (req ingestLinesRequest) rawLines() []split.RawLine {
	lines := make([]split.RawLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Price == nil {
			continue
		}
		lines = append(lines, split.RawLine{Name: line.Name, UnitPrice: *line.Price})
	}
	return lines
}

// handleIngestLines ingests lines supplied directly by the client
func (s *Server) handleIngestLines(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req ingestLinesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lines := req.rawLines()
	if skipped := len(req.Lines) - len(lines); skipped > 0 {
		slog.Debug("Skipped lines without a price", "session_id", sess.ID(), "skipped", skipped)
	}

	if _, err := sess.IngestLines(lines); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

type rosterRequest struct {
	Names []string `json:"names"`
}

// handleSetRoster fixes the participants of a session
func (s *Server) handleSetRoster(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req rosterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := sess.SetRoster(req.Names); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type assignRequest struct {
	ItemID         string   `json:"item_id"`
	ParticipantIDs []string `json:"participant_ids"`
	Split          bool     `json:"split"`
}

type assignResponse struct {
	ItemID            string `json:"item_id"`
	RemainingQuantity int    `json:"remaining_quantity"`
	Complete          bool   `json:"complete"`
}

// handleAssign assigns one unit of an item
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "item_id is required")
		return
	}

	remaining, complete, err := sess.Assign(req.ItemID, req.ParticipantIDs, req.Split)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assignResponse{
		ItemID:            req.ItemID,
		RemainingQuantity: remaining,
		Complete:          complete,
	})
}

// handleResetAssignments clears the ledger of a session
func (s *Server) handleResetAssignments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.ResetAssignments(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleResetSession returns a session to the ingest phase
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Reset()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSummary returns the bill split
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	summary, err := sess.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary, Discrepancy: summary.Discrepancy().String(), Reconciled: summary.Reconciled()})
}

type summaryResponse struct {
	split.Summary
	Discrepancy string `json:"discrepancy"`
	Reconciled  bool   `json:"reconciled"`
}
