package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/export"
	"forkcast/api/internal/gitrepo"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/search"
	"forkcast/api/internal/store"
	"forkcast/api/internal/util"
)

const maxBodyBytes = 5 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log.Named("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	readOnly := r.Method == http.MethodGet || r.Method == http.MethodHead

	if readOnly && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if readOnly && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, checks := s.service.Ready(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ok {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ok,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/comparisons/validate" {
		body, err := readBody(w, r)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		payload, err := s.service.Validate(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/comparisons/render" {
		body, err := readBody(w, r)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		page, err := s.service.RenderPasted(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeHTML(w, http.StatusOK, page)
		return
	}

	if readOnly && r.URL.Path == "/api/examples" {
		examples, err := s.service.Examples()
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"examples": examples})
		return
	}

	if readOnly && r.URL.Path == "/api/forks" {
		writeJSON(w, http.StatusOK, map[string]any{"forks": s.service.Forks()})
		return
	}

	if readOnly && (r.URL.Path == "/api/search" || r.URL.Path == "/api/eips") {
		q, err := parseQuery(r)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if r.URL.Path == "/api/eips" {
			q.FilterType = search.ResultEIP
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/gists" {
		var body PublishInput
		if err := decodeBody(w, r, &body); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		payload, err := s.service.PublishGist(r.Context(), bearerToken(r), body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/drafts" {
		var body CreateDraftInput
		if err := decodeBody(w, r, &body); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		payload, err := s.service.CreateDraft(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if readOnly && r.URL.Path == "/api/drafts" {
		payload, err := s.service.ListDrafts(r.Context(), queryInt(r, "eip"), queryInt(r, "limit"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "gists":
		s.handleGists(w, r, parts[2], parts[3:])
	case "examples":
		s.handleExamples(w, r, parts[2], parts[3:])
	case "drafts":
		s.handleDrafts(w, r, parts[2], parts[3:])
	case "eips":
		s.handleEIP(w, r, parts[2], parts[3:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleGists(w http.ResponseWriter, r *http.Request, gistID string, rest []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	refresh := queryBool(r, "refresh")
	switch {
	case len(rest) == 0:
		payload, err := s.service.GistPayload(r.Context(), gistID, refresh)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && rest[0] == "view":
		page, err := s.service.GistHTML(r.Context(), gistID, refresh)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeHTML(w, http.StatusOK, page)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleExamples(w http.ResponseWriter, r *http.Request, name string, rest []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	switch {
	case len(rest) == 0:
		payload, err := s.service.Example(name)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && rest[0] == "view":
		page, err := s.service.ExampleHTML(name)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeHTML(w, http.StatusOK, page)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, draftID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.GetDraft(r.Context(), draftID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 0 && r.Method == http.MethodPut:
		var body UpdateDraftInput
		if err := decodeBody(w, r, &body); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		payload, err := s.service.UpdateDraft(r.Context(), draftID, body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDraft(r.Context(), draftID); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet:
		payload, err := s.service.DraftHistory(r.Context(), draftID, queryInt(r, "limit"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet:
		payload, err := s.service.DraftVersion(r.Context(), draftID, rest[1])
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 1 && rest[0] == "facts" && r.Method == http.MethodPost:
		var body struct {
			EIP int `json:"eip"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if body.EIP <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "eip is required", nil)
			return
		}
		payload, err := s.service.AddFacts(r.Context(), draftID, body.EIP)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet:
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		result, err := s.service.ExportDraft(r.Context(), draftID, format)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if result.URL != "" {
			w.Header().Set("X-Export-URL", result.URL)
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleEIP(w http.ResponseWriter, r *http.Request, rawID string, rest []string) {
	if len(rest) != 0 || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	id, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(rawID), "eip-"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_EIP", "EIP id must be a positive number", nil)
		return
	}
	payload, err := s.service.EIP(id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Export-URL")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return nil
}

// readBody returns the raw request body. Documents are passed through
// untouched so the comparison parser sees exactly what the caller sent.
// Bodies over maxBodyBytes are rejected rather than truncated.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Could not read request body", nil)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseQuery(r *http.Request) (search.Query, error) {
	values := r.URL.Query()
	q := search.Query{
		Text:   values.Get("q"),
		Fork:   values.Get("fork"),
		EIP:    queryInt(r, "eip"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	switch t := values.Get("type"); t {
	case "":
	case string(search.ResultEIP), string(search.ResultDraft):
		q.FilterType = search.ResultType(t)
	default:
		return search.Query{}, domainError(http.StatusBadRequest, "INVALID_QUERY", "type must be eip or draft", nil)
	}
	return q, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var formatErr *comparison.FormatError
	if errors.As(err, &formatErr) {
		var d any
		if formatErr.Section >= 0 {
			d = map[string]any{"section": formatErr.Section}
		}
		return http.StatusUnprocessableEntity, "FORMAT_ERROR", formatErr.UserMessage(), d
	}
	var notFound *loader.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "GIST_NOT_FOUND", notFound.UserMessage(), map[string]any{"gistId": notFound.ID}
	}
	var remote *loader.RemoteError
	if errors.As(err, &remote) {
		return http.StatusBadGateway, "GIST_UNAVAILABLE", remote.UserMessage(), map[string]any{"status": remote.Status}
	}
	switch {
	case errors.Is(err, loader.ErrExampleNotFound):
		return http.StatusNotFound, "EXAMPLE_NOT_FOUND", "Example not found", nil
	case errors.Is(err, loader.ErrTokenRequired):
		return http.StatusUnauthorized, "GITHUB_TOKEN_REQUIRED", "A GitHub token is required to create Gists", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gitrepo.ErrRepoNotFound), errors.Is(err, gitrepo.ErrInvalidID):
		return errDraftNotFound.Status, errDraftNotFound.Code, errDraftNotFound.Message, nil
	case errors.Is(err, gitrepo.ErrVersionNotFound):
		return http.StatusNotFound, "VERSION_NOT_FOUND", "Draft version not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Format must be html, pdf or docx", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusNotImplemented, "EXPORT_UNAVAILABLE", "This export format is not available on the server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
