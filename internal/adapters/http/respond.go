package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gymdesk/internal/adapters/http/middleware"
	"gymdesk/internal/application/optimistic"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/session"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// errorResponse is the JSON error body.
type errorResponse struct {
	Error  string            `json:"error"`
	Field  string            `json:"field,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: apperr.GenericMessage})
}

// writeError maps err onto the taxonomy's status code. Server errors are
// logged and their text withheld.
func writeError(w http.ResponseWriter, err error) {
	status, resp := errorBody(err)
	writeJSON(w, status, resp)
}

func errorBody(err error) (int, errorResponse) {
	err = apperr.Wrap(err)
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("internal_error", "error", err.Error())
		return status, errorResponse{Error: apperr.GenericMessage}
	}
	resp := errorResponse{Error: apperr.Message(err)}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Message
		resp.Field = ve.Field
	}
	return status, resp
}

// rollbackResponse is the error body of an owner mutation that was applied
// to the working copy and then reverted.
type rollbackResponse struct {
	errorResponse
	RolledBack bool                         `json:"rolledBack"`
	Data       any                          `json:"data"` // working copy after the revert
	Pending    []optimistic.PendingMutation `json:"pending"`
}

// writeMutationError is writeError plus the working copy when a local change
// was rolled back.
func writeMutationError(w http.ResponseWriter, err error, res optimistic.Result) {
	status, resp := errorBody(err)
	if !res.RolledBack {
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, status, rollbackResponse{errorResponse: resp, RolledBack: true, Data: res.Items, Pending: res.Pending})
}

// isFormRequest reports whether r carries a urlencoded or multipart form.
func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
// An empty body leaves v untouched.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("", "Invalid request body")
	}
	return nil
}

// readBody fills v from a form or a JSON body. formFields maps form keys to
// setters so form posts and JSON share one input struct.
func readBody(r *http.Request, v any, formFields map[string]func(string)) error {
	if isFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			return apperr.Validation("", "Invalid form submission")
		}
		for key, set := range formFields {
			if r.Form.Has(key) {
				set(r.FormValue(key))
			}
		}
		return nil
	}
	return strictDecode(r, v)
}

// currentUser returns the signed-in user captured for the request.
func currentUser(r *http.Request) (session.User, error) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return session.User{}, apperr.Unauthorized("")
	}
	return u, nil
}

// sessionView is the public rendering of a Session; the token stays server side.
type sessionView struct {
	Status   session.Status `json:"status"`
	User     *session.User  `json:"user,omitempty"`
	Error    string         `json:"error,omitempty"`
	Home     string         `json:"home,omitempty"`
	Hydrated bool           `json:"hydrated"`
}

func viewSession(s session.Session, hydrated bool) sessionView {
	v := sessionView{Status: s.Status, Error: s.Error, Hydrated: hydrated}
	if s.User != nil {
		u := *s.User
		v.User = &u
		v.Home = u.Role.Home()
	}
	return v
}
