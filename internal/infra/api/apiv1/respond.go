package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/infra/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func badRequest(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "validation_error", Error: msg, Field: field})
}

// statusFor maps a use case error onto the HTTP response. Storage failures
// are logged here and reported with a generic message.
func statusFor(err error) (int, errorBody) {
	var (
		verr    *domain.ValidationError
		used    *domain.AlreadyUsedError
		expired *domain.ExpiredError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Code: "validation_error", Error: verr.Error(), Field: verr.Field}
	case errors.As(err, &used):
		b := errorBody{Code: "already_used", Error: "activation code has already been used"}
		if !used.UsedAt.IsZero() {
			t := used.UsedAt
			b.UsedAt = &t
		}
		return http.StatusConflict, b
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		return http.StatusConflict, errorBody{Code: "already_used", Error: "activation code has already been used"}
	case errors.As(err, &expired):
		t := expired.ExpiresAt
		return http.StatusGone, errorBody{Code: "expired", Error: "activation code has expired", ExpiresAt: &t}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Error: "activation code not found"}
	case errors.Is(err, domain.ErrDuplicateCode):
		return http.StatusConflict, errorBody{Code: "duplicate_code", Error: "generated code collided, retry the request", Retryable: true}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorBody{Code: "validation_error", Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal_error", Error: "internal error"}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, created []Code) {
	status, body := statusFor(err)
	body.Created = created
	if status >= http.StatusInternalServerError {
		body.TraceID = logging.TraceIDFrom(r.Context())
		h.logFor(r).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func (h *Handler) logFor(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), h.log)
}

// decode rejects unknown fields and trailing data. An empty body decodes as {}.
func decode(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
