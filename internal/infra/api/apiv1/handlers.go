// Package apiv1 serves the /api/v1/activation-codes resource.
package apiv1

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"activation-platform/internal/usecase"
)

const (
	maxExpirationDays  = 36500
	maxExpirationHours = maxExpirationDays * 24
)

type Options struct {
	DefaultTTL    time.Duration
	CleanupMaxAge time.Duration
}

type Handler struct {
	uc   usecase.ActivationCodeUseCase
	opts Options
	now  func() time.Time
	log  *zerolog.Logger
}

func NewHandler(uc usecase.ActivationCodeUseCase, opts Options, logger *zerolog.Logger) *Handler {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 365 * 24 * time.Hour
	}
	if opts.CleanupMaxAge <= 0 {
		opts.CleanupMaxAge = usecase.DefaultCleanupMaxAge
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Handler{uc: uc, opts: opts, now: time.Now, log: &l}
}

// Register mounts the routes. admin guards management endpoints, limit
// guards the public verify endpoint.
func Register(r chi.Router, h *Handler, admin, limit func(http.Handler) http.Handler) {
	r.Route("/api/v1/activation-codes", func(r chi.Router) {
		r.With(limit).Post("/verify", h.Verify)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/stats", h.Stats)
			r.Post("/cleanup", h.Cleanup)
			r.Get("/{id}", h.Get)
			r.Delete("/{id}", h.Delete)
		})
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "", "invalid request body")
		return
	}

	ttl, field, msg := h.ttlFrom(req)
	if field != "" {
		badRequest(w, field, msg)
		return
	}
	in := usecase.CreateCodeInput{TTL: ttl, Metadata: req.Metadata, ProductInfo: req.ProductInfo}

	if req.Count == nil {
		c, err := h.uc.Create(r.Context(), in)
		if err != nil {
			h.fail(w, r, err, nil)
			return
		}
		writeOK(w, http.StatusCreated, toCode(c, h.now()))
		return
	}

	codes, err := h.uc.CreateBatch(r.Context(), in, *req.Count)
	if err != nil {
		h.fail(w, r, err, toCodes(codes, h.now()))
		return
	}
	n := len(codes)
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toCodes(codes, h.now()), Count: &n})
}

// ttlFrom applies expirationHours, then expirationDays, then the default.
func (h *Handler) ttlFrom(req createCodeRequest) (time.Duration, string, string) {
	switch {
	case req.ExpirationHours != nil:
		v := *req.ExpirationHours
		if math.IsNaN(v) || v < 0 || v > maxExpirationHours {
			return 0, "expirationHours", "must be between 0 and " + strconv.Itoa(maxExpirationHours)
		}
		return time.Duration(v * float64(time.Hour)), "", ""
	case req.ExpirationDays != nil:
		v := *req.ExpirationDays
		if math.IsNaN(v) || v < 0 || v > maxExpirationDays {
			return 0, "expirationDays", "must be between 0 and " + strconv.Itoa(maxExpirationDays)
		}
		return time.Duration(v * 24 * float64(time.Hour)), "", ""
	default:
		return h.opts.DefaultTTL, "", ""
	}
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "", "invalid request body")
		return
	}
	red, err := h.uc.VerifyAndConsume(r.Context(), req.Code)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeOK(w, http.StatusOK, toActivation(red))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := intParam(q.Get("page"))
	if !ok {
		badRequest(w, "page", "must be an integer")
		return
	}
	limit, ok := intParam(q.Get("limit"))
	if !ok {
		badRequest(w, "limit", "must be an integer")
		return
	}

	res, err := h.uc.List(r.Context(), usecase.ListCodesInput{Status: q.Get("status"), Page: page, Limit: limit})
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    toCodes(res.Items, h.now()),
		Pagination: &Pagination{
			Page:       res.Page,
			Limit:      res.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages,
		},
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.uc.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeOK(w, http.StatusOK, Stats{
		Total:          s.Total,
		Used:           s.Used,
		Expired:        s.Expired,
		Active:         s.Active,
		UsageRate:      s.UsageRate,
		ExpirationRate: s.ExpirationRate,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.uc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeOK(w, http.StatusOK, toCode(c, h.now()))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.uc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// Cleanup takes olderThanDays, then maxAgeMinutes, then the configured max age.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "", "invalid request body")
		return
	}

	maxAge := h.opts.CleanupMaxAge
	switch {
	case req.OlderThanDays != nil:
		v := *req.OlderThanDays
		if math.IsNaN(v) || v <= 0 || v > maxExpirationDays {
			badRequest(w, "olderThanDays", "must be between 0 and "+strconv.Itoa(maxExpirationDays))
			return
		}
		maxAge = time.Duration(v * 24 * float64(time.Hour))
	case req.MaxAgeMinutes != nil:
		v := *req.MaxAgeMinutes
		if math.IsNaN(v) || v <= 0 || v > maxExpirationHours*60 {
			badRequest(w, "maxAgeMinutes", "must be a positive number of minutes")
			return
		}
		maxAge = time.Duration(v * float64(time.Minute))
	}

	n, err := h.uc.Cleanup(r.Context(), maxAge)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": n, "maxAgeSeconds": int64(maxAge / time.Second)})
}

// intParam treats an absent value as 0 so the use case applies its default.
func intParam(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
