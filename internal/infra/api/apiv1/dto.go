package apiv1

import (
	"time"

	"activation-platform/internal/domain/model"
	"activation-platform/internal/usecase"
)

type createCodeRequest struct {
	ExpirationDays  *float64           `json:"expirationDays"`
	ExpirationHours *float64           `json:"expirationHours"`
	Metadata        map[string]any     `json:"metadata"`
	ProductInfo     *model.ProductInfo `json:"productInfo"`
	Count           *int               `json:"count"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type cleanupRequest struct {
	MaxAgeMinutes *float64 `json:"maxAgeMinutes"`
	OlderThanDays *float64 `json:"olderThanDays"`
}

type Code struct {
	ID          string             `json:"id"`
	Code        string             `json:"code"`
	Status      model.CodeStatus   `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	IsUsed      bool               `json:"isUsed"`
	UsedAt      *time.Time         `json:"usedAt,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	ProductInfo *model.ProductInfo `json:"productInfo,omitempty"`
}

func toCode(c *model.ActivationCode, now time.Time) Code {
	return Code{
		ID:          c.ID,
		Code:        c.Code,
		Status:      c.Status(now),
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
		IsUsed:      c.IsUsed,
		UsedAt:      c.UsedAt,
		Metadata:    c.Metadata,
		ProductInfo: c.ProductInfo,
	}
}

func toCodes(cs []*model.ActivationCode, now time.Time) []Code {
	out := make([]Code, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCode(c, now))
	}
	return out
}

type Activation struct {
	ID          string             `json:"id"`
	Code        string             `json:"code"`
	ProductInfo *model.ProductInfo `json:"productInfo"`
	Metadata    map[string]any     `json:"metadata"`
	ActivatedAt time.Time          `json:"activatedAt"`
}

func toActivation(r *usecase.Redemption) Activation {
	return Activation{
		ID:          r.ID,
		Code:        r.Code,
		ProductInfo: r.ProductInfo,
		Metadata:    r.Metadata,
		ActivatedAt: r.ActivatedAt,
	}
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type Stats struct {
	Total          int64   `json:"total"`
	Used           int64   `json:"used"`
	Expired        int64   `json:"expired"`
	Active         int64   `json:"active"`
	UsageRate      float64 `json:"usageRate"`
	ExpirationRate float64 `json:"expirationRate"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Count      *int        `json:"count,omitempty"`
}

type errorBody struct {
	Success   bool       `json:"success"`
	Code      string     `json:"code"`
	Error     string     `json:"error"`
	Field     string     `json:"field,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
	Created   []Code     `json:"created,omitempty"`
	TraceID   string     `json:"traceId,omitempty"`
}
