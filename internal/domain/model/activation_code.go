package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActivationCode is a single-use credential a client redeems to activate a product.
type ActivationCode struct {
	ID          string
	Code        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IsUsed      bool
	UsedAt      *time.Time // nil until consumed
	Metadata    map[string]any
	ProductInfo *ProductInfo
}

// ProductInfo describes what a code unlocks. It is returned verbatim on
// redemption: keys other than name, version and features live in Extra and
// are encoded back alongside them.
type ProductInfo struct {
	Name     string
	Version  string
	Features []string
	Extra    map[string]any
}

// productInfoKnown carries the typed keys; Extra never overrides them.
type productInfoKnown struct {
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	Features []string `json:"features,omitempty"`
}

func (p ProductInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	delete(out, "name")
	delete(out, "version")
	delete(out, "features")
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.Version != "" {
		out["version"] = p.Version
	}
	if len(p.Features) > 0 {
		out["features"] = p.Features
	}
	return json.Marshal(out)
}

func (p *ProductInfo) UnmarshalJSON(b []byte) error {
	var known productInfoKnown
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	delete(all, "name")
	delete(all, "version")
	delete(all, "features")
	if len(all) == 0 {
		all = nil
	}
	*p = ProductInfo{Name: known.Name, Version: known.Version, Features: known.Features, Extra: all}
	return nil
}

type CodeStatus string

const (
	CodeStatusActive  CodeStatus = "active"
	CodeStatusUsed    CodeStatus = "used"
	CodeStatusExpired CodeStatus = "expired"
)

// IsExpired reports whether the code is past its expiry at now.
// A code is active only while now < ExpiresAt.
func (c *ActivationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Status derives the lifecycle state. Used wins over expired.
func (c *ActivationCode) Status(now time.Time) CodeStatus {
	switch {
	case c.IsUsed:
		return CodeStatusUsed
	case c.IsExpired(now):
		return CodeStatusExpired
	default:
		return CodeStatusActive
	}
}

// StatusFilter selects rows for listing.
type StatusFilter string

const (
	FilterAll     StatusFilter = "all"
	FilterUsed    StatusFilter = "used"
	FilterUnused  StatusFilter = "unused"
	FilterExpired StatusFilter = "expired"
	FilterActive  StatusFilter = "active"
)

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUsed, FilterUnused, FilterExpired, FilterActive:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Matches applies the filter to a single code at now.
// "expired" means unused and past expiry; "unused" ignores expiry.
func (f StatusFilter) Matches(c *ActivationCode, now time.Time) bool {
	switch f {
	case FilterUsed:
		return c.IsUsed
	case FilterUnused:
		return !c.IsUsed
	case FilterExpired:
		return !c.IsUsed && c.IsExpired(now)
	case FilterActive:
		return !c.IsUsed && !c.IsExpired(now)
	default:
		return true
	}
}

// CodeCounts partitions all codes by derived status: Total = Used + Expired + Active.
type CodeCounts struct {
	Total   int64
	Used    int64
	Expired int64
	Active  int64
}

type CodeStats struct {
	CodeCounts
	UsageRate      float64
	ExpirationRate float64
}

func NewCodeStats(c CodeCounts) CodeStats {
	s := CodeStats{CodeCounts: c}
	if c.Total > 0 {
		s.UsageRate = float64(c.Used) / float64(c.Total)
		s.ExpirationRate = float64(c.Expired) / float64(c.Total)
	}
	return s
}
