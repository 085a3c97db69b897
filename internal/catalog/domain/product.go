package domain

import (
	"errors"
	"math/rand/v2"
	"time"
)

// Catalog codes are 5-digit so they fit on shelf labels. The range is large
// relative to catalog size; saturation is an operational failure, not a
// condition to retry through.
const (
	CodeMin = 10000
	CodeMax = 99999
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrCodesExhausted = errors.New("catalog code space exhausted")
)

type Product struct {
	ID         int64
	Code       int
	Name       string
	Brand      string
	PriceCents int64
	Stock      int
	CreatedAt  time.Time
}

// NewCatalogCode draws a candidate code uniformly from the 5-digit range.
// Uniqueness is enforced by the storage constraint; callers redraw on
// collision.
func NewCatalogCode() int {
	return CodeMin + rand.IntN(CodeMax-CodeMin+1)
}
