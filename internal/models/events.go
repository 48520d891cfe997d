package models

import (
	"time"
)

// Impression records one qualifying render of a bump to a checkout session.
// Rows are deduplicated per (bump, session) within a trailing window by the
// analytics layer, so repeated page views within that window do not insert.
type Impression struct {
	ID        int64     `json:"id"`
	BumpID    int64     `json:"bump_id"`
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"` // 0 = anonymous
	CreatedAt time.Time `json:"created_at"`
}

// Conversion records one finalized order line item attributable to an
// accepted bump. Revenue is the actually-charged line amount.
type Conversion struct {
	ID        int64     `json:"id"`
	BumpID    int64     `json:"bump_id"`
	OrderID   string    `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Revenue   float64   `json:"revenue"`
	CreatedAt time.Time `json:"created_at"`
}

// StatTotals are raw sums over a date range before rate math.
type StatTotals struct {
	Impressions int64
	Conversions int64
	Revenue     float64
}

// DailyCount is one calendar day's raw sums.
type DailyCount struct {
	Date        string `json:"date"` // YYYY-MM-DD
	Impressions int64  `json:"impressions"`
	Conversions int64  `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}
