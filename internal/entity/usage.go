package entity

// UsageSnapshot is the monthly OCR usage view returned to clients.
type UsageSnapshot struct {
	Limit     *int64  `json:"limit"`
	Used      int64   `json:"used"`
	Remaining *int64  `json:"remaining"`
	ResetAt   *string `json:"resetAt"`
}
