package entity

import "time"

// APILog records one outbound HTTP call
type APILog struct {
	ID           int64     `json:"id"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestBody  string    `json:"request_body"`
	ResponseBody string    `json:"response_body"`
	StatusCode   int       `json:"status_code"` // 0 when no response was received
	Duration     int64     `json:"duration_ms"`
	ItemID       string    `json:"item_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
