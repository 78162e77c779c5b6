package analytics

import "time"

// RequestStats aggregates request counters. Total always equals
// Successful + Failed.
type RequestStats struct {
	Total        int64            `json:"total"`
	Successful   int64            `json:"successful"`
	Failed       int64            `json:"failed"`
	SuccessRate  string           `json:"successRate"`
	ByRoute      map[string]int64 `json:"byRoute"`
	ByMethod     map[string]int64 `json:"byMethod"`
	ByStatusCode map[int]int64    `json:"byStatusCode"`
}

// LatencyStats aggregates the bounded latency sample buffer. Percentiles
// use nearest-rank over the current buffer contents.
type LatencyStats struct {
	Samples int           `json:"samples"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// ErrorEntry is one recorded request error.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Route   string    `json:"route"`
	Method  string    `json:"method"`
	Status  int       `json:"status"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// ErrorStats aggregates error counters plus the most recent entries.
type ErrorStats struct {
	Total   int64            `json:"total"`
	ByType  map[string]int64 `json:"byType"`
	ByRoute map[string]int64 `json:"byRoute"`
	Recent  []ErrorEntry     `json:"recent"`
}

// AuthStats aggregates reported authentication outcomes.
type AuthStats struct {
	Total      int64            `json:"total"`
	Successful int64            `json:"successful"`
	Failed     int64            `json:"failed"`
	ByMethod   map[string]int64 `json:"byMethod"`
}

// RateLimitStats aggregates reported rate-limit outcomes.
type RateLimitStats struct {
	Total     int64            `json:"total"`
	Blocked   int64            `json:"blocked"`
	BlockRate string           `json:"blockRate"`
	ByIP      map[string]int64 `json:"byIp"`
	ByUser    map[string]int64 `json:"byUser"`
}

// Snapshot is a deep, read-only view of the recorder state at one point
// in time. Mutating a snapshot never affects the recorder.
type Snapshot struct {
	TakenAt   time.Time      `json:"takenAt"`
	Requests  RequestStats   `json:"requests"`
	Latency   LatencyStats   `json:"latency"`
	Errors    ErrorStats     `json:"errors"`
	Auth      AuthStats      `json:"auth"`
	RateLimit RateLimitStats `json:"rateLimit"`
}
