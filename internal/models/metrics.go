package models

import "time"

// SystemMetrics is a point-in-time summary of service instrumentation.
type SystemMetrics struct {
	RecordCount              int64     `json:"record_count"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	LoginSuccesses           uint64    `json:"login_successes"`
	LoginFailures            uint64    `json:"login_failures"`
	LoginHandleCollisions    uint64    `json:"login_handle_collisions"`
	DocumentUploads          uint64    `json:"document_uploads"`
	DocumentRejections       uint64    `json:"document_rejections"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
