package handler

// CleanupResponse is returned by POST /v1/npi/cache/cleanup.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// CacheStatsResponse is returned by GET /v1/npi/cache/stats.
type CacheStatsResponse struct {
	MemoryEntries int `json:"memory_entries"`
}
