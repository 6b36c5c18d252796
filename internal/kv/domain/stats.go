package domain

// Stats is a point-in-time snapshot of a storage engine's state,
// exposed on the health endpoint.
type Stats struct {
	Engine           string `json:"engine"`
	DataDir          string `json:"data_dir"`
	LiveKeys         int    `json:"live_keys"`
	Segments         int    `json:"segments"`
	UncompactedBytes int64  `json:"uncompacted_bytes"`
}

// StatsProvider is implemented by engines that can report Stats.
type StatsProvider interface {
	Stats() Stats
}
