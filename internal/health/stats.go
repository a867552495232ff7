package health

import "net/http"

// StatsSource produces one named block of runtime statistics for the /stats
// endpoint, such as circuit breaker states or session counts.
type StatsSource struct {
	// Name is the key under which this block appears in the JSON response.
	Name string

	// Collect returns the current statistics. The returned value must be
	// JSON-encodable.
	Collect func() any
}

// AddStats registers statistics sources for the /stats endpoint. Call before
// [Handler.Register]; the source list must not change once serving begins.
func (h *Handler) AddStats(sources ...StatsSource) {
	h.stats = append(h.stats, sources...)
}

// Stats reports runtime statistics from all registered sources as a JSON
// object keyed by source name.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	body := make(map[string]any, len(h.stats))
	for _, s := range h.stats {
		body[s.Name] = s.Collect()
	}
	writeJSON(w, http.StatusOK, body)
}
