package telemetry

// Span names used for instrumentation.
const (
	// Coordinator
	SpanSearch        = "explorer.search"
	SpanDiscoverStops = "explorer.discover_stops"

	// Sources
	SpanBackendRequest = "backend.request"
	SpanPostgresQuery  = "postgres.query"
)
