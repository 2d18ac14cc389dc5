package logging

// Component constants for structured logging
const (
	ComponentStartup    = "startup"
	ComponentDatabase   = "database"
	ComponentDither     = "dither"
	ComponentWorkerPool = "worker-pool"
	ComponentStorage    = "storage"
	ComponentAPI        = "api"
	ComponentRateLimit  = "ratelimit"
)
