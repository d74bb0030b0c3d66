package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// repoOpenTimeout bounds the git invocations that resolve the repository
	// at startup.
	repoOpenTimeout = 10 * time.Second
)
