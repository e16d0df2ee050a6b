package healthcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
)

const checkTimeout = 5 * time.Second

// NewHandler returns the /health handler. The service is reported down
// whenever checkFunc fails.
func NewHandler(checkFunc func(context.Context) error) http.Handler {
	healthChecker := health.NewChecker(
		health.WithCheck(health.Check{
			Name:    "receiver-backend",
			Timeout: checkTimeout,
			Check:   checkFunc,
		}),
	)

	return health.NewHandler(healthChecker)
}
