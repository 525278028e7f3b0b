package tuning

import (
	"context"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/bench"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
)

// NewAttempt builds the standard deploy-and-benchmark step: deploy the
// candidate through d, run the benchmark against the predictor, and
// tear the server down before returning. Teardown failures are logged
// rather than surfaced so they cannot mask the attempt's own outcome.
func NewAttempt(d serve.Deployer, r *bench.Runner) Attempt {
	log := logging.Get("tuning")
	return func(ctx context.Context, cfg *serve.ModelConfig, degree int) (*bench.Result, error) {
		p, err := d.Deploy(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := d.Teardown(ctx); err != nil {
				log.Warn("failed to tear down candidate server",
					"degree", degree,
					"error", err)
			}
		}()
		return r.Run(ctx, p)
	}
}
