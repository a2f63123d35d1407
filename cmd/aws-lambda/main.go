package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/Philanthropists/newsletter-digest/internal/config"
	"github.com/Philanthropists/newsletter-digest/internal/logger"
	"github.com/Philanthropists/newsletter-digest/internal/pipeline"
)

var GitCommit string

// HandleRequest runs one digest per scheduled invocation. Configuration comes
// from the bundled file named by NEWSLETTER_DIGEST_CONFIG and the function's
// environment; the Gmail token must already be stored.
func HandleRequest(ctx context.Context) (pipeline.Report, error) {
	cfg, err := config.Load("")
	if err != nil {
		return pipeline.Report{}, err
	}

	if err := logger.Configure(cfg.Log.Level, false); err != nil {
		return pipeline.Report{}, err
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Infow("Version", "commit", GitCommit)

	if err := cfg.Validate(); err != nil {
		return pipeline.Report{}, fmt.Errorf("invalid configuration: %w", err)
	}

	deps, closeDeps, err := pipeline.Build(ctx, cfg, pipeline.BuildOptions{}, log.SugaredLogger)
	if err != nil {
		return pipeline.Report{}, err
	}
	defer closeDeps()

	return pipeline.Run(ctx, deps)
}

func main() {
	lambda.Start(HandleRequest)
}
