package preflight

import (
	"context"

	"notesync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. The remote
// check is skipped when credentials are missing, since it cannot pass.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	creds := CheckCredentials(cfg)
	results = append(results, creds)
	if creds.Passed {
		results = append(results, CheckRemote(ctx, cfg.Remote.BaseURL, cfg.RemoteTimeout()))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
