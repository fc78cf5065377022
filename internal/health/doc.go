// Package health runs dependency checks against the credential store, the
// cache and Vault, and aggregates them into a single report.
//
// # Usage
//
//	checker := health.NewChecker(version,
//	    health.WithLogger(logger),
//	    health.WithTimeout(2*time.Second),
//	)
//	checker.Register(health.StoreCheck(st))
//	checker.Register(health.CacheCheck(c))
//	checker.Register(health.VaultCheck(client, health.WithCritical(false)))
//
//	report := checker.Run(ctx)
//	if report.Status == health.StatusUnhealthy {
//	    os.Exit(1)
//	}
//
// A check that returns ErrDisabled is reported as disabled and does not
// affect the overall status. A failing non-critical check degrades the
// report; a failing critical check makes it unhealthy.
package health
