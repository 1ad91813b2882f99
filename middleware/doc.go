// Package middleware provides composable wrappers around processor
// invocation.
//
// The worker builds its chain once per queue and runs every job through
// it:
//
//	chain := middleware.Chain(
//		middleware.Logging(logger),
//		middleware.Recover(logger),
//		middleware.Timeout(30*time.Second),
//	)
//
// Ordering matters: Logging outermost so it observes the final result,
// Recover inside it so a panic is already converted before logging,
// Timeout innermost so only the processor runs under the deadline.
package middleware
