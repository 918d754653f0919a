// Package recent remembers recently resolved actions so that a result
// arriving after its action was already resolved (typically by the timeout
// sweeper) can be logged as a late duplicate rather than an unknown id.
package recent
