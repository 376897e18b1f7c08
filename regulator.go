package qbridge

/*
Regulator is a control element the job pool and the HTTP surface consult
before admitting work. Implementations in this package:

  - BackPressureRegulator: refuses jobs while the pool is congested
  - CircuitBreaker: stops routing jobs to a backend that keeps failing
  - RateLimiter: a token bucket over incoming requests
  - ResourceGovernor: keeps reserved state-vector memory under the ceiling
*/
type Regulator interface {
	// Observe hands the regulator the metrics it reads from and reports to.
	Observe(metrics *Metrics)

	// Limit reports whether the next unit of work should be refused.
	Limit() bool

	// Renormalize lets the regulator recover toward its normal state. The
	// pool calls it periodically.
	Renormalize()
}
