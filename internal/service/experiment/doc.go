// Package experiment implements the experiment engine: sticky weighted
// variant assignment, variant weight management, and two-proportion
// significance analysis over per-variant delivery stats.
//
// Assignment is idempotent per campaign lead: the first successful insert
// wins and every later or concurrent call returns that variant. Mutations
// that touch several variants of one campaign, and experiment completion,
// run under a distributed lock keyed by campaign or experiment.
package experiment
