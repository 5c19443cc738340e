// SPDX-License-Identifier: MPL-2.0

// Package readiness decides when a started service can accept work.
//
// A Probe performs one check. Wait polls a probe with exponential backoff
// until it succeeds or the deadline passes:
//
//	probe, err := readiness.ForService(stack, stack.Services["db"], nil, engine)
//	err = readiness.Wait(ctx, probe, readiness.Options{Service: "db", Timeout: time.Minute})
//
// The postgres probe talks to the published port with lib/pq and falls back
// to pg_isready inside the container when no port is published.
package readiness
