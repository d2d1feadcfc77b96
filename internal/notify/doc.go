// Package notify delivers alert notifications to the configured sinks:
// console, webhook, and email. Dispatch is asynchronous — the sampling
// pipeline hands an alert off and never waits on sink I/O. Each sink is
// attempted independently; the webhook sink retries with exponential
// backoff, the email sink is a single best-effort attempt, and the console
// sink always succeeds.
package notify
