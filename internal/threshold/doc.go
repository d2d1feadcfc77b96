// Package threshold holds the current alerting thresholds and decides
// whether a metric sample breaches them. Thresholds live in an immutable
// ruleset snapshot that is swapped atomically on every administrative
// replace, so evaluations never observe a torn write.
package threshold
