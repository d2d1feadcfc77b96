// Package sampler runs the metric collection loop: on every tick it reads
// one value per metric kind from its Source, persists the sample, evaluates
// it against the current thresholds, and hands any breach to the alert
// dispatcher.
package sampler
