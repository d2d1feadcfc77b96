// Package metric defines the metric kinds pulsewatch samples and the
// immutable sample record produced on every collector tick. These are the
// canonical in-memory types shared by the sampler, evaluator, and stores.
package metric
