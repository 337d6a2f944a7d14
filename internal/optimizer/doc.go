// Package optimizer turns raw, speaker-labeled ASR or caption segments into
// retrieval-friendly segments. It is pure: given the same input and
// parameters it always returns the same output, with no I/O of its own.
package optimizer
