// Command corpusd ingests a channel's catalogue of long-form videos into a
// searchable, speaker-attributed, embedding-indexed transcript corpus. It is
// the CLI front-end around the internal/orchestrator pipeline: one run
// enumerates candidates, drives each through the I/O, ASR, and DB worker
// pools, and prints a summary table of the outcome.
package main
