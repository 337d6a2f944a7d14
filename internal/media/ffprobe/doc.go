// Package ffprobe provides a typed wrapper around the subset of ffprobe's
// JSON output the Audio Acquirer (internal/audio) needs to enforce its
// size/duration/container constraints on an already-acquired audio file.
//
// Key types:
//   - Result: parsed ffprobe output containing audio streams and format metadata
//   - Stream: a single audio stream's codec, sample rate, and channel count
//   - Format: container-level metadata (duration, size)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result report audio stream counts, duration/size
// parsing, and whether the primary audio stream matches the 16 kHz mono
// layout the local recognizer expects.
package ffprobe
