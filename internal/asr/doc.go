// Package asr transcribes acquired audio into raw, timed segments. Two
// interchangeable backends satisfy the same Recognizer capability: a local
// subprocess-driven model with an automatic refinement pass, and a remote
// HTTP transcription API billed per minute.
package asr
