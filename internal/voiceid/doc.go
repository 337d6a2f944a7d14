// Package voiceid attributes ASR segments to the target speaker. It wraps a
// subprocess diarization backend and applies the cosine-similarity
// attribution policy against a stored voice profile.
package voiceid
