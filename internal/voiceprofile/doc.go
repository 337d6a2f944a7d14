// Package voiceprofile loads the target speaker's voice fingerprint from a
// directory of JSON profile files and provides the cosine-similarity
// primitive the Diarizer + Voice Identifier uses for attribution.
package voiceprofile
