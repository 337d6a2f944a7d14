// Package embedding produces vector embeddings for optimized segments,
// applying the embed_target_only policy and the speaker-label defaulting
// rule ahead of the call.
package embedding
