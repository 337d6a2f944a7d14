// Package captions fetches and normalizes existing caption tracks so a
// Source with usable human-authored captions can skip audio transcription
// entirely.
package captions
