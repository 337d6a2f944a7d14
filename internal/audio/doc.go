// Package audio acquires and, when necessary, transcodes a Source's audio
// ahead of speech recognition, enforcing size and duration constraints and
// detecting inaccessible content without treating it as fatal.
package audio
