// Package audio plays notification sounds with beep. Sounds come from the
// sound-file or sound-name hints, or from the per-urgency configuration.
// Decoding and playback run off the event loop.
package audio
