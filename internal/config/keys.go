package config

import (
	"fmt"
	"strings"
)

// KeyChord is a key name plus modifiers, e.g. "shift+Escape".
type KeyChord struct {
	Key   string
	Shift bool
	Ctrl  bool
	Alt   bool
}

// ParseKeyChord parses "mod+mod+Key". Modifier names are case-insensitive;
// the key name is kept as written (GDK key names are case-sensitive).
func ParseKeyChord(s string) (KeyChord, error) {
	parts := strings.Split(s, "+")
	var kc KeyChord
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return KeyChord{}, fmt.Errorf("invalid key chord %q", s)
		}
		if i == len(parts)-1 {
			kc.Key = p
			break
		}
		switch strings.ToLower(p) {
		case "shift":
			kc.Shift = true
		case "ctrl", "control":
			kc.Ctrl = true
		case "alt", "mod1":
			kc.Alt = true
		default:
			return KeyChord{}, fmt.Errorf("invalid modifier %q in key chord %q", p, s)
		}
	}
	return kc, nil
}

// Matches reports whether an input key event corresponds to the chord.
func (k KeyChord) Matches(key string, shift, ctrl, alt bool) bool {
	return k.Key == key && k.Shift == shift && k.Ctrl == ctrl && k.Alt == alt
}

// KeyCommand is a keyboard navigation command.
type KeyCommand string

const (
	KeyNone       KeyCommand = ""
	KeyDismiss    KeyCommand = "dismiss"
	KeyInvoke     KeyCommand = "invoke"
	KeyNext       KeyCommand = "next"
	KeyPrev       KeyCommand = "prev"
	KeyDismissAll KeyCommand = "dismiss-all"
)

// Command resolves a key event against the configured bindings.
func (k KeyboardConfig) Command(key string, shift, ctrl, alt bool) KeyCommand {
	bindings := []struct {
		chord string
		cmd   KeyCommand
	}{
		{k.DismissAll, KeyDismissAll},
		{k.Dismiss, KeyDismiss},
		{k.Invoke, KeyInvoke},
		{k.Next, KeyNext},
		{k.Prev, KeyPrev},
	}
	for _, b := range bindings {
		if b.chord == "" {
			continue
		}
		kc, err := ParseKeyChord(b.chord)
		if err != nil {
			continue
		}
		if kc.Matches(key, shift, ctrl, alt) {
			return b.cmd
		}
	}
	return KeyNone
}
