package dbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestIdleFromSignal(t *testing.T) {
	tests := []struct {
		name   string
		sig    *dbus.Signal
		idle   bool
		wantOK bool
	}{
		{
			name:   "active",
			sig:    &dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged", Body: []any{true}},
			idle:   true,
			wantOK: true,
		},
		{
			name:   "inactive",
			sig:    &dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged", Body: []any{false}},
			wantOK: true,
		},
		{
			name: "other member",
			sig:  &dbus.Signal{Name: "org.freedesktop.ScreenSaver.WakeUpScreen", Body: []any{true}},
		},
		{
			name: "empty body",
			sig:  &dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged"},
		},
		{
			name: "wrong type",
			sig:  &dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged", Body: []any{"yes"}},
		},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idle, ok := idleFromSignal(tt.sig)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.idle, idle)
		})
	}
}
