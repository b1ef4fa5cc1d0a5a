// Package dbus connects glintd to the session bus.
//
// NotificationServer implements org.freedesktop.Notifications and forwards
// each call into the event loop as a store request. ControlServer exposes
// io.github.jmylchreest.Glint for glintctl, with JSON-encoded results, and
// Client is its counterpart. Signals are written from a queue so the event
// loop never blocks on the bus.
package dbus
