// Package display is the GTK4 compositor backend. It places a single
// layer-shell window per surface target, shows presented frames as a
// memory texture and feeds pointer, keyboard and monitor changes back into
// the event loop.
//
// GTK objects are only touched on the GTK main thread. Calls arriving from
// the event loop are marshalled there with glib.IdleAdd.
package display
