// Package daemon runs the notification event loop.
//
// A Dispatcher owns the notification store, the timer registry, the
// surface manager and the render pipeline. All of them are touched only on
// the goroutine running Dispatcher.Run. Bus handlers, the config watcher and
// the control interface reach the loop through blocking requests; the
// compositor and the icon loader reach it through channels. Each loop
// iteration fires due timers, recomputes layout when anything changed,
// renders a dirty frame and sleeps until the next deadline or input.
package daemon
