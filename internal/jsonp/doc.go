// Package jsonp implements a JSONP transport. Each request registers a
// uniquely named callback, loads a script whose URL carries that name, and
// resolves when the loaded script invokes the callback, when the load fails,
// or when the request times out. All completions for a transport are
// serialized on a single event loop goroutine.
package jsonp
