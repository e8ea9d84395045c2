// Package engine runs Edmunds API calls on behalf of the gateway. It records
// each call in the store before issuing it, writes the terminal outcome when
// the call settles and publishes lifecycle events to subscribers.
package engine
