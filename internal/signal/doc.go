// Package signal carries mirror change notifications to external
// consumers.
//
// The mirror's notifier calls sinks synchronously from the mutating
// goroutine, so every sink here either hands the message to an
// internal buffer (MQTT) or to a transport that already buffers per
// client (WebSocket hub). A slow broker or a stuck subscriber never
// stalls event handling; when a buffer fills, messages are dropped and
// counted rather than queued without bound.
package signal
