// Package broadcast fans the latest pairing artifact out to live observers.
//
// A Channel is constructed once per process and passed to the orchestrator.
// It caches exactly one artifact (the most recent) for late joiners, renders
// artifacts into display payloads, and pushes envelopes to subscribers without
// ever blocking on a slow one. StreamGateway exposes a Channel over websocket.
package broadcast
