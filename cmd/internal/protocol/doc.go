// Package protocol defines the contract between the pairing orchestrator and a
// messaging protocol client.
//
// A Client is constructed per session with a scoped credential namespace and
// handshake parameters. It emits a typed Event stream (artifact, connection
// open, connection close, credentials updated) and accepts two commands:
// RequestPairingCode and SendDocument.
//
// The handshake itself lives behind this contract. The sim driver in this
// package implements it for local runs and smoke tests.
package protocol
