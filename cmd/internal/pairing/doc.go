// Package pairing orchestrates device-pairing sessions.
//
// One Session exists per phone number at a time. A session owns a credential
// namespace and a protocol client, consumes the client's event stream in order,
// publishes pairing artifacts to the broadcast channel, and after the account is
// linked delivers the credential bundle back to it before tearing everything down.
// Every session ends in exactly one terminal state: Completed, Failed or Expired.
package pairing
