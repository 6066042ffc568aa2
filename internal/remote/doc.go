// Package remote speaks the task-list service's batch protocol.
//
// A Client is a session: Login performs the cookie handshake and captures the
// client version embedded in the service's start page, then create, update,
// move and fetch calls travel as numbered actions inside form-encoded batch
// posts. Updates accumulate in a pending queue that flushes automatically
// before it would exceed ten actions and before any call whose result depends
// on earlier actions having landed.
//
// Errors are tagged with services.ErrTransport when the service could not be
// reached or answered with a transient status, and services.ErrProtocol when
// it answered but rejected or garbled the exchange.
package remote
