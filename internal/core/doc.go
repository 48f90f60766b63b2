// Package core provides the keysafe vault operations.
//
// KeySafe ties together the master secret verifier, the session manager and
// the vault store over a single byte store:
//   - Unlock: verify (or, on first use, create) an identity's master secret
//     record and open a session holding the derived session key
//   - Lock/IsLocked: end or inspect the session
//   - ListEntries/AddEntry/UpdateEntry/DeleteEntry: entry CRUD, gated by the
//     session
//   - ChangeSecret: rotate the master secret, re-encrypting every entry
//   - Status: report identities and entry counts without a secret
//
// Failed unlocks always leave the vault locked. Error values are re-exported
// here so callers only need this package to classify failures.
package core
