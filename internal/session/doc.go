// Package session holds the unlocked vault key in memory.
//
// A Manager is either Locked or Unlocked. Unlocked sessions end on:
//   - Lock()
//   - the absolute ceiling (Config.Duration after the session opened)
//   - the inactivity deadline, which each successful WithSession call slides
//     forward by Config.Inactivity without ever passing the ceiling
//   - IdentityLost(), e.g. when the signer's address disappears
//
// The session key is destroyed (wiped) on every one of those paths.
package session
