// Package crypto provides cryptographic operations for keysafe.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key
//   - 12-byte random nonce per encryption operation
//   - blobs laid out as nonce || ciphertext || tag
//   - every open failure reported as ErrAuthFailed
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 16-byte random salt (stored unencrypted)
//   - 210,000 iterations (OWASP minimum recommendation), 100,000 accepted
//   - optional extra entropy (a signer's signature) mixed into the key material
//
// Sub-keys are split from a derived root with HKDF-SHA256.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Long-lived keys live in a SecretKey and are wiped by Destroy()
package crypto
