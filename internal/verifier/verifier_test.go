package verifier

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/illarion/keysafe/internal/crypto"
)

func newTestVerifier() *Verifier {
	return New(crypto.MinIters)
}

func TestBootstrapThenVerify(t *testing.T) {
	v := newTestVerifier()
	secret := []byte("correct-horse")

	rec, err := v.Bootstrap(secret, nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if !v.Verify(secret, nil, rec) {
		t.Error("Verify should accept the bootstrap secret")
	}
	if v.Verify([]byte("wrong"), nil, rec) {
		t.Error("Verify should reject a different secret")
	}
	if rec.Bound {
		t.Error("Record without extra should not be bound")
	}
	if len(rec.Salt) != crypto.SaltSize {
		t.Errorf("Salt length: got %d, want %d", len(rec.Salt), crypto.SaltSize)
	}
	if rec.KDF.Iterations != crypto.MinIters || rec.KDF.Name != crypto.KDFName {
		t.Errorf("Unexpected KDF params: %+v", rec.KDF)
	}
}

func TestRecordDoesNotContainSecret(t *testing.T) {
	v := newTestVerifier()
	secret := []byte("correct-horse")

	rec, err := v.Bootstrap(secret, nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if bytes.Contains(data, secret) {
		t.Error("Serialized record contains the plaintext secret")
	}
	for _, field := range []string{`"salt"`, `"verification"`, `"kdf"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("Serialized record is missing %s", field)
		}
	}

	parsed, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("ParseRecord failed: %v", err)
	}
	if !v.Verify(secret, nil, parsed) {
		t.Error("Verify should accept a record that went through JSON")
	}
}

func TestSaltsAreUniquePerRecord(t *testing.T) {
	v := newTestVerifier()

	a, err := v.Bootstrap([]byte("same"), nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	b, err := v.Bootstrap([]byte("same"), nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if bytes.Equal(a.Salt, b.Salt) {
		t.Error("Two records share a salt")
	}
}

func TestBoundRecordRequiresSameExtra(t *testing.T) {
	v := newTestVerifier()
	secret := []byte("correct-horse")
	sig := []byte("signature-over-challenge")

	rec, err := v.Bootstrap(secret, sig)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !rec.Bound {
		t.Fatal("Record with extra should be bound")
	}

	if !v.Verify(secret, sig, rec) {
		t.Error("Verify should accept the bound signature")
	}
	if v.Verify(secret, []byte("other-signature"), rec) {
		t.Error("Verify should reject a different signature")
	}
	if v.Verify(secret, nil, rec) {
		t.Error("Verify should reject a missing signature on a bound record")
	}

	_, err = v.Unseal(secret, nil, rec)
	if !errors.Is(err, ErrVerificationFailed) || !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("Expected binding mismatch, got %v", err)
	}
}

func TestUnboundRecordRejectsExtra(t *testing.T) {
	v := newTestVerifier()
	rec, err := v.Bootstrap([]byte("pw-pw-pw"), nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if v.Verify([]byte("pw-pw-pw"), []byte("sig"), rec) {
		t.Error("Verify should reject extra on an unbound record")
	}
}

func TestVerifyCorruptedRecord(t *testing.T) {
	v := newTestVerifier()
	secret := []byte("correct-horse")
	rec, err := v.Bootstrap(secret, nil)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"flipped token", func(r *Record) { r.Verification[len(r.Verification)-1] ^= 0x01 }},
		{"truncated token", func(r *Record) { r.Verification = r.Verification[:10] }},
		{"flipped salt", func(r *Record) { r.Salt[0] ^= 0x80 }},
		{"short salt", func(r *Record) { r.Salt = r.Salt[:8] }},
		{"future version", func(r *Record) { r.Version = RecordVersion + 1 }},
		{"unknown kdf", func(r *Record) { r.KDF.Name = "scrypt" }},
		{"weak kdf", func(r *Record) { r.KDF.Iterations = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *rec
			r.Salt = append([]byte(nil), rec.Salt...)
			r.Verification = append([]byte(nil), rec.Verification...)
			tt.mutate(&r)
			if v.Verify(secret, nil, &r) {
				t.Error("Verify should fail on a corrupted record")
			}
		})
	}

	if v.Verify(secret, nil, nil) {
		t.Error("Verify should fail on a nil record")
	}
}

func TestUnsealReturnsRootForSessionKeys(t *testing.T) {
	v := newTestVerifier()
	secret := []byte("correct-horse")

	rec, bootRoot, err := v.BootstrapKey(secret, nil)
	if err != nil {
		t.Fatalf("BootstrapKey failed: %v", err)
	}
	defer bootRoot.Destroy()

	root, err := v.Unseal(secret, nil, rec)
	if err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	defer root.Destroy()

	if !bytes.Equal(root.Bytes(), bootRoot.Bytes()) {
		t.Fatal("Unseal root differs from bootstrap root")
	}

	a, err := SessionKey(root, "0xabc")
	if err != nil {
		t.Fatalf("SessionKey failed: %v", err)
	}
	defer a.Destroy()
	b, err := SessionKey(root, "0xdef")
	if err != nil {
		t.Fatalf("SessionKey failed: %v", err)
	}
	defer b.Destroy()

	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("Session keys for different identities should differ")
	}
	if bytes.Equal(a.Bytes(), root.Bytes()) {
		t.Error("Session key should not equal the root key")
	}
}

func TestBootstrapRequiresSecret(t *testing.T) {
	if _, err := newTestVerifier().Bootstrap(nil, nil); err == nil {
		t.Error("Bootstrap should reject an empty secret")
	}
}
