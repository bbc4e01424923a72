package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/security"
)

var testHashConfig = config.SecretHashConfig{
	ArgonMemoryKB:    32768,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := security.HashSecret("partner-secret", testHashConfig)
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifySecret("partner-secret", hash)
	if err != nil || !ok {
		t.Fatalf("expected secret to verify, ok=%v err=%v", ok, err)
	}
	ok, err = security.VerifySecret("wrong", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}

	if _, err := security.HashSecret("", testHashConfig); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifySecretBadHash(t *testing.T) {
	for _, encoded := range []string{"", "$bcrypt$x", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA"} {
		if _, err := security.VerifySecret("secret", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestIssueCredentials(t *testing.T) {
	creds, err := security.IssueCredentials(testHashConfig)
	if err != nil {
		t.Fatalf("IssueCredentials: %v", err)
	}
	if !strings.HasPrefix(creds.APIKey, "pk_") || len(creds.APIKey) != 35 {
		t.Fatalf("unexpected api key %q", creds.APIKey)
	}
	ok, err := security.VerifySecret(creds.Secret, creds.SecretHash)
	if err != nil || !ok {
		t.Fatalf("issued secret does not verify: ok=%v err=%v", ok, err)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"external_reference":"wd_1","outcome":"SUCCESS"}`)
	sig := security.SignPayload("whsec", body)

	if !security.VerifySignature("whsec", body, sig) {
		t.Fatal("expected signature to verify")
	}
	if !security.VerifySignature("whsec", body, strings.TrimPrefix(sig, "sha256=")) {
		t.Fatal("expected bare hex signature to verify")
	}
	if security.VerifySignature("other", body, sig) {
		t.Fatal("expected wrong secret to fail")
	}
	if security.VerifySignature("whsec", append(body, ' '), sig) {
		t.Fatal("expected tampered body to fail")
	}
	if security.VerifySignature("", body, sig) {
		t.Fatal("expected empty secret to fail")
	}
}
