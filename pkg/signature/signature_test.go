package signature

import (
	"testing"

	"github.com/snowtabby/engine/pkg/server"
)

func newTestServer(t *testing.T, seed string) *server.Server {
	t.Helper()
	srv, err := server.Generate([]byte(seed))
	if err != nil {
		t.Fatalf("server.Generate: %v", err)
	}
	return srv
}

func TestSignThenVerifySucceeds(t *testing.T) {
	srv := newTestServer(t, "sig-seed-1")
	sp, err := srv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	message := []byte("hello")

	sig, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(message, sp, sig[:]) {
		t.Fatal("Verify rejected a freshly produced signature")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	srv := newTestServer(t, "sig-seed-2")
	message := []byte("deterministic nonce message")

	first, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if first != second {
		t.Fatal("signing the same message twice produced different signatures")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	srv := newTestServer(t, "sig-seed-3")
	sp, _ := srv.PublicKey()
	message := []byte("tamper me")

	sig, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := sig
	tampered[Size-1] ^= 0xFF

	if Verify(message, sp, tampered[:]) {
		t.Fatal("Verify accepted a tampered signature")
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	srv := newTestServer(t, "sig-seed-4")
	sp, _ := srv.PublicKey()
	message := []byte("original message")

	sig, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify([]byte("different message"), sp, sig[:]) {
		t.Fatal("Verify accepted a signature over a different message")
	}
}

func TestVerifyRejectsWrongPublicKey(t *testing.T) {
	srv := newTestServer(t, "sig-seed-5")
	other := newTestServer(t, "sig-seed-5-other")
	wrongSP, _ := other.PublicKey()
	message := []byte("some message")

	sig, err := Sign(srv, message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(message, wrongSP, sig[:]) {
		t.Fatal("Verify accepted a signature under the wrong public key")
	}
}

func TestVerifyRejectsWrongLength(t *testing.T) {
	srv := newTestServer(t, "sig-seed-6")
	sp, _ := srv.PublicKey()
	if Verify([]byte("m"), sp, make([]byte, Size-1)) {
		t.Fatal("Verify accepted an undersized signature buffer")
	}
}

func TestDifferentMessagesProduceDifferentSignatures(t *testing.T) {
	srv := newTestServer(t, "sig-seed-7")
	a, err := Sign(srv, []byte("message a"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := Sign(srv, []byte("message b"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a == b {
		t.Fatal("two different messages produced the same signature")
	}
}
