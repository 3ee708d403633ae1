package handshake

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

func TestHandshakeRoundTripAgrees(t *testing.T) {
	srv := newTestServer(t, "hs-server-seed")
	sp, err := srv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	client, err := NewClient([]byte("hs-client-seed"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	request, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	response, serverKey, err := Respond(srv, request[:])
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	clientKey, err := Verify(client, sp, response[:])
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if clientKey != serverKey {
		t.Fatal("client and server derived different session keys")
	}
}

func TestHandshakeRejectsWrongStaticKey(t *testing.T) {
	srv := newTestServer(t, "hs-server-seed-2")
	other := newTestServer(t, "hs-other-seed")
	wrongSP, err := other.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	client, err := NewClient([]byte("hs-client-seed-2"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	request, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	response, _, err := Respond(srv, request[:])
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if _, err := Verify(client, wrongSP, response[:]); err != ErrFailed {
		t.Fatalf("Verify against the wrong static key error = %v, want ErrFailed", err)
	}
}

func TestHandshakeRejectsTamperedProof(t *testing.T) {
	srv := newTestServer(t, "hs-server-seed-3")
	sp, _ := srv.PublicKey()

	client, err := NewClient([]byte("hs-client-seed-3"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	request, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	response, _, err := Respond(srv, request[:])
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	response[ServerResponseSize-1] ^= 0xFF

	if _, err := Verify(client, sp, response[:]); err != ErrFailed {
		t.Fatalf("Verify on tampered response error = %v, want ErrFailed", err)
	}
}

func TestHandshakeProducesDistinctKeysAcrossSessions(t *testing.T) {
	srv := newTestServer(t, "hs-server-seed-4")
	sp, _ := srv.PublicKey()

	seen := make(map[[SessionKeySize]byte]bool)
	for i := 0; i < 64; i++ {
		client, err := NewClient([]byte{byte(i)})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		request, err := client.Request()
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		response, _, err := Respond(srv, request[:])
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		key, err := Verify(client, sp, response[:])
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if seen[key] {
			t.Fatalf("session key repeated across handshakes at iteration %d", i)
		}
		seen[key] = true
	}
}

func TestRekeyClientDoesNotRepeatEphemeralState(t *testing.T) {
	parent, err := NewClient([]byte("hs-rekey-seed"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	child, err := RekeyClient(parent, []byte("hs-rekey-context"))
	if err != nil {
		t.Fatalf("RekeyClient: %v", err)
	}

	parentReq, err := parent.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	childReq, err := child.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if parentReq == childReq {
		t.Fatal("a rekeyed client produced the same request as its parent")
	}
}

func TestClearUninitializesClient(t *testing.T) {
	client, err := NewClient([]byte("hs-clear-seed"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.Clear()
	if _, err := client.Request(); err != ErrFailed {
		t.Fatalf("Request after Clear error = %v, want ErrFailed", err)
	}
}

func TestRespondRejectsWrongRequestLength(t *testing.T) {
	srv := newTestServer(t, "hs-server-seed-5")
	if _, _, err := Respond(srv, make([]byte, ClientRequestSize-1)); err != ErrFailed {
		t.Fatalf("Respond on short request error = %v, want ErrFailed", err)
	}
}
