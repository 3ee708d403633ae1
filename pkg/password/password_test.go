package password

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

func runRound(t *testing.T, profile Profile, srv *server.Server, username, realm, pass []byte) (clientAcceptedServer bool) {
	t.Helper()
	sp, err := srv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	verifier, err := GenerateVerifier(profile, []byte("enroll-seed"), username, realm, pass)
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}

	challenge, secret, err := ServerChallenge(profile, srv, verifier)
	if err != nil {
		t.Fatalf("ServerChallenge: %v", err)
	}

	message, expectedServerProof, err := ClientProof(profile, []byte("login-seed"), username, realm, pass, sp, challenge)
	if err != nil {
		t.Fatalf("ClientProof: %v", err)
	}

	serverProof, err := ServerVerify(secret, sp, message)
	if err != nil {
		t.Fatalf("ServerVerify: %v", err)
	}

	return ClientVerifyServerProof(expectedServerProof, serverProof)
}

func TestDesktopProfileMutualAccept(t *testing.T) {
	srv := newTestServer(t, "pw-desktop-seed")
	if !runRound(t, Desktop, srv, []byte("alice"), []byte("tabby.test"), []byte("correct horse battery staple")) {
		t.Fatal("desktop profile: client rejected the server's proof")
	}
}

func TestMobileProfileMutualAccept(t *testing.T) {
	srv := newTestServer(t, "pw-mobile-seed")
	if !runRound(t, Mobile, srv, []byte("alice"), []byte("tabby.test"), []byte("correct horse battery staple")) {
		t.Fatal("mobile profile: client rejected the server's proof")
	}
}

func TestVerifierSizesDifferPerProfile(t *testing.T) {
	desktop, err := GenerateVerifier(Desktop, []byte("seed"), []byte("u"), []byte("r"), []byte("p"))
	if err != nil {
		t.Fatalf("GenerateVerifier(Desktop): %v", err)
	}
	mobile, err := GenerateVerifier(Mobile, []byte("seed"), []byte("u"), []byte("r"), []byte("p"))
	if err != nil {
		t.Fatalf("GenerateVerifier(Mobile): %v", err)
	}
	if len(desktop) != 72 {
		t.Errorf("desktop verifier size = %d, want 72", len(desktop))
	}
	if len(mobile) != 80 {
		t.Errorf("mobile verifier size = %d, want 80", len(mobile))
	}
}

func TestWrongPasswordRejected(t *testing.T) {
	srv := newTestServer(t, "pw-wrongpass-seed")
	username := []byte("alice")
	realm := []byte("tabby.test")

	verifier, err := GenerateVerifier(Desktop, []byte("enroll-seed"), username, realm, []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}
	sp, _ := srv.PublicKey()
	challenge, secret, err := ServerChallenge(Desktop, srv, verifier)
	if err != nil {
		t.Fatalf("ServerChallenge: %v", err)
	}

	message, _, err := ClientProof(Desktop, []byte("login-seed"), username, realm, []byte("correct horse battery stauple"), sp, challenge)
	if err != nil {
		t.Fatalf("ClientProof: %v", err)
	}

	if _, err := ServerVerify(secret, sp, message); err != ErrFailed {
		t.Fatalf("ServerVerify with the wrong password error = %v, want ErrFailed", err)
	}
}

func TestWrongUsernameRejected(t *testing.T) {
	srv := newTestServer(t, "pw-wronguser-seed")
	realm := []byte("tabby.test")
	pass := []byte("correct horse battery staple")

	verifier, err := GenerateVerifier(Desktop, []byte("enroll-seed"), []byte("alice"), realm, pass)
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}
	sp, _ := srv.PublicKey()
	challenge, secret, err := ServerChallenge(Desktop, srv, verifier)
	if err != nil {
		t.Fatalf("ServerChallenge: %v", err)
	}

	message, _, err := ClientProof(Desktop, []byte("login-seed"), []byte("bob"), realm, pass, sp, challenge)
	if err != nil {
		t.Fatalf("ClientProof: %v", err)
	}

	if _, err := ServerVerify(secret, sp, message); err != ErrFailed {
		t.Fatalf("ServerVerify with the wrong username error = %v, want ErrFailed", err)
	}
}

func TestWrongServerStaticKeyRejected(t *testing.T) {
	srv := newTestServer(t, "pw-wrongserver-seed")
	other := newTestServer(t, "pw-wrongserver-seed-other")
	wrongSP, _ := other.PublicKey()

	username := []byte("alice")
	realm := []byte("tabby.test")
	pass := []byte("correct horse battery staple")

	verifier, err := GenerateVerifier(Desktop, []byte("enroll-seed"), username, realm, pass)
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}
	challenge, secret, err := ServerChallenge(Desktop, srv, verifier)
	if err != nil {
		t.Fatalf("ServerChallenge: %v", err)
	}

	message, _, err := ClientProof(Desktop, []byte("login-seed"), username, realm, pass, wrongSP, challenge)
	if err != nil {
		t.Fatalf("ClientProof: %v", err)
	}

	sp, _ := srv.PublicKey()
	if _, err := ServerVerify(secret, sp, message); err != ErrFailed {
		t.Fatalf("ServerVerify with a client bound to the wrong server key error = %v, want ErrFailed", err)
	}
}

func TestProfilesDoNotCrossWire(t *testing.T) {
	srv := newTestServer(t, "pw-crosswire-seed")
	username := []byte("alice")
	realm := []byte("tabby.test")
	pass := []byte("correct horse battery staple")

	verifier, err := GenerateVerifier(Mobile, []byte("enroll-seed"), username, realm, pass)
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}
	sp, _ := srv.PublicKey()

	// A desktop-profile challenge is the wrong size for a mobile verifier,
	// so the round must fail outright rather than silently succeed under
	// mismatched profile constants.
	if _, _, err := ServerChallenge(Desktop, srv, verifier); err != ErrFailed {
		t.Fatalf("ServerChallenge(Desktop, mobileVerifier) error = %v, want ErrFailed", err)
	}
}
