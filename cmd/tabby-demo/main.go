// tabby-demo exercises the three engine protocols end to end: a
// handshake, a signature, and one password-authenticated key exchange
// round, all over an in-process pipe rather than a network transport.
//
// Usage:
//
//	tabby-demo [options]
//
// Options:
//
//	-profile   password profile, "desktop" or "mobile" (default: "desktop")
//	-username  PAKE username (default: "alice")
//	-realm     PAKE realm (default: "tabby.test")
//	-password  PAKE password (default: "correct horse battery staple")
//
// Example:
//
//	tabby-demo -profile mobile -username bob
package main

import (
	"flag"
	"log"

	"github.com/snowtabby/engine/pkg/handshake"
	"github.com/snowtabby/engine/pkg/password"
	"github.com/snowtabby/engine/pkg/server"
	"github.com/snowtabby/engine/pkg/signature"
)

func main() {
	profileName := flag.String("profile", "desktop", "password profile: desktop or mobile")
	username := flag.String("username", "alice", "PAKE username")
	realm := flag.String("realm", "tabby.test", "PAKE realm")
	pass := flag.String("password", "correct horse battery staple", "PAKE password")
	flag.Parse()

	profile := password.Desktop
	if *profileName == "mobile" {
		profile = password.Mobile
	}

	srv, err := server.Generate([]byte("tabby-demo-server-seed"))
	if err != nil {
		log.Fatalf("server.Generate: %v", err)
	}

	runHandshake(srv)
	runSignature(srv)
	runPassword(srv, profile, []byte(*username), []byte(*realm), []byte(*pass))
}

func runHandshake(srv *server.Server) {
	client, err := handshake.NewClient([]byte("tabby-demo-client-seed"))
	if err != nil {
		log.Fatalf("handshake.NewClient: %v", err)
	}

	request, err := client.Request()
	if err != nil {
		log.Fatalf("client.Request: %v", err)
	}

	response, serverKey, err := handshake.Respond(srv, request[:])
	if err != nil {
		log.Fatalf("handshake.Respond: %v", err)
	}

	sp, err := srv.PublicKey()
	if err != nil {
		log.Fatalf("srv.PublicKey: %v", err)
	}

	clientKey, err := handshake.Verify(client, sp, response[:])
	if err != nil {
		log.Fatalf("handshake.Verify: %v", err)
	}

	if clientKey != serverKey {
		log.Fatalf("handshake: session keys disagree")
	}
	log.Printf("handshake: session key established (%d bytes)", len(clientKey))
}

func runSignature(srv *server.Server) {
	message := []byte("tabby-demo signed message")
	sig, err := signature.Sign(srv, message)
	if err != nil {
		log.Fatalf("signature.Sign: %v", err)
	}

	sp, err := srv.PublicKey()
	if err != nil {
		log.Fatalf("srv.PublicKey: %v", err)
	}

	if !signature.Verify(message, sp, sig[:]) {
		log.Fatalf("signature: verification failed")
	}
	log.Printf("signature: verified %d-byte signature", len(sig))
}

func runPassword(srv *server.Server, profile password.Profile, username, realm, pass []byte) {
	verifier, err := password.GenerateVerifier(profile, []byte("tabby-demo-enroll-seed"), username, realm, pass)
	if err != nil {
		log.Fatalf("password.GenerateVerifier: %v", err)
	}

	challenge, secret, err := password.ServerChallenge(profile, srv, verifier)
	if err != nil {
		log.Fatalf("password.ServerChallenge: %v", err)
	}

	sp, err := srv.PublicKey()
	if err != nil {
		log.Fatalf("srv.PublicKey: %v", err)
	}

	message, expectedServerProof, err := password.ClientProof(
		profile, []byte("tabby-demo-login-seed"), username, realm, pass, sp, challenge)
	if err != nil {
		log.Fatalf("password.ClientProof: %v", err)
	}

	serverProof, err := password.ServerVerify(secret, sp, message)
	if err != nil {
		log.Fatalf("password.ServerVerify: %v", err)
	}

	if !password.ClientVerifyServerProof(expectedServerProof, serverProof) {
		log.Fatalf("password: server proof rejected")
	}
	log.Printf("password: mutual authentication succeeded (%d-byte verifier)", len(verifier))
}
