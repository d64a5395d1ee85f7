package dtls

import (
	"bytes"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func concat(records [][]byte) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// driveHandshake exchanges FeedInput datagrams between client and server
// until both reach StateConnected (or a bounded number of round trips
// elapses without progress, which would indicate a stuck handshake).
func driveHandshake(t *testing.T, client, server *Conn) {
	t.Helper()

	toServer, err := client.Start(fixedNow)
	if err != nil {
		t.Fatalf("client.Start: %v", err)
	}

	for round := 0; round < 10; round++ {
		if client.State() == StateConnected && server.State() == StateConnected {
			return
		}

		var toClient [][]byte
		if len(toServer) > 0 {
			send, _, err := server.FeedInput(concat(toServer), fixedNow)
			if err != nil {
				t.Fatalf("server.FeedInput (round %d): %v", round, err)
			}
			toClient = send
		}

		toServer = nil
		if len(toClient) > 0 {
			send, _, err := client.FeedInput(concat(toClient), fixedNow)
			if err != nil {
				t.Fatalf("client.FeedInput (round %d): %v", round, err)
			}
			toServer = send
		}

		if client.State() == StateConnected && server.State() == StateConnected {
			return
		}
	}
	t.Fatalf("handshake did not complete: client=%s server=%s", client.State(), server.State())
}

func TestFullHandshakeECDSA(t *testing.T) {
	clientCert, err := GenerateCertificate(CertificateECDSA)
	if err != nil {
		t.Fatalf("GenerateCertificate(client): %v", err)
	}
	serverCert, err := GenerateCertificate(CertificateECDSA)
	if err != nil {
		t.Fatalf("GenerateCertificate(server): %v", err)
	}

	client := NewConn(Config{
		Role:               RoleClient,
		Certificate:        clientCert,
		RemoteFingerprints: map[string]string{"sha-256": serverCert.Fingerprint()},
	})
	server := NewConn(Config{
		Role:               RoleServer,
		Certificate:        serverCert,
		RemoteFingerprints: map[string]string{"sha-256": clientCert.Fingerprint()},
	})

	driveHandshake(t, client, server)

	if client.State() != StateConnected {
		t.Fatalf("client state = %s, want connected", client.State())
	}
	if server.State() != StateConnected {
		t.Fatalf("server state = %s, want connected", server.State())
	}
	if client.NegotiatedCipherSuite() != TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 {
		t.Errorf("negotiated cipher suite = %#x, want ECDSA suite", client.NegotiatedCipherSuite())
	}

	if got := client.PeerCertificate(); got == nil || !bytes.Equal(got.Raw, serverCert.DER) {
		t.Error("client's peer certificate does not match the server's certificate")
	}
	if got := server.PeerCertificate(); got == nil || !bytes.Equal(got.Raw, clientCert.DER) {
		t.Error("server's peer certificate does not match the client's certificate")
	}

	// Application data flows both directions post-handshake.
	msg := []byte("hello over dtls")
	rec, err := client.WriteApplicationData(msg)
	if err != nil {
		t.Fatalf("client.WriteApplicationData: %v", err)
	}
	_, app, err := server.FeedInput(rec, fixedNow)
	if err != nil {
		t.Fatalf("server.FeedInput(app data): %v", err)
	}
	if len(app) != 1 || !bytes.Equal(app[0], msg) {
		t.Fatalf("server received %v, want %q", app, msg)
	}

	reply := []byte("hello back")
	rec, err = server.WriteApplicationData(reply)
	if err != nil {
		t.Fatalf("server.WriteApplicationData: %v", err)
	}
	_, app, err = client.FeedInput(rec, fixedNow)
	if err != nil {
		t.Fatalf("client.FeedInput(app data): %v", err)
	}
	if len(app) != 1 || !bytes.Equal(app[0], reply) {
		t.Fatalf("client received %v, want %q", app, reply)
	}
}

func TestFullHandshakeRSA(t *testing.T) {
	clientCert, err := GenerateCertificate(CertificateRSA)
	if err != nil {
		t.Fatalf("GenerateCertificate(client): %v", err)
	}
	serverCert, err := GenerateCertificate(CertificateRSA)
	if err != nil {
		t.Fatalf("GenerateCertificate(server): %v", err)
	}

	client := NewConn(Config{
		Role:               RoleClient,
		Certificate:        clientCert,
		RemoteFingerprints: map[string]string{"sha-256": serverCert.Fingerprint()},
	})
	server := NewConn(Config{
		Role:               RoleServer,
		Certificate:        serverCert,
		RemoteFingerprints: map[string]string{"sha-256": clientCert.Fingerprint()},
	})

	driveHandshake(t, client, server)

	if client.State() != StateConnected || server.State() != StateConnected {
		t.Fatalf("handshake failed to connect: client=%s server=%s", client.State(), server.State())
	}
	if client.NegotiatedCipherSuite() != TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Errorf("negotiated cipher suite = %#x, want RSA suite", client.NegotiatedCipherSuite())
	}
}

func TestHandshakeFailsOnFingerprintMismatch(t *testing.T) {
	clientCert, _ := GenerateCertificate(CertificateECDSA)
	serverCert, _ := GenerateCertificate(CertificateECDSA)
	otherCert, _ := GenerateCertificate(CertificateECDSA)

	client := NewConn(Config{
		Role:               RoleClient,
		Certificate:        clientCert,
		RemoteFingerprints: map[string]string{"sha-256": otherCert.Fingerprint()}, // wrong fingerprint
	})
	server := NewConn(Config{
		Role:               RoleServer,
		Certificate:        serverCert,
		RemoteFingerprints: map[string]string{"sha-256": clientCert.Fingerprint()},
	})

	toServer, err := client.Start(fixedNow)
	if err != nil {
		t.Fatalf("client.Start: %v", err)
	}

	var toClient [][]byte
	for round := 0; round < 6; round++ {
		if len(toServer) > 0 {
			send, _, err := server.FeedInput(concat(toServer), fixedNow)
			if err != nil {
				t.Fatalf("server.FeedInput: %v", err)
			}
			toClient = send
		}
		toServer = nil
		if len(toClient) > 0 {
			send, _, err := client.FeedInput(concat(toClient), fixedNow)
			if err != nil {
				// Client is expected to reject the server's Finished flight
				// because the advertised fingerprint doesn't match.
				return
			}
			toServer = send
		}
	}
	t.Fatal("expected handshake to fail on fingerprint mismatch, but it did not")
}
