package dtls

import "testing"

func TestPHashLengthAndDeterminism(t *testing.T) {
	secret := []byte("a secret")
	seed := []byte("a seed")

	out1 := pHash(secret, seed, 40)
	if len(out1) != 40 {
		t.Fatalf("len(out1) = %d, want 40", len(out1))
	}
	out2 := pHash(secret, seed, 40)
	if string(out1) != string(out2) {
		t.Error("pHash is not deterministic for identical inputs")
	}

	// A longer request should reuse the same leading bytes as a shorter one,
	// since P_hash just keeps appending HMAC iterations.
	long := pHash(secret, seed, 80)
	if string(long[:40]) != string(out1) {
		t.Error("pHash's longer output should share a prefix with the shorter one")
	}
}

func TestPRFDiffersByLabel(t *testing.T) {
	secret := []byte("master secret material!!")
	seed := []byte("client-random||server-random")

	a := prf(secret, []byte("client finished"), seed, 12)
	b := prf(secret, []byte("server finished"), seed, 12)
	if string(a) == string(b) {
		t.Error("prf output should differ between client and server Finished labels")
	}
}

func TestDeriveKeyBlockDeterministic(t *testing.T) {
	masterSecret := make([]byte, 48)
	for i := range masterSecret {
		masterSecret[i] = byte(i * 3)
	}
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	for i := range clientRandom {
		clientRandom[i] = byte(i)
		serverRandom[i] = byte(255 - i)
	}

	kb1 := deriveKeyBlock(masterSecret, clientRandom, serverRandom)
	kb2 := deriveKeyBlock(masterSecret, clientRandom, serverRandom)
	if kb1 != kb2 {
		t.Error("deriveKeyBlock should be deterministic for identical inputs")
	}
	if kb1.clientWriteKey == kb1.serverWriteKey {
		t.Error("client and server write keys should differ")
	}
	if kb1.clientWriteIV == kb1.serverWriteIV {
		t.Error("client and server write IVs should differ")
	}
}

func TestExtendedMasterSecretBindsTranscript(t *testing.T) {
	preMaster := []byte("ecdhe shared secret")
	t1 := []byte("transcript one")
	t2 := []byte("transcript two")

	m1 := extendedMasterSecret(preMaster, t1)
	m2 := extendedMasterSecret(preMaster, t2)
	if len(m1) != 48 {
		t.Fatalf("len(masterSecret) = %d, want 48", len(m1))
	}
	if string(m1) == string(m2) {
		t.Error("extendedMasterSecret should depend on the transcript")
	}
}

func TestFinishedVerifyDataLength(t *testing.T) {
	masterSecret := make([]byte, 48)
	verifyData := finishedVerifyData(masterSecret, "client finished", []byte("some transcript"))
	if len(verifyData) != verifyDataLength {
		t.Fatalf("len(verifyData) = %d, want %d", len(verifyData), verifyDataLength)
	}
}
