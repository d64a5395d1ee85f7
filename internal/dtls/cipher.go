package dtls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
)

// prf implements the TLS 1.2 pseudorandom function (RFC 5246 §5): P_hash
// built from HMAC-SHA256 applied repeatedly to an expanding seed. This is a
// seed-repetition construction, distinct from HKDF-Expand's counter-based
// one, so it is implemented directly against crypto/hmac rather than
// borrowed from an HKDF package.
func prf(secret, label, seed []byte, length int) []byte {
	labelAndSeed := make([]byte, 0, len(label)+len(seed))
	labelAndSeed = append(labelAndSeed, label...)
	labelAndSeed = append(labelAndSeed, seed...)
	return pHash(secret, labelAndSeed, length)
}

func pHash(secret, seed []byte, length int) []byte {
	out := make([]byte, 0, length)
	mac := hmac.New(sha256.New, secret)

	mac.Write(seed)
	a := mac.Sum(nil)

	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}
	return out[:length]
}

// sessionHash is SHA-256 over the full handshake transcript so far, used by
// the extended master secret derivation (RFC 7627) in place of
// client_random||server_random.
func sessionHash(transcript []byte) []byte {
	h := sha256.Sum256(transcript)
	return h[:]
}

// extendedMasterSecret derives the 48-byte master secret per RFC 7627.
func extendedMasterSecret(preMasterSecret, transcript []byte) []byte {
	return prf(preMasterSecret, []byte("extended master secret"), sessionHash(transcript), 48)
}

// keyBlock holds the connection keys derived for AES-128-GCM, which needs
// only write keys and a 4-byte implicit IV (salt) per side; GCM's explicit
// nonce portion is carried by the record sequence number instead of key
// material.
type keyBlock struct {
	clientWriteKey [16]byte
	serverWriteKey [16]byte
	clientWriteIV  [4]byte
	serverWriteIV  [4]byte
}

func deriveKeyBlock(masterSecret, clientRandom, serverRandom []byte) keyBlock {
	seed := make([]byte, 0, len(serverRandom)+len(clientRandom))
	seed = append(seed, serverRandom...)
	seed = append(seed, clientRandom...)
	material := prf(masterSecret, []byte("key expansion"), seed, 2*16+2*4)

	var kb keyBlock
	copy(kb.clientWriteKey[:], material[0:16])
	copy(kb.serverWriteKey[:], material[16:32])
	copy(kb.clientWriteIV[:], material[32:36])
	copy(kb.serverWriteIV[:], material[36:40])
	return kb
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// finishedVerifyData computes the Finished message's verify_data: the first
// 12 bytes of PRF(master_secret, label, session_hash(transcript)).
func finishedVerifyData(masterSecret []byte, label string, transcript []byte) []byte {
	return prf(masterSecret, []byte(label), sessionHash(transcript), verifyDataLength)
}
