package dtls

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/lanikai/rtcdc/internal/packet"
)

// recordHeaderLength is the fixed 13-byte DTLS record header: content type
// (1), version (2), epoch (2), sequence number (6), length (2).
const recordHeaderLength = 13

// record is one DTLS record, either plaintext (during the handshake, for
// handshake/alert/change-cipher-spec content) or the additional-data view of
// a ciphertext record used when building/opening an AEAD record.
type record struct {
	contentType ContentType
	version     protocolVersion
	epoch       uint16
	sequence    uint64 // 48-bit
	fragment    []byte
}

func marshalRecord(r record) []byte {
	w := packet.NewWriterSize(recordHeaderLength + len(r.fragment))
	w.WriteByte(byte(r.contentType))
	w.WriteByte(r.version.major)
	w.WriteByte(r.version.minor)
	w.WriteUint16(r.epoch)
	// 48-bit sequence number.
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], r.sequence)
	_ = w.WriteSlice(seq[2:8])
	w.WriteUint16(uint16(len(r.fragment)))
	_ = w.WriteSlice(r.fragment)
	return w.Bytes()
}

// parseRecords splits a UDP datagram into the individual DTLS records it may
// contain (a peer may coalesce several records into one datagram).
func parseRecords(buf []byte) ([]record, error) {
	var records []record
	r := packet.NewReader(buf)
	for r.Remaining() > 0 {
		if err := r.CheckRemaining(recordHeaderLength); err != nil {
			return nil, ErrShortRecord
		}
		contentType := ContentType(r.ReadByte())
		version := protocolVersion{r.ReadByte(), r.ReadByte()}
		epoch := r.ReadUint16()
		seqHi := r.ReadUint16()
		seqLo := r.ReadUint32()
		sequence := uint64(seqHi)<<32 | uint64(seqLo)
		length := r.ReadUint16()
		if err := r.CheckRemaining(int(length)); err != nil {
			return nil, ErrShortRecord
		}
		fragment := r.ReadSlice(int(length))
		records = append(records, record{
			contentType: contentType,
			version:     version,
			epoch:       epoch,
			sequence:    sequence,
			fragment:    fragment,
		})
	}
	return records, nil
}

// recordNonce builds the 12-byte AES-GCM nonce for a record: a 4-byte
// implicit salt (from the key block) followed by the 8-byte explicit part,
// which this implementation takes to be epoch||sequence per RFC 6347/5246.
func recordNonce(salt [4]byte, epoch uint16, sequence uint64) []byte {
	nonce := make([]byte, 12)
	copy(nonce[0:4], salt[:])
	binary.BigEndian.PutUint16(nonce[4:6], epoch)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	copy(nonce[6:12], seq[2:8])
	return nonce
}

// sealRecord encrypts fragment as the payload of an application-data or
// handshake record at the given epoch/sequence, returning the full
// ciphertext record (explicit nonce is omitted from the wire format here;
// epoch+sequence recovers it on the receiving side since both are already
// visible in the record header, matching this profile's fixed-nonce-derivation
// convention).
func sealRecord(aead cipher.AEAD, salt [4]byte, contentType ContentType, epoch uint16, sequence uint64, plaintext []byte) []byte {
	nonce := recordNonce(salt, epoch, sequence)
	additionalData := recordAdditionalData(contentType, epoch, sequence, len(plaintext))
	ciphertext := aead.Seal(nil, nonce, plaintext, additionalData)
	return marshalRecord(record{
		contentType: contentType,
		version:     versionDTLS1_2,
		epoch:       epoch,
		sequence:    sequence,
		fragment:    ciphertext,
	})
}

func openRecord(aead cipher.AEAD, salt [4]byte, r record) ([]byte, error) {
	nonce := recordNonce(salt, r.epoch, r.sequence)
	additionalData := recordAdditionalData(r.contentType, r.epoch, r.sequence, len(r.fragment)-aead.Overhead())
	plaintext, err := aead.Open(nil, nonce, r.fragment, additionalData)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// recordAdditionalData builds the AEAD additional authenticated data per
// RFC 5246 §6.2.3.3 / RFC 6347: epoch(2) || sequence(6) || type(1) ||
// version(2) || length(2) of the plaintext.
func recordAdditionalData(contentType ContentType, epoch uint16, sequence uint64, plaintextLength int) []byte {
	ad := make([]byte, 13)
	binary.BigEndian.PutUint16(ad[0:2], epoch)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	copy(ad[2:8], seq[2:8])
	ad[8] = byte(contentType)
	ad[9] = versionDTLS1_2.major
	ad[10] = versionDTLS1_2.minor
	binary.BigEndian.PutUint16(ad[11:13], uint16(plaintextLength))
	return ad
}
