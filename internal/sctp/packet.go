package sctp

import (
	"encoding/binary"
	"hash/crc32"
)

// commonHeaderLength is the fixed 12-byte SCTP common header: source port
// (2), destination port (2), verification tag (4), checksum (4).
const commonHeaderLength = 12

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type commonHeader struct {
	srcPort         uint16
	dstPort         uint16
	verificationTag uint32
}

// marshalPacket assembles one SCTP packet from a common header and the
// already-marshaled chunks, appending the RFC 4960 Appendix B CRC32c
// checksum (not the legacy Adler-32 from RFC 2960).
func marshalPacket(h commonHeader, chunks [][]byte) []byte {
	total := commonHeaderLength
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, total)
	binary.BigEndian.PutUint16(out[0:2], h.srcPort)
	binary.BigEndian.PutUint16(out[2:4], h.dstPort)
	binary.BigEndian.PutUint32(out[4:8], h.verificationTag)
	// Checksum field (bytes 8:12) is zero while computing the checksum.

	offset := commonHeaderLength
	for _, c := range chunks {
		copy(out[offset:], c)
		offset += len(c)
	}

	sum := crc32.Checksum(out, crc32cTable)
	binary.BigEndian.PutUint32(out[8:12], sum)
	return out
}

// parsePacket validates the checksum and splits the packet into its common
// header and chunk TLV buffers (each still to be parsed by its specific
// chunk type).
func parsePacket(buf []byte) (commonHeader, [][]byte, error) {
	if len(buf) < commonHeaderLength {
		return commonHeader{}, nil, ErrShortPacket
	}

	gotChecksum := binary.BigEndian.Uint32(buf[8:12])
	check := make([]byte, len(buf))
	copy(check, buf)
	binary.BigEndian.PutUint32(check[8:12], 0)
	wantChecksum := crc32.Checksum(check, crc32cTable)
	if gotChecksum != wantChecksum {
		return commonHeader{}, nil, ErrChecksumMismatch
	}

	h := commonHeader{
		srcPort:         binary.BigEndian.Uint16(buf[0:2]),
		dstPort:         binary.BigEndian.Uint16(buf[2:4]),
		verificationTag: binary.BigEndian.Uint32(buf[4:8]),
	}

	chunks, err := splitChunks(buf[commonHeaderLength:])
	if err != nil {
		return commonHeader{}, nil, err
	}
	return h, chunks, nil
}

// splitChunks walks a buffer of concatenated, 4-byte-padded chunk TLVs and
// returns each chunk's raw bytes (header + unpadded body), as declared by
// its own length field.
func splitChunks(buf []byte) ([][]byte, error) {
	var chunks [][]byte
	for len(buf) > 0 {
		if len(buf) < chunkHeaderLength {
			return nil, ErrShortChunk
		}
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < chunkHeaderLength || length > len(buf) {
			return nil, ErrShortChunk
		}
		chunks = append(chunks, buf[:length])
		padded := paddedLength(length)
		if padded > len(buf) {
			padded = len(buf)
		}
		buf = buf[padded:]
	}
	return chunks, nil
}

// paddedLength rounds n up to the next multiple of 4, per RFC 4960 §3.2's
// chunk padding requirement.
func paddedLength(n int) int {
	return (n + 3) &^ 3
}
