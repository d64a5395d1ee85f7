package dtls

import (
	"github.com/lanikai/rtcdc/internal/packet"
)

type extension struct {
	extensionType ExtensionType
	data          []byte
}

func marshalExtensions(exts []extension) []byte {
	total := 2
	for _, e := range exts {
		total += 4 + len(e.data)
	}
	w := packet.NewWriterSize(total)
	w.WriteUint16(uint16(total - 2))
	for _, e := range exts {
		w.WriteUint16(uint16(e.extensionType))
		w.WriteUint16(uint16(len(e.data)))
		_ = w.WriteSlice(e.data)
	}
	return w.Bytes()
}

func parseExtensions(r *packet.Reader) ([]extension, error) {
	if r.Remaining() == 0 {
		return nil, nil
	}
	if err := r.CheckRemaining(2); err != nil {
		return nil, err
	}
	total := int(r.ReadUint16())
	if err := r.CheckRemaining(total); err != nil {
		return nil, err
	}
	var exts []extension
	remaining := total
	for remaining > 0 {
		extType := ExtensionType(r.ReadUint16())
		length := int(r.ReadUint16())
		data := r.ReadSlice(length)
		exts = append(exts, extension{extensionType: extType, data: data})
		remaining -= 4 + length
	}
	return exts, nil
}

func findExtension(exts []extension, t ExtensionType) (extension, bool) {
	for _, e := range exts {
		if e.extensionType == t {
			return e, true
		}
	}
	return extension{}, false
}

// signatureAlgorithmsExtensionData marshals the signature_algorithms extension
// body: a list of (hash, signature) pairs, most preferred first.
func signatureAlgorithmsExtensionData(schemes []SignatureScheme) []byte {
	w := packet.NewWriterSize(2 + 2*len(schemes))
	w.WriteUint16(uint16(2 * len(schemes)))
	for _, s := range schemes {
		w.WriteUint16(uint16(s))
	}
	return w.Bytes()
}

func parseSignatureAlgorithms(data []byte) []SignatureScheme {
	r := packet.NewReader(data)
	if r.Remaining() < 2 {
		return nil
	}
	n := int(r.ReadUint16()) / 2
	schemes := make([]SignatureScheme, 0, n)
	for i := 0; i < n && r.Remaining() >= 2; i++ {
		schemes = append(schemes, SignatureScheme(r.ReadUint16()))
	}
	return schemes
}

func supportedGroupsExtensionData(curves []NamedCurve) []byte {
	w := packet.NewWriterSize(2 + 2*len(curves))
	w.WriteUint16(uint16(2 * len(curves)))
	for _, c := range curves {
		w.WriteUint16(uint16(c))
	}
	return w.Bytes()
}

func ecPointFormatsExtensionData() []byte {
	// A single supported format: uncompressed (0).
	w := packet.NewWriterSize(2)
	w.WriteByte(1)
	w.WriteByte(0)
	return w.Bytes()
}

func clientHelloExtensions(schemes []SignatureScheme) []extension {
	return []extension{
		{extensionType: ExtensionExtendedMasterSecret, data: nil},
		{extensionType: ExtensionRenegotiationInfo, data: []byte{0}},
		{extensionType: ExtensionSupportedGroups, data: supportedGroupsExtensionData([]NamedCurve{NamedCurveSecp256r1})},
		{extensionType: ExtensionECPointFormats, data: ecPointFormatsExtensionData()},
		{extensionType: ExtensionSignatureAlgorithms, data: signatureAlgorithmsExtensionData(schemes)},
	}
}

func serverHelloExtensions(extendedMasterSecret bool) []extension {
	exts := []extension{
		{extensionType: ExtensionRenegotiationInfo, data: []byte{0}},
	}
	if extendedMasterSecret {
		exts = append(exts, extension{extensionType: ExtensionExtendedMasterSecret, data: nil})
	}
	return exts
}
