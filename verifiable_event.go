package telix

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

// VerifiableEventKind distinguishes which event class a VerifiableEvent
// wraps, since ManagerTelEvent and VCEvent live in disjoint streams.
type VerifiableEventKind byte

const (
	VerifiableManagerEvent VerifiableEventKind = iota
	VerifiableVCEvent
)

// VerifiableEvent is an event paired with the SourceSeal that anchors it
// into the controlling KEL. On the wire it is
// encode(event) ++ encode(seal); the core never verifies the seal's
// authenticity, only records it.
type VerifiableEvent struct {
	Kind    VerifiableEventKind
	Manager ManagerTelEvent
	VC      VCEvent
	Seal    SourceSeal
}

// attachedSealCode is the literal four-byte group identifying an attached
// event-seal.
const attachedSealCode = "-eAB"

// digestDerivationCode is the two-character code for a Blake3-256
// self-addressing digest, following the attached prefix-derivation code.
const digestDerivationCode = "0A"

// encodeSourceSeal renders seal as:
// "-eAB" || identifier_prefix_text || "0A" || base64url22(sn) || digest_text.
func encodeSourceSeal(seal SourceSeal) []byte {
	var buf bytes.Buffer
	buf.WriteString(attachedSealCode)
	buf.WriteString(seal.Prefix.String())
	buf.WriteString(digestDerivationCode)
	buf.WriteString(Base64Url22(seal.SN))
	buf.WriteString(seal.Digest.String())
	return buf.Bytes()
}

// decodeSourceSeal recovers a SourceSeal from the fixed framing at the head
// of data, returning the seal and the number of bytes it consumed. It is a
// real parser.
func decodeSourceSeal(data []byte) (SourceSeal, int, error) {
	pos := 0
	if len(data) < len(attachedSealCode) || string(data[:len(attachedSealCode)]) != attachedSealCode {
		return SourceSeal{}, 0, ErrMalformed
	}
	pos += len(attachedSealCode)

	prefixEnd, err := scanIdentifierPrefix(data[pos:])
	if err != nil {
		return SourceSeal{}, 0, err
	}
	prefix, err := ParseIdentifierPrefix(string(data[pos : pos+prefixEnd]))
	if err != nil {
		return SourceSeal{}, 0, err
	}
	pos += prefixEnd

	if len(data) < pos+len(digestDerivationCode) || string(data[pos:pos+len(digestDerivationCode)]) != digestDerivationCode {
		return SourceSeal{}, 0, ErrMalformed
	}
	pos += len(digestDerivationCode)

	const b64url22Len = 22
	if len(data) < pos+b64url22Len {
		return SourceSeal{}, 0, ErrMalformed
	}
	sn, err := parseBase64Url22(string(data[pos : pos+b64url22Len]))
	if err != nil {
		return SourceSeal{}, 0, err
	}
	pos += b64url22Len

	digestEnd, err := scanDigest(data[pos:])
	if err != nil {
		return SourceSeal{}, 0, err
	}
	digest, err := ParseDigest(string(data[pos : pos+digestEnd]))
	if err != nil {
		return SourceSeal{}, 0, err
	}
	pos += digestEnd

	return SourceSeal{Prefix: prefix, SN: sn, Digest: digest}, pos, nil
}

// selfAddressingTextLen is the length in characters of a self-addressing
// identifier/digest's fully-qualified text form: one code byte plus the
// Base64URL (no padding) rendering of a 32-byte digest.
const selfAddressingTextLen = 1 + (DigestSize*8 + 5) / 6

// scanIdentifierPrefix reports how many leading bytes of data make up a
// fully-qualified IdentifierPrefix text form. Basic and self-addressing
// prefixes share the same derivation width here (a single code byte plus a
// 32-byte digest/key payload); self-signing prefixes use a two-char code
// plus a 64-byte signature, which the core never constructs but must still
// be able to skip over if encountered in a seal's prefix position.
func scanIdentifierPrefix(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrMalformed
	}
	switch data[0] {
	case codeSelfAddressing, codeBasicEd25519:
		if len(data) < selfAddressingTextLen {
			return 0, ErrMalformed
		}
		return selfAddressingTextLen, nil
	case '0':
		const selfSigningTextLen = 2 + (64*8+5)/6
		if len(data) < selfSigningTextLen {
			return 0, ErrMalformed
		}
		return selfSigningTextLen, nil
	default:
		return 0, ErrMalformed
	}
}

func scanDigest(data []byte) (int, error) {
	if len(data) < selfAddressingTextLen {
		return 0, ErrMalformed
	}
	if data[0] != selfAddressingCode {
		return 0, ErrMalformed
	}
	return selfAddressingTextLen, nil
}

// parseBase64Url22 inverts Base64Url22. Base64Url22 takes the standard
// (padded) Base64URL encoding of a 16-byte buffer — which always ends in
// "==" since 16 mod 3 == 1 — and drops that trailing padding; restoring it
// makes the 22-character string decodable with the standard encoding.
func parseBase64Url22(s string) (uint64, error) {
	if len(s) != 22 {
		return 0, ErrMalformed
	}
	decoded, err := base64.URLEncoding.DecodeString(s + "==")
	if err != nil || len(decoded) != 16 {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint64(decoded[8:16]), nil
}

// EncodeVerifiableManagerEvent renders ve (which must carry a Manager
// event) as event_bytes ++ seal_bytes.
func EncodeVerifiableManagerEvent(ve VerifiableEvent) ([]byte, error) {
	if ve.Kind != VerifiableManagerEvent {
		return nil, ErrMalformed
	}
	eventBytes, err := ve.Manager.Encode()
	if err != nil {
		return nil, err
	}
	return append(eventBytes, encodeSourceSeal(ve.Seal)...), nil
}

// DecodeVerifiableManagerEvent parses a ManagerTelEvent followed by its
// attached SourceSeal out of data, returning the total bytes consumed.
func DecodeVerifiableManagerEvent(data []byte) (VerifiableEvent, int, error) {
	event, eventLen, err := DecodeManagerEvent(data)
	if err != nil {
		return VerifiableEvent{}, 0, err
	}
	seal, sealLen, err := decodeSourceSeal(data[eventLen:])
	if err != nil {
		return VerifiableEvent{}, 0, err
	}
	return VerifiableEvent{Kind: VerifiableManagerEvent, Manager: event, Seal: seal}, eventLen + sealLen, nil
}

// EncodeVerifiableVCEvent is EncodeVerifiableManagerEvent's analogue for a
// VerifiableEvent wrapping a VCEvent.
func EncodeVerifiableVCEvent(ve VerifiableEvent) ([]byte, error) {
	if ve.Kind != VerifiableVCEvent {
		return nil, ErrMalformed
	}
	eventBytes, err := ve.VC.Encode()
	if err != nil {
		return nil, err
	}
	return append(eventBytes, encodeSourceSeal(ve.Seal)...), nil
}

// DecodeVerifiableVCEvent is DecodeVerifiableManagerEvent's analogue.
func DecodeVerifiableVCEvent(data []byte) (VerifiableEvent, int, error) {
	event, eventLen, err := DecodeVCEvent(data)
	if err != nil {
		return VerifiableEvent{}, 0, err
	}
	seal, sealLen, err := decodeSourceSeal(data[eventLen:])
	if err != nil {
		return VerifiableEvent{}, 0, err
	}
	return VerifiableEvent{Kind: VerifiableVCEvent, VC: event, Seal: seal}, eventLen + sealLen, nil
}
