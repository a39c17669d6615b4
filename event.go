package telix

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ManagerEventTag and VCEventTag are the lowercase "t" discriminators every
// event carries; unknown values are rejected at parse time (Malformed).
type ManagerEventTag string

const (
	TagVcp ManagerEventTag = "vcp"
	TagVrt ManagerEventTag = "vrt"
)

type VCEventTag string

const (
	TagIss VCEventTag = "iss"
	TagRev VCEventTag = "rev"
	TagBis VCEventTag = "bis"
	TagBrv VCEventTag = "brv"
)

// compactHex renders u as lowercase hex without leading zeros — "0" for
// zero, "3" for 3, "a" for 10 — the wire form required for "s" and "bt".
func compactHex(u uint64) string { return fmt.Sprintf("%x", u) }

func parseCompactHex(s string) (uint64, error) {
	var u uint64
	if _, err := fmt.Sscanf(s, "%x", &u); err != nil {
		return 0, ErrMalformed
	}
	return u, nil
}

// EventSeal anchors a point in some other event stream: the registry's own
// management TEL (for a VC's "ra" field) or, packed differently, a KEL
// interaction event (as a SourceSeal — a distinct type, see below).
type EventSeal struct {
	Prefix      IdentifierPrefix
	SN          uint64
	EventDigest Digest
}

func (s EventSeal) encode(buf *bytes.Buffer) {
	buf.WriteString(`{"i":`)
	writeJSONString(buf, s.Prefix.String())
	buf.WriteString(`,"s":`)
	writeJSONString(buf, compactHex(s.SN))
	buf.WriteString(`,"d":`)
	writeJSONString(buf, s.EventDigest.String())
	buf.WriteByte('}')
}

type rawEventSeal struct {
	I string `json:"i"`
	S string `json:"s"`
	D string `json:"d"`
}

func decodeEventSeal(raw json.RawMessage) (EventSeal, error) {
	var r rawEventSeal
	if err := json.Unmarshal(raw, &r); err != nil {
		return EventSeal{}, ErrMalformed
	}
	prefix, err := ParseIdentifierPrefix(r.I)
	if err != nil {
		return EventSeal{}, ErrMalformed
	}
	sn, err := parseCompactHex(r.S)
	if err != nil {
		return EventSeal{}, ErrMalformed
	}
	digest, err := ParseDigest(r.D)
	if err != nil {
		return EventSeal{}, ErrMalformed
	}
	return EventSeal{Prefix: prefix, SN: sn, EventDigest: digest}, nil
}

// SourceSeal points at the KEL interaction event that anchored a TEL event.
// It is produced by the (out-of-scope) KEL collaborator and is a distinct
// type from EventSeal: it never appears inside the hashed event body, only
// attached to it. Prefix identifies the KEL stream the seal
// anchors into; the core treats it opaquely but the attached-seal wire
// framing needs it alongside sn and digest to render identifier_prefix_text.
type SourceSeal struct {
	Prefix IdentifierPrefix
	SN     uint64
	Digest Digest
}

// ---- ManagerTelEvent -------------------------------------------------

// NoBackersConfig is the one recognized config tag: a registry configured
// with it is "backerless".
const NoBackersConfig = "NB"

// VcpBody is the inception-specific payload of a ManagerTelEvent.
type VcpBody struct {
	Issuer          IdentifierPrefix
	Config          []string
	BackerThreshold uint64
	Backers         []IdentifierPrefix
}

// VrtBody is the rotation-specific payload of a ManagerTelEvent. BackerThreshold
// is carried on the wire for informational purposes but never enforced by
// Apply — no quorum check is performed against the backer set.
type VrtBody struct {
	Previous        Digest
	BackerThreshold uint64
	BackersAdd      []IdentifierPrefix
	BackersRemove   []IdentifierPrefix
}

// ManagerTelEvent is the tagged Vcp|Vrt variant.
type ManagerTelEvent struct {
	V      SerializationInfo
	Prefix IdentifierPrefix
	SN     uint64
	Tag    ManagerEventTag
	Vcp    *VcpBody
	Vrt    *VrtBody
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeIdentifierArray(buf *bytes.Buffer, ids []IdentifierPrefix) {
	buf.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, id.String())
	}
	buf.WriteByte(']')
}

func writeStringArray(buf *bytes.Buffer, ss []string) {
	buf.WriteByte('[')
	for i, s := range ss {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, s)
	}
	buf.WriteByte(']')
}

// encodeBody renders the event with the given SerializationInfo substituted
// into "v" — used twice by Encode's two-pass size derivation:
// once with a zero-sized header to measure, once with the true size.
func (e ManagerTelEvent) encodeBody(v SerializationInfo) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"v":`)
	writeJSONString(&buf, v.String())
	buf.WriteString(`,"i":`)
	writeJSONString(&buf, e.Prefix.String())

	switch e.Tag {
	case TagVcp:
		buf.WriteString(`,"ii":`)
		writeJSONString(&buf, e.Vcp.Issuer.String())
		buf.WriteString(`,"s":`)
		writeJSONString(&buf, compactHex(e.SN))
		buf.WriteString(`,"t":"vcp","c":`)
		writeStringArray(&buf, e.Vcp.Config)
		buf.WriteString(`,"bt":`)
		writeJSONString(&buf, compactHex(e.Vcp.BackerThreshold))
		buf.WriteString(`,"b":`)
		writeIdentifierArray(&buf, e.Vcp.Backers)
	case TagVrt:
		buf.WriteString(`,"p":`)
		writeJSONString(&buf, e.Vrt.Previous.String())
		buf.WriteString(`,"s":`)
		writeJSONString(&buf, compactHex(e.SN))
		buf.WriteString(`,"t":"vrt","bt":`)
		writeJSONString(&buf, compactHex(e.Vrt.BackerThreshold))
		buf.WriteString(`,"br":`)
		writeIdentifierArray(&buf, e.Vrt.BackersRemove)
		buf.WriteString(`,"ba":`)
		writeIdentifierArray(&buf, e.Vrt.BackersAdd)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Encode renders the event to its byte-exact wire form, performing the
// two-pass size derivation: encode with a placeholder size, measure, encode
// again with the true size substituted into "v".
func (e ManagerTelEvent) Encode() ([]byte, error) {
	if e.Tag != TagVcp && e.Tag != TagVrt {
		return nil, ErrMalformed
	}
	if (e.Tag == TagVcp && e.Vcp == nil) || (e.Tag == TagVrt && e.Vrt == nil) {
		return nil, ErrMalformed
	}
	pass1 := e.encodeBody(newSerializationInfo(0))
	sized := newSerializationInfo(len(pass1))
	pass2 := e.encodeBody(sized)
	if len(pass2) != sized.Size {
		return nil, ErrMalformed
	}
	return pass2, nil
}

type rawManagerEvent struct {
	V  string          `json:"v"`
	I  string          `json:"i"`
	II *string         `json:"ii,omitempty"`
	S  string          `json:"s"`
	T  string          `json:"t"`
	C  []string        `json:"c,omitempty"`
	Bt *string         `json:"bt,omitempty"`
	B  []string        `json:"b,omitempty"`
	P  *string         `json:"p,omitempty"`
	Ba []string `json:"ba,omitempty"`
	Br []string `json:"br,omitempty"`
}

// DecodeManagerEvent parses the leading ManagerTelEvent out of data, using
// the embedded SerializationInfo.Size to find the exact end of the event,
// since readers rely on the declared size rather than a trailing delimiter.
func DecodeManagerEvent(data []byte) (ManagerTelEvent, int, error) {
	const lead = `{"v":"`
	if len(data) < len(lead)+serializationInfoLen || string(data[:len(lead)]) != lead {
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	si, err := ParseSerializationInfo(string(data[len(lead) : len(lead)+serializationInfoLen]))
	if err != nil {
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	if si.Size <= 0 || si.Size > len(data) {
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	body := data[:si.Size]

	var raw rawManagerEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	if si.Size != len(body) {
		return ManagerTelEvent{}, 0, ErrMalformed
	}

	prefix, err := ParseIdentifierPrefix(raw.I)
	if err != nil {
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	sn, err := parseCompactHex(raw.S)
	if err != nil {
		return ManagerTelEvent{}, 0, ErrMalformed
	}

	ev := ManagerTelEvent{V: si, Prefix: prefix, SN: sn}
	switch ManagerEventTag(raw.T) {
	case TagVcp:
		if raw.II == nil || raw.Bt == nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		issuer, err := ParseIdentifierPrefix(*raw.II)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		backers, err := parseIdentifierList(raw.B)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		bt, err := parseCompactHex(*raw.Bt)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		ev.Tag = TagVcp
		ev.Vcp = &VcpBody{Issuer: issuer, Config: raw.C, BackerThreshold: bt, Backers: backers}
	case TagVrt:
		if raw.P == nil || raw.Bt == nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		prev, err := ParseDigest(*raw.P)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		ba, err := parseIdentifierList(raw.Ba)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		br, err := parseIdentifierList(raw.Br)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		bt, err := parseCompactHex(*raw.Bt)
		if err != nil {
			return ManagerTelEvent{}, 0, ErrMalformed
		}
		ev.Tag = TagVrt
		ev.Vrt = &VrtBody{Previous: prev, BackerThreshold: bt, BackersAdd: ba, BackersRemove: br}
	default:
		return ManagerTelEvent{}, 0, ErrMalformed
	}
	return ev, si.Size, nil
}

func parseIdentifierList(ss []string) ([]IdentifierPrefix, error) {
	out := make([]IdentifierPrefix, 0, len(ss))
	for _, s := range ss {
		p, err := ParseIdentifierPrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ---- VCEvent -----------------------------------------------------------

// IssBody is the simple-issuance payload: the registry identifier issuing
// the credential, with no anchor into the registry's own state.
type IssBody struct {
	RegistryID IdentifierPrefix
}

// RevBody is the simple-revocation payload.
type RevBody struct {
	Previous Digest
}

// BisBody is the backed-issuance payload, anchoring the registry's state at
// issuance time.
type BisBody struct {
	RegistryAnchor EventSeal
}

// BrvBody is the backed-revocation payload.
type BrvBody struct {
	Previous       Digest
	RegistryAnchor *EventSeal
}

// VCEvent is the tagged Iss|Rev|Bis|Brv variant.
type VCEvent struct {
	V      SerializationInfo
	Prefix IdentifierPrefix
	SN     uint64
	Tag    VCEventTag
	Iss    *IssBody
	Rev    *RevBody
	Bis    *BisBody
	Brv    *BrvBody
}

func (e VCEvent) encodeBody(v SerializationInfo) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"v":`)
	writeJSONString(&buf, v.String())
	buf.WriteString(`,"i":`)
	writeJSONString(&buf, e.Prefix.String())
	buf.WriteString(`,"s":`)
	writeJSONString(&buf, compactHex(e.SN))
	buf.WriteString(`,"t":`)

	switch e.Tag {
	case TagIss:
		buf.WriteString(`"iss","ri":`)
		writeJSONString(&buf, e.Iss.RegistryID.String())
	case TagRev:
		buf.WriteString(`"rev","p":`)
		writeJSONString(&buf, e.Rev.Previous.String())
	case TagBis:
		buf.WriteString(`"bis","ra":`)
		e.Bis.RegistryAnchor.encode(&buf)
	case TagBrv:
		buf.WriteString(`"brv","p":`)
		writeJSONString(&buf, e.Brv.Previous.String())
		buf.WriteString(`,"ra":`)
		if e.Brv.RegistryAnchor != nil {
			e.Brv.RegistryAnchor.encode(&buf)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Encode renders the event to its byte-exact wire form via the same
// two-pass size derivation as ManagerTelEvent.Encode.
func (e VCEvent) Encode() ([]byte, error) {
	switch e.Tag {
	case TagIss, TagRev, TagBis, TagBrv:
	default:
		return nil, ErrMalformed
	}
	if (e.Tag == TagIss && e.Iss == nil) || (e.Tag == TagRev && e.Rev == nil) ||
		(e.Tag == TagBis && e.Bis == nil) || (e.Tag == TagBrv && e.Brv == nil) {
		return nil, ErrMalformed
	}
	pass1 := e.encodeBody(newSerializationInfo(0))
	sized := newSerializationInfo(len(pass1))
	pass2 := e.encodeBody(sized)
	if len(pass2) != sized.Size {
		return nil, ErrMalformed
	}
	return pass2, nil
}

type rawVCEvent struct {
	V  string          `json:"v"`
	I  string          `json:"i"`
	S  string          `json:"s"`
	T  string          `json:"t"`
	RI *string         `json:"ri,omitempty"`
	P  *string         `json:"p,omitempty"`
	RA json.RawMessage `json:"ra,omitempty"`
}

// DecodeVCEvent parses the leading VCEvent out of data using the embedded
// SerializationInfo.Size.
func DecodeVCEvent(data []byte) (VCEvent, int, error) {
	const lead = `{"v":"`
	if len(data) < len(lead)+serializationInfoLen || string(data[:len(lead)]) != lead {
		return VCEvent{}, 0, ErrMalformed
	}
	si, err := ParseSerializationInfo(string(data[len(lead) : len(lead)+serializationInfoLen]))
	if err != nil {
		return VCEvent{}, 0, ErrMalformed
	}
	if si.Size <= 0 || si.Size > len(data) {
		return VCEvent{}, 0, ErrMalformed
	}
	body := data[:si.Size]

	var raw rawVCEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return VCEvent{}, 0, ErrMalformed
	}
	if si.Size != len(body) {
		return VCEvent{}, 0, ErrMalformed
	}

	prefix, err := ParseIdentifierPrefix(raw.I)
	if err != nil {
		return VCEvent{}, 0, ErrMalformed
	}
	sn, err := parseCompactHex(raw.S)
	if err != nil {
		return VCEvent{}, 0, ErrMalformed
	}

	ev := VCEvent{V: si, Prefix: prefix, SN: sn}
	switch VCEventTag(raw.T) {
	case TagIss:
		if raw.RI == nil {
			return VCEvent{}, 0, ErrMalformed
		}
		rid, err := ParseIdentifierPrefix(*raw.RI)
		if err != nil {
			return VCEvent{}, 0, ErrMalformed
		}
		ev.Tag = TagIss
		ev.Iss = &IssBody{RegistryID: rid}
	case TagRev:
		if raw.P == nil {
			return VCEvent{}, 0, ErrMalformed
		}
		prev, err := ParseDigest(*raw.P)
		if err != nil {
			return VCEvent{}, 0, ErrMalformed
		}
		ev.Tag = TagRev
		ev.Rev = &RevBody{Previous: prev}
	case TagBis:
		if len(raw.RA) == 0 {
			return VCEvent{}, 0, ErrMalformed
		}
		seal, err := decodeEventSeal(raw.RA)
		if err != nil {
			return VCEvent{}, 0, ErrMalformed
		}
		ev.Tag = TagBis
		ev.Bis = &BisBody{RegistryAnchor: seal}
	case TagBrv:
		if raw.P == nil {
			return VCEvent{}, 0, ErrMalformed
		}
		prev, err := ParseDigest(*raw.P)
		if err != nil {
			return VCEvent{}, 0, ErrMalformed
		}
		var anchor *EventSeal
		if len(raw.RA) > 0 && string(raw.RA) != "null" {
			seal, err := decodeEventSeal(raw.RA)
			if err != nil {
				return VCEvent{}, 0, ErrMalformed
			}
			anchor = &seal
		}
		ev.Tag = TagBrv
		ev.Brv = &BrvBody{Previous: prev, RegistryAnchor: anchor}
	default:
		return VCEvent{}, 0, ErrMalformed
	}
	return ev, si.Size, nil
}
