package telix

import "testing"

// S1 from the testable-properties scenarios: decode a literal inception
// event and fold it against the default state.
func TestScenarioS1InceptionParse(t *testing.T) {
	raw := []byte(`{"v":"KERI10JSON0000ad_","i":"EjD_sFljMHXJCC3rEFL93MwHNGguKdC11mcMuQnZitcs","ii":"DntNTPnDFBnmlO6J44LXCrzZTAmpe-82b7BmQGtL4QhM","s":"0","t":"vcp","c":["NB"],"bt":"0","b":[]}`)

	ev, n, err := DecodeManagerEvent(raw)
	if err != nil {
		t.Fatalf("DecodeManagerEvent: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d bytes, want %d", n, len(raw))
	}
	if ev.Tag != TagVcp {
		t.Fatalf("expected Vcp, got %v", ev.Tag)
	}
	if ev.Prefix.String() != "EjD_sFljMHXJCC3rEFL93MwHNGguKdC11mcMuQnZitcs" {
		t.Fatalf("unexpected registry prefix %q", ev.Prefix.String())
	}
	if ev.SN != 0 {
		t.Fatalf("expected sn=0, got %d", ev.SN)
	}
	if ev.Vcp.Issuer.String() != "DntNTPnDFBnmlO6J44LXCrzZTAmpe-82b7BmQGtL4QhM" {
		t.Fatalf("unexpected issuer %q", ev.Vcp.Issuer.String())
	}
	if len(ev.Vcp.Config) != 1 || ev.Vcp.Config[0] != "NB" {
		t.Fatalf("expected config=[NB], got %v", ev.Vcp.Config)
	}
	if ev.Vcp.BackerThreshold != 0 {
		t.Fatalf("expected backer_threshold=0, got %d", ev.Vcp.BackerThreshold)
	}
	if len(ev.Vcp.Backers) != 0 {
		t.Fatalf("expected no backers, got %v", ev.Vcp.Backers)
	}

	state, err := DefaultManagerTelState.Apply(ev, DefaultDigester)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state.SN != 0 {
		t.Fatalf("expected sn=0, got %d", state.SN)
	}
	if !state.Issuer.Equal(ev.Vcp.Issuer) {
		t.Fatal("expected issuer to carry over")
	}
	if state.Backers != nil {
		t.Fatalf("expected backerless state, got %v", state.Backers)
	}
}

// S2: a rotation event at sn=3, structurally equivalent to the scenario
// (the spec's literal digests are elided with "..."; full-length
// self-addressing digests are substituted here so the event actually
// decodes).
func TestScenarioS2RotationParse(t *testing.T) {
	registry := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry")))
	prev := DefaultDigester.Derive([]byte("previous bytes"))

	raw, err := (ManagerTelEvent{
		Prefix: registry,
		SN:     3,
		Tag:    TagVrt,
		Vrt: &VrtBody{
			Previous:        prev,
			BackerThreshold: 1,
			BackersAdd:      nil,
			BackersRemove:   nil,
		},
	}).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ev, n, err := DecodeManagerEvent(raw)
	if err != nil {
		t.Fatalf("DecodeManagerEvent: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d bytes, want %d", n, len(raw))
	}
	if ev.Tag != TagVrt {
		t.Fatalf("expected Vrt, got %v", ev.Tag)
	}
	if ev.SN != 3 {
		t.Fatalf("expected sn=3, got %d", ev.SN)
	}
	if !ev.Vrt.Previous.Equal(prev) {
		t.Fatal("expected previous digest to round trip")
	}
}

func TestManagerEventEncodeSizeIsByteExact(t *testing.T) {
	ev := ManagerTelEvent{
		Prefix: NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("abc"))),
		SN:     0,
		Tag:    TagVcp,
		Vcp: &VcpBody{
			Issuer:          NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("issuer"))),
			Config:          nil,
			BackerThreshold: 0,
			Backers:         nil,
		},
	}
	raw, err := ev.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	si, err := ParseSerializationInfo(string(raw[6:23]))
	if err != nil {
		t.Fatalf("ParseSerializationInfo: %v", err)
	}
	if si.Size != len(raw) {
		t.Fatalf("declared size %d != actual encoded length %d", si.Size, len(raw))
	}
}

func TestManagerEventRoundTripVcpAndVrt(t *testing.T) {
	vcp := ManagerTelEvent{
		Prefix: NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry-content"))),
		SN:     0,
		Tag:    TagVcp,
		Vcp: &VcpBody{
			Issuer:          NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("issuer"))),
			Config:          []string{},
			BackerThreshold: 2,
			Backers: []IdentifierPrefix{
				NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("backer-1"))),
				NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("backer-2"))),
			},
		},
	}
	raw, err := vcp.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, n, err := DecodeManagerEvent(raw)
	if err != nil {
		t.Fatalf("DecodeManagerEvent: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if decoded.SN != vcp.SN || decoded.Tag != vcp.Tag || !decoded.Prefix.Equal(vcp.Prefix) {
		t.Fatal("round trip mismatch on vcp envelope fields")
	}
	if decoded.Vcp.BackerThreshold != vcp.Vcp.BackerThreshold {
		t.Fatal("round trip mismatch on backer threshold")
	}
	if len(decoded.Vcp.Backers) != len(vcp.Vcp.Backers) {
		t.Fatal("round trip mismatch on backer count")
	}

	vrt := ManagerTelEvent{
		Prefix: vcp.Prefix,
		SN:     1,
		Tag:    TagVrt,
		Vrt: &VrtBody{
			Previous:        DefaultDigester.Derive(raw),
			BackerThreshold: 1,
			BackersAdd:      []IdentifierPrefix{NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("backer-3")))},
			BackersRemove:   []IdentifierPrefix{vcp.Vcp.Backers[0]},
		},
	}
	vrtRaw, err := vrt.Encode()
	if err != nil {
		t.Fatalf("Encode(vrt): %v", err)
	}
	decodedVrt, _, err := DecodeManagerEvent(vrtRaw)
	if err != nil {
		t.Fatalf("DecodeManagerEvent(vrt): %v", err)
	}
	if decodedVrt.SN != 1 || decodedVrt.Tag != TagVrt {
		t.Fatal("round trip mismatch on vrt envelope fields")
	}
	if !decodedVrt.Vrt.Previous.Equal(vrt.Vrt.Previous) {
		t.Fatal("round trip mismatch on previous digest")
	}
}

func TestManagerEventEncodeRejectsUnknownTag(t *testing.T) {
	ev := ManagerTelEvent{Prefix: DefaultIdentifierPrefix, Tag: "xyz"}
	if _, err := ev.Encode(); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for unknown tag, got %v", err)
	}
}

func TestDecodeManagerEventRejectsUnknownTag(t *testing.T) {
	raw := []byte(`{"v":"KERI10JSON000032_","i":"","s":"0","t":"xyz"}`)
	if _, _, err := DecodeManagerEvent(raw); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVCEventRoundTripAllTags(t *testing.T) {
	vcHash := DefaultDigester.Derive([]byte("credential content"))
	vcPrefix := NewSelfAddressingPrefix(vcHash)
	registryAnchor := EventSeal{
		Prefix:      NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry"))),
		SN:          0,
		EventDigest: DefaultDigester.Derive([]byte("vcp bytes")),
	}

	iss := VCEvent{Prefix: vcPrefix, SN: 0, Tag: TagIss, Iss: &IssBody{RegistryID: registryAnchor.Prefix}}
	issRaw, err := iss.Encode()
	if err != nil {
		t.Fatalf("Encode(iss): %v", err)
	}
	decodedIss, _, err := DecodeVCEvent(issRaw)
	if err != nil {
		t.Fatalf("DecodeVCEvent(iss): %v", err)
	}
	if decodedIss.Tag != TagIss || !decodedIss.Iss.RegistryID.Equal(registryAnchor.Prefix) {
		t.Fatal("round trip mismatch on iss")
	}

	rev := VCEvent{Prefix: vcPrefix, SN: 1, Tag: TagRev, Rev: &RevBody{Previous: DefaultDigester.Derive(issRaw)}}
	revRaw, err := rev.Encode()
	if err != nil {
		t.Fatalf("Encode(rev): %v", err)
	}
	decodedRev, _, err := DecodeVCEvent(revRaw)
	if err != nil {
		t.Fatalf("DecodeVCEvent(rev): %v", err)
	}
	if decodedRev.Tag != TagRev || !decodedRev.Rev.Previous.Equal(rev.Rev.Previous) {
		t.Fatal("round trip mismatch on rev")
	}

	bis := VCEvent{Prefix: vcPrefix, SN: 0, Tag: TagBis, Bis: &BisBody{RegistryAnchor: registryAnchor}}
	bisRaw, err := bis.Encode()
	if err != nil {
		t.Fatalf("Encode(bis): %v", err)
	}
	decodedBis, _, err := DecodeVCEvent(bisRaw)
	if err != nil {
		t.Fatalf("DecodeVCEvent(bis): %v", err)
	}
	if decodedBis.Tag != TagBis || !decodedBis.Bis.RegistryAnchor.Prefix.Equal(registryAnchor.Prefix) {
		t.Fatal("round trip mismatch on bis")
	}
	if decodedBis.Bis.RegistryAnchor.SN != registryAnchor.SN {
		t.Fatal("round trip mismatch on bis registry anchor sn")
	}

	brv := VCEvent{Prefix: vcPrefix, SN: 1, Tag: TagBrv, Brv: &BrvBody{
		Previous:       DefaultDigester.Derive(bisRaw),
		RegistryAnchor: &registryAnchor,
	}}
	brvRaw, err := brv.Encode()
	if err != nil {
		t.Fatalf("Encode(brv): %v", err)
	}
	decodedBrv, _, err := DecodeVCEvent(brvRaw)
	if err != nil {
		t.Fatalf("DecodeVCEvent(brv): %v", err)
	}
	if decodedBrv.Tag != TagBrv || decodedBrv.Brv.RegistryAnchor == nil {
		t.Fatal("expected a registry anchor on the decoded brv")
	}

	// brv with a nil registry anchor must round trip as nil, not a
	// zero-valued EventSeal.
	brvNoAnchor := VCEvent{Prefix: vcPrefix, SN: 1, Tag: TagBrv, Brv: &BrvBody{Previous: DefaultDigester.Derive(bisRaw)}}
	brvNoAnchorRaw, err := brvNoAnchor.Encode()
	if err != nil {
		t.Fatalf("Encode(brv, no anchor): %v", err)
	}
	decodedBrvNoAnchor, _, err := DecodeVCEvent(brvNoAnchorRaw)
	if err != nil {
		t.Fatalf("DecodeVCEvent(brv, no anchor): %v", err)
	}
	if decodedBrvNoAnchor.Brv.RegistryAnchor != nil {
		t.Fatal("expected a nil registry anchor to round trip as nil")
	}
}

func TestCompactHexRendersZeroAsSingleDigit(t *testing.T) {
	if compactHex(0) != "0" {
		t.Fatalf("compactHex(0) = %q, want \"0\"", compactHex(0))
	}
	if compactHex(10) != "a" {
		t.Fatalf("compactHex(10) = %q, want \"a\"", compactHex(10))
	}
	got, err := parseCompactHex(compactHex(4096))
	if err != nil || got != 4096 {
		t.Fatalf("parseCompactHex round trip failed: got=%d err=%v", got, err)
	}
}
