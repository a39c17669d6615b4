package telix

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
)

// PrefixKind tags which of the three derivation families an IdentifierPrefix
// belongs to. The core only ever constructs SelfAddressing prefixes itself
// (registry and VC identifiers); Basic and SelfSigning are recognized on
// parse because they appear as KEL-side identifiers (issuers, backers) that
// the core merely carries around and compares.
type PrefixKind byte

const (
	// PrefixUndefined is the zero value, used for IdentifierPrefix{}.
	PrefixUndefined PrefixKind = iota
	PrefixBasic
	PrefixSelfAddressing
	PrefixSelfSigning
)

// derivation code bytes for the text form's first character.
const (
	codeBasicEd25519    = 'D'
	codeSelfAddressing  = 'E'
	codeSelfSigningEd25 = '0' // two-char code, see below
)

// IdentifierPrefix is a discriminated union over the three KERI derivation
// families. It is comparable (safe as a map key) and has a canonical text
// form whose leading character(s) encode the derivation.
type IdentifierPrefix struct {
	kind PrefixKind
	text string // canonical, fully-qualified text form; "" for the default/undefined prefix
}

// DefaultIdentifierPrefix is IdentifierPrefix's zero value, used by the TEL
// façade before any management event has been processed.
var DefaultIdentifierPrefix = IdentifierPrefix{}

// Kind reports which derivation family p belongs to.
func (p IdentifierPrefix) Kind() PrefixKind { return p.kind }

// IsDefault reports whether p is the default/undefined prefix.
func (p IdentifierPrefix) IsDefault() bool { return p.kind == PrefixUndefined && p.text == "" }

// String returns the canonical, fully-qualified text form.
func (p IdentifierPrefix) String() string { return p.text }

// MarshalText implements encoding.TextMarshaler.
func (p IdentifierPrefix) MarshalText() ([]byte, error) { return []byte(p.text), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *IdentifierPrefix) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentifierPrefix(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Compare gives a total, deterministic order over identifier prefixes (by
// their canonical text form), making IdentifierPrefix usable in sorted sets
// (e.g. deterministic ordering of a backer list for tests/logging).
func (p IdentifierPrefix) Compare(other IdentifierPrefix) int {
	switch {
	case p.text < other.text:
		return -1
	case p.text > other.text:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two prefixes have the same canonical text form.
func (p IdentifierPrefix) Equal(other IdentifierPrefix) bool {
	return p.text == other.text
}

// NewSelfAddressingPrefix builds the one variant the core constructs itself:
// an identifier that is the digest of the content it names.
func NewSelfAddressingPrefix(d Digest) IdentifierPrefix {
	return IdentifierPrefix{kind: PrefixSelfAddressing, text: d.String()}
}

// Digest extracts the self-addressing digest backing p, if any.
func (p IdentifierPrefix) Digest() (Digest, bool) {
	if p.kind != PrefixSelfAddressing {
		return Digest{}, false
	}
	d, err := ParseDigest(p.text)
	if err != nil {
		return Digest{}, false
	}
	return d, true
}

// ParseIdentifierPrefix recognizes the derivation family from the leading
// character(s) of the fully-qualified text form. Basic (Ed25519, code "D")
// and self-signing (Ed25519 signature, code "0B") prefixes are accepted
// opaquely — the core never derives or verifies them itself, it only needs
// to round-trip and compare them (they originate from the KEL collaborator).
func ParseIdentifierPrefix(s string) (IdentifierPrefix, error) {
	if s == "" {
		return IdentifierPrefix{}, nil
	}
	switch s[0] {
	case codeSelfAddressing:
		if _, err := ParseDigest(s); err != nil {
			return IdentifierPrefix{}, ErrMalformed
		}
		return IdentifierPrefix{kind: PrefixSelfAddressing, text: s}, nil
	case codeBasicEd25519:
		return IdentifierPrefix{kind: PrefixBasic, text: s}, nil
	case '0':
		return IdentifierPrefix{kind: PrefixSelfSigning, text: s}, nil
	default:
		return IdentifierPrefix{}, ErrMalformed
	}
}

// Base64Url22 renders the 16-byte buffer [0;8] ++ big-endian(sn) as
// Base64URL and takes the first 22 characters — the packing used by the
// attached-seal framing to fit a u64 sequence number into a
// fixed-width, sortable text field.
func Base64Url22(sn uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[8:], sn)
	return base64.URLEncoding.EncodeToString(buf[:])[:22]
}

// SigningCapability is the abstract KEL collaborator operation the core
// never calls directly (Ed25519 signature attachment and verification are a
// KEL concern, not a TEL one) but which concrete KEL adapters built on top
// of this package need; it is defined here so replication and telctl can
// depend on one shared abstraction instead of each reinventing it. The
// default implementation wraps crypto/ed25519, KERI's signature scheme.
type SigningCapability interface {
	Sign(message []byte) []byte
	Verify(publicKey, message, signature []byte) bool
}

type ed25519Signer struct{ priv ed25519.PrivateKey }

// NewEd25519Signer wraps an Ed25519 private key as a SigningCapability.
func NewEd25519Signer(priv ed25519.PrivateKey) SigningCapability {
	return ed25519Signer{priv: priv}
}

func (s ed25519Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

func (ed25519Signer) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
