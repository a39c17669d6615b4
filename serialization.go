package telix

import "fmt"

// protocolTag and friends make up the fixed 17-byte self-describing header
// carried in every event's "v" field: "KERI10JSON0000d7_".
const (
	protocolTag  = "KERI"
	majorVersion = "1"
	minorVersion = "0"
	formatJSON   = "JSON"

	serializationInfoLen = 17
)

// SerializationInfo is the parsed form of the "v" field: protocol tag,
// version, format family and exact encoded byte length of the event it
// prefixes. Constructing one that is byte-accurate requires the two-pass
// pattern in ManagerTelEvent.Encode and VCEvent.Encode: encode once with
// size 0 to measure, then again with the measured size substituted in.
type SerializationInfo struct {
	Protocol string
	Major    string
	Minor    string
	Format   string
	Size     int
}

// newSerializationInfo builds the canonical JSON-format header for size n.
func newSerializationInfo(size int) SerializationInfo {
	return SerializationInfo{
		Protocol: protocolTag,
		Major:    majorVersion,
		Minor:    minorVersion,
		Format:   formatJSON,
		Size:     size,
	}
}

// String renders the fixed 17-byte token "PPPPVVFFFFSSSSSS_" — protocol tag,
// major, minor, format, six lowercase hex digits of size, terminator.
func (si SerializationInfo) String() string {
	return fmt.Sprintf("%s%s%s%s%06x_", si.Protocol, si.Major, si.Minor, si.Format, si.Size)
}

// MarshalText implements encoding.TextMarshaler for embedding SerializationInfo
// as the event's "v" field.
func (si SerializationInfo) MarshalText() ([]byte, error) {
	return []byte(si.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (si *SerializationInfo) UnmarshalText(text []byte) error {
	parsed, err := ParseSerializationInfo(string(text))
	if err != nil {
		return err
	}
	*si = parsed
	return nil
}

// ParseSerializationInfo parses the fixed 17-byte header token.
func ParseSerializationInfo(s string) (SerializationInfo, error) {
	if len(s) != serializationInfoLen {
		return SerializationInfo{}, ErrMalformed
	}
	if s[serializationInfoLen-1] != '_' {
		return SerializationInfo{}, ErrMalformed
	}
	protocol := s[0:4]
	major := s[4:5]
	minor := s[5:6]
	format := s[6:10]
	sizeHex := s[10:16]
	if protocol != protocolTag || format != formatJSON {
		return SerializationInfo{}, ErrMalformed
	}
	var size int
	if _, err := fmt.Sscanf(sizeHex, "%06x", &size); err != nil {
		return SerializationInfo{}, ErrMalformed
	}
	return SerializationInfo{
		Protocol: protocol,
		Major:    major,
		Minor:    minor,
		Format:   format,
		Size:     size,
	}, nil
}
