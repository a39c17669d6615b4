package replication

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/kerilib/telix"
)

// ProtoHTTPTransport implements Transport using the protowire-framed
// EventEnvelope over HTTP/HTTPS — more compact than HTTPTransport's gob
// encoding and language-agnostic on the wire.
type ProtoHTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewProtoHTTPTransport creates a protobuf-framed HTTP transport posting to
// baseURL.
func NewProtoHTTPTransport(baseURL string) *ProtoHTTPTransport {
	return &ProtoHTTPTransport{BaseURL: baseURL, Client: &http.Client{}}
}

func (t *ProtoHTTPTransport) post(path string, env EventEnvelope) error {
	data := marshalEnvelope(env)
	resp, err := t.Client.Post(t.BaseURL+path, "application/x-protobuf", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("replication: post envelope: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("replication: server returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// PushManagementEvent posts a management-keyspace envelope.
func (t *ProtoHTTPTransport) PushManagementEvent(id telix.IdentifierPrefix, raw []byte, timestamp string) error {
	env := EventEnvelope{Kind: telix.VerifiableManagerEvent, ID: id.String(), Raw: raw, CorrelationID: uuid.NewString(), Timestamp: timestamp}
	return t.post("/api/v1/tel/management", env)
}

// PushVCEvent posts a vc-keyspace envelope, keyed by registryID as
// HTTPTransport.PushVCEvent is.
func (t *ProtoHTTPTransport) PushVCEvent(registryID telix.IdentifierPrefix, raw []byte, timestamp string) error {
	env := EventEnvelope{Kind: telix.VerifiableVCEvent, ID: registryID.String(), Raw: raw, CorrelationID: uuid.NewString(), Timestamp: timestamp}
	return t.post("/api/v1/tel/vc", env)
}

func (t *ProtoHTTPTransport) fetch(path string) ([]byte, error) {
	resp, err := t.Client.Get(t.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("replication: fetch stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("replication: server returned %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// FetchManagementEvents retrieves id's full management stream.
func (t *ProtoHTTPTransport) FetchManagementEvents(id telix.IdentifierPrefix) ([]byte, error) {
	return t.fetch("/api/v1/tel/management?id=" + url.QueryEscape(id.String()))
}

// FetchVCEvents retrieves vcID's persisted stream from the TEL registered
// under registryID.
func (t *ProtoHTTPTransport) FetchVCEvents(registryID, vcID telix.IdentifierPrefix) ([]byte, error) {
	return t.fetch("/api/v1/tel/vc?registry=" + url.QueryEscape(registryID.String()) + "&vc=" + url.QueryEscape(vcID.String()))
}
