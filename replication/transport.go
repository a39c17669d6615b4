// Package replication carries the push-based network layer for shipping
// VerifiableEvents between a TEL holder and a replica — HTTP transport, a
// protobuf-wire envelope, and the receiving server. None of this is part of
// the core event model or state machines; it exists so a deployment can
// move events between processes, which the core itself deliberately does
// not do.
package replication

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/kerilib/telix"
)

// EventEnvelope names which keyspace a pushed VerifiableEvent belongs to
// and carries its wire-encoded bytes alongside the identifier that keys it
// in that keyspace. CorrelationID ties a push to the log lines a server
// emits while handling it; transports mint one per push. Timestamp is an
// optional, caller-supplied RFC3339 annotation carried for audit display
// only — it never participates in the event's hashed body or its
// SerializationInfo-declared size, so it cannot perturb the byte-exact
// wire format the core commits to.
type EventEnvelope struct {
	Kind          telix.VerifiableEventKind
	ID            string
	Raw           []byte
	CorrelationID string
	Timestamp     string
}

// Transport defines how a locally produced VerifiableEvent reaches a
// remote replica, and how a replica backfills a stream it is missing.
// Different implementations can use HTTP, gRPC, message queues, etc. — the
// core's EventDatabase is entirely unaware of this layer.
type Transport interface {
	PushManagementEvent(id telix.IdentifierPrefix, raw []byte, timestamp string) error
	PushVCEvent(registryID telix.IdentifierPrefix, raw []byte, timestamp string) error
	FetchManagementEvents(id telix.IdentifierPrefix) ([]byte, error)
	FetchVCEvents(registryID, vcID telix.IdentifierPrefix) ([]byte, error)
}

// HTTPTransport implements Transport using HTTP and gob encoding of
// EventEnvelope, the default wire format (the same pattern as
// ProtoHTTPTransport in proto_transport.go, minus the protobuf envelope).
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport creates an HTTP transport posting to baseURL.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, Client: &http.Client{}}
}

func (t *HTTPTransport) post(path string, env EventEnvelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("replication: encode envelope: %w", err)
	}
	resp, err := t.Client.Post(t.BaseURL+path, "application/octet-stream", &buf)
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
func (t *HTTPTransport) PushManagementEvent(id telix.IdentifierPrefix, raw []byte, timestamp string) error {
	env := EventEnvelope{Kind: telix.VerifiableManagerEvent, ID: id.String(), Raw: raw, CorrelationID: uuid.NewString(), Timestamp: timestamp}
	return t.post("/api/v1/tel/management", env)
}

// PushVCEvent posts a vc-keyspace envelope. The envelope is keyed by
// registryID, not by the credential's own identifier: a Server looks up the
// TEL handling the push by the registry it was registered under, and the
// pushed VC event's own identifier is already recoverable by decoding Raw.
func (t *HTTPTransport) PushVCEvent(registryID telix.IdentifierPrefix, raw []byte, timestamp string) error {
	env := EventEnvelope{Kind: telix.VerifiableVCEvent, ID: registryID.String(), Raw: raw, CorrelationID: uuid.NewString(), Timestamp: timestamp}
	return t.post("/api/v1/tel/vc", env)
}

func (t *HTTPTransport) fetch(path string) ([]byte, error) {
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

// FetchManagementEvents retrieves id's full management stream, wire-framed
// exactly as the processor persists it (concatenated VerifiableEvents).
func (t *HTTPTransport) FetchManagementEvents(id telix.IdentifierPrefix) ([]byte, error) {
	return t.fetch("/api/v1/tel/management?id=" + url.QueryEscape(id.String()))
}

// FetchVCEvents retrieves vcID's persisted stream from the TEL registered
// under registryID.
func (t *HTTPTransport) FetchVCEvents(registryID, vcID telix.IdentifierPrefix) ([]byte, error) {
	return t.fetch("/api/v1/tel/vc?registry=" + url.QueryEscape(registryID.String()) + "&vc=" + url.QueryEscape(vcID.String()))
}
