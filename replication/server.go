package replication

import (
	"crypto/tls"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/kerilib/telix"
	"github.com/sirupsen/logrus"
)

// Server receives pushed VerifiableEvents and feeds them into a registry's
// TEL façade. One Server can back many registries, looked up by their
// identifier prefix.
type Server struct {
	mu     sync.RWMutex
	tels   map[string]*telix.TEL
	log    *logrus.Logger
	tlsCfg *tls.Config
}

// NewServer creates a replication server logging through logger (or a
// default logrus logger if nil).
func NewServer(logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{tels: make(map[string]*telix.TEL), log: logger}
}

// SetTLSConfig clones cfg for use by ListenAndServeTLS; a nil cfg resets to
// the default.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		s.tlsCfg = nil
		return
	}
	s.tlsCfg = cfg.Clone()
}

// RegisterTEL associates a registry identifier with the TEL façade that
// should receive events pushed for it.
func (s *Server) RegisterTEL(id telix.IdentifierPrefix, t *telix.TEL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tels[id.String()] = t
}

func (s *Server) telFor(id string) (*telix.TEL, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tels[id]
	return t, ok
}

func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-protobuf") || strings.HasPrefix(ct, "application/protobuf")
}

func decodeEnvelope(r *http.Request) (EventEnvelope, error) {
	if isProtobuf(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("replication: read body: %w", err)
		}
		return unmarshalEnvelope(body)
	}
	var env EventEnvelope
	if err := gob.NewDecoder(r.Body).Decode(&env); err != nil {
		return EventEnvelope{}, fmt.Errorf("replication: decode gob envelope: %w", err)
	}
	return env, nil
}

// HandleManagementPush handles POST /api/v1/tel/management (decode an
// EventEnvelope carrying a management-keyspace VerifiableEvent and apply it
// through the corresponding registered TEL) and GET /api/v1/tel/management
// (return the full management stream for ?id=).
func (s *Server) HandleManagementPush(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.handleManagementFetch(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	env, err := decodeEnvelope(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid envelope: %v", err), http.StatusBadRequest)
		return
	}
	ve, _, err := telix.DecodeVerifiableManagerEvent(env.Raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid management event: %v", err), http.StatusBadRequest)
		return
	}
	t, ok := s.telFor(env.ID)
	if !ok {
		http.Error(w, "unknown registry", http.StatusNotFound)
		return
	}
	if _, err := t.Process(ve); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"id": env.ID, "correlation_id": env.CorrelationID}).Warn("reject pushed management event")
		http.Error(w, fmt.Sprintf("process event: %v", err), http.StatusConflict)
		return
	}
	s.log.WithFields(logrus.Fields{"id": env.ID, "correlation_id": env.CorrelationID}).Info("accepted pushed management event")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "id": env.ID, "correlation_id": env.CorrelationID})
}

// handleManagementFetch handles GET /api/v1/tel/management?id=<registry>:
// returns the registered TEL's full management stream, wire-framed exactly
// as persisted (concatenated VerifiableEvents), or 404 if no TEL is
// registered under that identifier.
func (s *Server) handleManagementFetch(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	t, ok := s.telFor(id)
	if !ok {
		http.Error(w, "unknown registry", http.StatusNotFound)
		return
	}
	raw, err := t.GetManagementEvents()
	if err != nil {
		http.Error(w, fmt.Sprintf("read management stream: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(raw)
}

// HandleVCPush handles POST /api/v1/tel/vc (push, as HandleManagementPush
// does for the management keyspace) and GET /api/v1/tel/vc (fetch, keyed by
// ?registry=<registry id>&vc=<vc id> since a Server looks up TELs by
// registry, not by credential).
func (s *Server) HandleVCPush(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.handleVCFetch(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	env, err := decodeEnvelope(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid envelope: %v", err), http.StatusBadRequest)
		return
	}
	ve, _, err := telix.DecodeVerifiableVCEvent(env.Raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid vc event: %v", err), http.StatusBadRequest)
		return
	}
	// VC events are processed against whichever registry's TEL owns the
	// credential's controlling registry; callers key registration by the
	// registry prefix, so look up the TEL the envelope was addressed to.
	t, ok := s.telFor(env.ID)
	if !ok {
		http.Error(w, "unknown registry", http.StatusNotFound)
		return
	}
	if _, err := t.Process(ve); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"id": env.ID, "correlation_id": env.CorrelationID}).Warn("reject pushed vc event")
		http.Error(w, fmt.Sprintf("process event: %v", err), http.StatusConflict)
		return
	}
	s.log.WithFields(logrus.Fields{"id": env.ID, "correlation_id": env.CorrelationID}).Info("accepted pushed vc event")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "id": env.ID, "correlation_id": env.CorrelationID})
}

// handleVCFetch handles GET /api/v1/tel/vc?registry=<registry>&vc=<vc>.
func (s *Server) handleVCFetch(w http.ResponseWriter, r *http.Request) {
	registryID := r.URL.Query().Get("registry")
	vcID := r.URL.Query().Get("vc")
	t, ok := s.telFor(registryID)
	if !ok {
		http.Error(w, "unknown registry", http.StatusNotFound)
		return
	}
	vcPrefix, err := telix.ParseIdentifierPrefix(vcID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid vc identifier: %v", err), http.StatusBadRequest)
		return
	}
	raw, err := t.GetEvents(vcPrefix)
	if err != nil {
		http.Error(w, fmt.Sprintf("read vc stream: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(raw)
}

// SetupRoutes registers this server's handlers on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/tel/management", s.HandleManagementPush)
	mux.HandleFunc("/api/v1/tel/vc", s.HandleVCPush)
}

func (s *Server) tlsConfigWithDefaults() *tls.Config {
	if s.tlsCfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg := s.tlsCfg.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// ListenAndServeTLS starts the replication server.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	server := &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: s.tlsConfigWithDefaults(),
	}
	return server.ListenAndServeTLS(certFile, keyFile)
}
