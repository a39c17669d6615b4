package telix

import "sync"

// TEL wraps an EventProcessor and latches the registry's own prefix the
// first time a Vcp event lands. All generator helpers and
// state reads on the management side are relative to that latched prefix.
// Apart from the processor's folded-state caches, the latched prefix is the
// only mutable state the core keeps outside the database.
type TEL struct {
	processor *EventProcessor
	digester  Digester

	mu        sync.RWMutex
	telPrefix IdentifierPrefix
}

// NewTEL wraps processor as a TEL façade using digester for every
// generator and apply() call it performs.
func NewTEL(processor *EventProcessor, digester Digester) *TEL {
	return &TEL{processor: processor, digester: digester, telPrefix: DefaultIdentifierPrefix}
}

// Prefix returns the latched registry identifier, or DefaultIdentifierPrefix
// if no Vcp has been processed yet.
func (t *TEL) Prefix() IdentifierPrefix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.telPrefix
}

func (t *TEL) latch(prefix IdentifierPrefix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.telPrefix.IsDefault() {
		t.telPrefix = prefix
	}
}

// Process persists ve and, if it is the registry's inception event, latches
// t's remembered prefix to it.
func (t *TEL) Process(ve VerifiableEvent) (any, error) {
	state, err := t.processor.Process(ve)
	if err != nil {
		return nil, err
	}
	if ve.Kind == VerifiableManagerEvent && ve.Manager.Tag == TagVcp {
		t.latch(ve.Manager.Prefix)
	}
	return state, nil
}

// GetManagementTelState returns the latched registry's current state.
func (t *TEL) GetManagementTelState() (ManagerTelState, error) {
	return t.processor.GetManagementTelState(t.Prefix())
}

// GetVCState returns vcID's current state.
func (t *TEL) GetVCState(vcID IdentifierPrefix) (VCTelState, error) {
	return t.processor.GetVCState(vcID)
}

// GetManagementEvents returns the latched registry's persisted management
// stream, concatenated in append order (nil if empty) — the bytes a
// replica replays to catch up.
func (t *TEL) GetManagementEvents() ([]byte, error) {
	return t.processor.GetManagementEvents(t.Prefix())
}

// GetEvents returns vcID's persisted VC stream, concatenated in append
// order (nil if empty).
func (t *TEL) GetEvents(vcID IdentifierPrefix) ([]byte, error) {
	return t.processor.GetEvents(vcID)
}

// MakeInceptionEvent builds the registry's inception event (not yet
// processed); the caller anchors it into the KEL and calls Process.
func (t *TEL) MakeInceptionEvent(issuer IdentifierPrefix, config []string, backerThreshold uint64, backers []IdentifierPrefix) (ManagerTelEvent, error) {
	return MakeInception(issuer, config, backerThreshold, backers, t.digester)
}

// MakeRotationEvent builds the next rotation against the latched registry's
// current state.
func (t *TEL) MakeRotationEvent(backersAdd, backersRemove []IdentifierPrefix, backerThreshold uint64) (ManagerTelEvent, error) {
	state, err := t.GetManagementTelState()
	if err != nil {
		return ManagerTelEvent{}, err
	}
	return MakeRotation(state, backersAdd, backersRemove, backerThreshold, t.digester)
}

// MakeIssuanceEvent builds a backed issuance anchored to the latched
// registry's current state.
func (t *TEL) MakeIssuanceEvent(vcHash Digest) (VCEvent, error) {
	state, err := t.GetManagementTelState()
	if err != nil {
		return VCEvent{}, err
	}
	return MakeIssuance(state, vcHash, t.digester)
}

// MakeRevokeEvent builds a backed revocation for vcID. It fails with
// ErrImproperVCState unless vcID's current state is Issued.
func (t *TEL) MakeRevokeEvent(vcID IdentifierPrefix) (VCEvent, error) {
	vcState, err := t.GetVCState(vcID)
	if err != nil {
		return VCEvent{}, err
	}
	if vcState.Lifecycle != VCIssued {
		return VCEvent{}, ErrImproperVCState
	}
	registryState, err := t.GetManagementTelState()
	if err != nil {
		return VCEvent{}, err
	}
	return MakeRevocation(vcID, vcState.LastBytes, registryState, t.digester)
}
