package telix

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EventProcessor folds persisted streams to current state, persists
// VerifiableEvents, and answers point queries. It never
// validates a source seal's authenticity — it only records it — but it does
// re-fold after every persist, so storage corruption surfaces as an apply
// error on the caller's very next read.
type EventProcessor struct {
	db       EventDatabase
	digester Digester

	mgmtCache *lru.Cache[string, ManagerTelState]
	vcCache   *lru.Cache[string, VCTelState]
}

const defaultStateCacheSize = 1024

// NewEventProcessor wires db as the append/iterate collaborator and
// digester as the crypto collaborator used by every apply() fold.
func NewEventProcessor(db EventDatabase, digester Digester) (*EventProcessor, error) {
	mgmtCache, err := lru.New[string, ManagerTelState](defaultStateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("telix: create management state cache: %w", err)
	}
	vcCache, err := lru.New[string, VCTelState](defaultStateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("telix: create vc state cache: %w", err)
	}
	return &EventProcessor{db: db, digester: digester, mgmtCache: mgmtCache, vcCache: vcCache}, nil
}

// Process dispatches on the event class carried in ve, appends it to the
// appropriate per-identifier stream, then recomputes and returns the
// post-state by folding the persisted stream.
func (p *EventProcessor) Process(ve VerifiableEvent) (any, error) {
	switch ve.Kind {
	case VerifiableManagerEvent:
		raw, err := EncodeVerifiableManagerEvent(ve)
		if err != nil {
			return nil, err
		}
		if err := p.db.AddNewManagementEvent(ve.Manager.Prefix, raw); err != nil {
			return nil, fmt.Errorf("telix: persist management event: %w", err)
		}
		p.mgmtCache.Remove(ve.Manager.Prefix.String())
		return p.GetManagementTelState(ve.Manager.Prefix)
	case VerifiableVCEvent:
		raw, err := EncodeVerifiableVCEvent(ve)
		if err != nil {
			return nil, err
		}
		if err := p.db.AddNewEvent(ve.VC.Prefix, raw); err != nil {
			return nil, fmt.Errorf("telix: persist vc event: %w", err)
		}
		p.vcCache.Remove(ve.VC.Prefix.String())
		return p.GetVCState(ve.VC.Prefix)
	default:
		return nil, ErrMalformed
	}
}

// GetManagementTelState iterates the persisted manager stream for id,
// folding with apply(); it returns DefaultManagerTelState if the stream is
// empty. Results are cached until the next successful Process call for id.
func (p *EventProcessor) GetManagementTelState(id IdentifierPrefix) (ManagerTelState, error) {
	if cached, ok := p.mgmtCache.Get(id.String()); ok {
		return cached, nil
	}
	records, err := p.db.IterManagementEvents(id)
	if err != nil {
		return ManagerTelState{}, fmt.Errorf("telix: iterate management events: %w", err)
	}
	state := DefaultManagerTelState
	for _, rec := range records {
		ve, _, err := DecodeVerifiableManagerEvent(rec)
		if err != nil {
			return ManagerTelState{}, err
		}
		state, err = state.Apply(ve.Manager, p.digester)
		if err != nil {
			return ManagerTelState{}, err
		}
	}
	p.mgmtCache.Add(id.String(), state)
	return state, nil
}

// GetVCState is GetManagementTelState's analogue over the VC keyspace.
func (p *EventProcessor) GetVCState(vcID IdentifierPrefix) (VCTelState, error) {
	if cached, ok := p.vcCache.Get(vcID.String()); ok {
		return cached, nil
	}
	records, err := p.db.IterEvents(vcID)
	if err != nil {
		return VCTelState{}, fmt.Errorf("telix: iterate vc events: %w", err)
	}
	state := DefaultVCTelState
	for _, rec := range records {
		ve, _, err := DecodeVerifiableVCEvent(rec)
		if err != nil {
			return VCTelState{}, err
		}
		state, err = state.Apply(ve.VC, p.digester)
		if err != nil {
			return VCTelState{}, err
		}
	}
	p.vcCache.Add(vcID.String(), state)
	return state, nil
}

// GetManagementEvents concatenates the serialized VerifiableEvents for id
// in append order. It returns nil, nil if the stream is empty.
func (p *EventProcessor) GetManagementEvents(id IdentifierPrefix) ([]byte, error) {
	records, err := p.db.IterManagementEvents(id)
	if err != nil {
		return nil, fmt.Errorf("telix: iterate management events: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	var out []byte
	for _, rec := range records {
		out = append(out, rec...)
	}
	return out, nil
}

// GetEvents is GetManagementEvents's analogue over the VC keyspace.
func (p *EventProcessor) GetEvents(vcID IdentifierPrefix) ([]byte, error) {
	records, err := p.db.IterEvents(vcID)
	if err != nil {
		return nil, fmt.Errorf("telix: iterate vc events: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	var out []byte
	for _, rec := range records {
		out = append(out, rec...)
	}
	return out, nil
}

// GetManagementEventAtSN returns the first persisted event for id whose sn
// matches, or ErrUnknownIdentifier if none does.
func (p *EventProcessor) GetManagementEventAtSN(id IdentifierPrefix, sn uint64) (VerifiableEvent, error) {
	records, err := p.db.IterManagementEvents(id)
	if err != nil {
		return VerifiableEvent{}, fmt.Errorf("telix: iterate management events: %w", err)
	}
	for _, rec := range records {
		ve, _, err := DecodeVerifiableManagerEvent(rec)
		if err != nil {
			return VerifiableEvent{}, err
		}
		if ve.Manager.SN == sn {
			return ve, nil
		}
	}
	return VerifiableEvent{}, ErrUnknownIdentifier
}
