package telix

// ManagerTelState is the folded state of a management TEL: the registry's
// own identity, its controlling issuer, the current backer set (nil means
// "backerless"), the current sequence number and the raw bytes of
// the last-applied event (used to verify the next rotation's "p" binding).
type ManagerTelState struct {
	Prefix    IdentifierPrefix
	SN        uint64
	LastBytes []byte
	Issuer    IdentifierPrefix
	Backers   []IdentifierPrefix // nil means "no backers" (NB)
	hasState  bool               // false for the default/empty state
}

// DefaultManagerTelState is the state before any Vcp has been applied.
var DefaultManagerTelState = ManagerTelState{}

func (s ManagerTelState) isDefault() bool { return !s.hasState }

// Apply folds event into s, returning the next state or a typed error. It
// is pure and total: every (state, event) pair returns exactly one of next
// state or error.
func (s ManagerTelState) Apply(event ManagerTelEvent, digester Digester) (ManagerTelState, error) {
	switch event.Tag {
	case TagVcp:
		if !s.isDefault() {
			return ManagerTelState{}, ErrImproperState
		}
		encoded, err := event.Encode()
		if err != nil {
			return ManagerTelState{}, err
		}
		var backers []IdentifierPrefix
		backerless := false
		for _, c := range event.Vcp.Config {
			if c == NoBackersConfig {
				backerless = true
			}
		}
		if !backerless {
			backers = make([]IdentifierPrefix, len(event.Vcp.Backers))
			copy(backers, event.Vcp.Backers)
		}
		return ManagerTelState{
			Prefix:    event.Prefix,
			SN:        0,
			LastBytes: encoded,
			Issuer:    event.Vcp.Issuer,
			Backers:   backers,
			hasState:  true,
		}, nil
	case TagVrt:
		if event.Vrt == nil {
			return ManagerTelState{}, ErrMalformed
		}
		if s.isDefault() {
			return ManagerTelState{}, ErrImproperState
		}
		if event.SN != s.SN+1 {
			return ManagerTelState{}, ErrSequenceError
		}
		if !digester.VerifyBinding(event.Vrt.Previous, s.LastBytes) {
			return ManagerTelState{}, ErrPreviousMismatch
		}
		if s.Backers == nil {
			return ManagerTelState{}, ErrBackerlessRotation
		}
		encoded, err := event.Encode()
		if err != nil {
			return ManagerTelState{}, err
		}
		newBackers := applyBackerRotation(s.Backers, event.Vrt.BackersAdd, event.Vrt.BackersRemove)
		return ManagerTelState{
			Prefix:    s.Prefix,
			SN:        event.SN,
			LastBytes: encoded,
			Issuer:    s.Issuer,
			Backers:   newBackers,
			hasState:  true,
		}, nil
	default:
		return ManagerTelState{}, ErrMalformed
	}
}

// applyBackerRotation computes (backers \ br) ++ ba: removal first, as a
// set-difference, then append of the additions, preserving first-seen
// order and without deduplicating the result beyond the removal step. One
// tempting-but-wrong implementation of the removal filter self-references
// `backers` instead of `br` (`!backers.contains(backer)`), which zeros the
// whole set on every rotation; this filters strictly against br.
func applyBackerRotation(backers, ba, br []IdentifierPrefix) []IdentifierPrefix {
	remaining := make([]IdentifierPrefix, 0, len(backers))
	for _, b := range backers {
		removed := false
		for _, r := range br {
			if b.Equal(r) {
				removed = true
				break
			}
		}
		if !removed {
			remaining = append(remaining, b)
		}
	}
	return append(remaining, ba...)
}

// VCTelLifecycle is the three-state lifecycle a VC TEL can reach: NotIssued
// -> Issued -> Revoked.
type VCTelLifecycle byte

const (
	VCNotIssued VCTelLifecycle = iota
	VCIssued
	VCRevoked
)

// VCTelState is the folded state of a VC TEL.
type VCTelState struct {
	Lifecycle VCTelLifecycle
	LastBytes []byte // meaningful only when Lifecycle == VCIssued
}

// DefaultVCTelState is the state before any Iss/Bis has been applied.
var DefaultVCTelState = VCTelState{Lifecycle: VCNotIssued}

// Apply folds event into s.
func (s VCTelState) Apply(event VCEvent, digester Digester) (VCTelState, error) {
	switch event.Tag {
	case TagIss, TagBis:
		if s.Lifecycle != VCNotIssued {
			return VCTelState{}, ErrWrongState
		}
		encoded, err := event.Encode()
		if err != nil {
			return VCTelState{}, err
		}
		return VCTelState{Lifecycle: VCIssued, LastBytes: encoded}, nil
	case TagRev, TagBrv:
		if s.Lifecycle != VCIssued {
			return VCTelState{}, ErrWrongState
		}
		if (event.Tag == TagRev && event.Rev == nil) || (event.Tag == TagBrv && event.Brv == nil) {
			return VCTelState{}, ErrMalformed
		}
		var prev Digest
		if event.Tag == TagRev {
			prev = event.Rev.Previous
		} else {
			prev = event.Brv.Previous
		}
		if !digester.VerifyBinding(prev, s.LastBytes) {
			return VCTelState{}, ErrPreviousMismatch
		}
		return VCTelState{Lifecycle: VCRevoked}, nil
	default:
		return VCTelState{}, ErrMalformed
	}
}
