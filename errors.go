package telix

import "errors"

// Sentinel errors, one per error taxonomy row. Callers compare with
// errors.Is; internal wrapping always uses fmt.Errorf("...: %w", ...) so the
// sentinel survives through storage/processor layers.
var (
	// ErrMalformed: decoder rejected bytes, size mismatch, or unknown tag.
	ErrMalformed = errors.New("telix: malformed event")

	// ErrImproperState: event class incompatible with current state (e.g. a
	// second Vcp against an already-incepted registry).
	ErrImproperState = errors.New("telix: improper state for event")

	// ErrSequenceError: sn does not equal prev.sn + 1.
	ErrSequenceError = errors.New("telix: sequence number out of order")

	// ErrPreviousMismatch: p does not bind to the stored last_bytes.
	ErrPreviousMismatch = errors.New("telix: previous event hash mismatch")

	// ErrBackerlessRotation: Vrt against a registry configured with "NB".
	ErrBackerlessRotation = errors.New("telix: backerless registry cannot rotate backers")

	// ErrWrongState: VC transition not permitted from the current state.
	ErrWrongState = errors.New("telix: wrong VC state for event")

	// ErrImproperVCState: generator asked to build a revocation when the VC
	// is not Issued.
	ErrImproperVCState = errors.New("telix: improper VC state for operation")

	// ErrUnknownIdentifier is returned by point queries (GetManagementEventAtSN)
	// that find no matching event.
	ErrUnknownIdentifier = errors.New("telix: no event found")
)
