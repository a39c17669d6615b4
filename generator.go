package telix

// placeholderDigest backs a dummy self-addressing prefix of the correct
// byte length, substituted into an inception event before its first
// encoding pass so the event can be digested and then re-encoded with its
// true, self-addressing identifier.
var placeholderDigest = Digest{code: selfAddressingCode}

// MakeInception builds a well-formed Vcp event for a new registry
// controlled by issuer, with the given config tags, backer threshold and
// initial backer set. The registry prefix is derived by encoding the event
// with a placeholder identifier, digesting those bytes, and substituting
// the derived self-addressing prefix before the final encoding — the
// two-pass pattern that makes the registry identifier commit to its own
// inception content.
func MakeInception(issuer IdentifierPrefix, config []string, backerThreshold uint64, backers []IdentifierPrefix, digester Digester) (ManagerTelEvent, error) {
	draft := ManagerTelEvent{
		Prefix: NewSelfAddressingPrefix(placeholderDigest),
		SN:     0,
		Tag:    TagVcp,
		Vcp: &VcpBody{
			Issuer:          issuer,
			Config:          config,
			BackerThreshold: backerThreshold,
			Backers:         backers,
		},
	}
	draftBytes, err := draft.Encode()
	if err != nil {
		return ManagerTelEvent{}, err
	}
	registryPrefix := NewSelfAddressingPrefix(digester.Derive(draftBytes))
	final := draft
	final.Prefix = registryPrefix
	return final, nil
}

// MakeRotation builds a Vrt event advancing state by adding/removing
// backers. sn is state.sn+1 and the previous-event digest binds
// to state.LastBytes.
func MakeRotation(state ManagerTelState, backersAdd, backersRemove []IdentifierPrefix, backerThreshold uint64, digester Digester) (ManagerTelEvent, error) {
	return ManagerTelEvent{
		Prefix: state.Prefix,
		SN:     state.SN + 1,
		Tag:    TagVrt,
		Vrt: &VrtBody{
			Previous:        digester.Derive(state.LastBytes),
			BackerThreshold: backerThreshold,
			BackersAdd:      backersAdd,
			BackersRemove:   backersRemove,
		},
	}, nil
}

// MakeIssuance builds a backed-issuance (Bis) event for a credential whose
// content digests to vcHash, anchored to the registry's current state.
func MakeIssuance(state ManagerTelState, vcHash Digest, digester Digester) (VCEvent, error) {
	return VCEvent{
		Prefix: NewSelfAddressingPrefix(vcHash),
		SN:     0,
		Tag:    TagBis,
		Bis: &BisBody{
			RegistryAnchor: EventSeal{
				Prefix:      state.Prefix,
				SN:          state.SN,
				EventDigest: digester.Derive(state.LastBytes),
			},
		},
	}, nil
}

// MakeSimpleIssuance builds an unbacked (Iss) issuance event, used by
// registries configured with "NB" where no registry anchor is meaningful.
func MakeSimpleIssuance(registryID IdentifierPrefix, vcHash Digest) (VCEvent, error) {
	return VCEvent{
		Prefix: NewSelfAddressingPrefix(vcHash),
		SN:     0,
		Tag:    TagIss,
		Iss:    &IssBody{RegistryID: registryID},
	}, nil
}

// MakeRevocation builds a Brv event revoking the VC whose last applied
// event encoded to lastVCEventBytes, anchoring the registry's current
// state.
func MakeRevocation(vcPrefix IdentifierPrefix, lastVCEventBytes []byte, registryState ManagerTelState, digester Digester) (VCEvent, error) {
	anchor := EventSeal{
		Prefix:      registryState.Prefix,
		SN:          registryState.SN,
		EventDigest: digester.Derive(registryState.LastBytes),
	}
	return VCEvent{
		Prefix: vcPrefix,
		SN:     1,
		Tag:    TagBrv,
		Brv: &BrvBody{
			Previous:       digester.Derive(lastVCEventBytes),
			RegistryAnchor: &anchor,
		},
	}, nil
}

// MakeSimpleRevocation builds an unbacked (Rev) revocation event.
func MakeSimpleRevocation(vcPrefix IdentifierPrefix, lastVCEventBytes []byte, digester Digester) (VCEvent, error) {
	return VCEvent{
		Prefix: vcPrefix,
		SN:     1,
		Tag:    TagRev,
		Rev:    &RevBody{Previous: digester.Derive(lastVCEventBytes)},
	}, nil
}
