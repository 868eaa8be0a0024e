package ckernel

// Mechanism ACL
//
// Keyed on (action, mechanism) pairs for wrap, unwrap, sign, sig-check,
// and derive. Grounded on cryptlib/kernel/mech_acl.c.

// MechanismAction is the action kind a mechanism applies to.
type MechanismAction int

const (
	MechWrap MechanismAction = iota
	MechUnwrap
	MechSign
	MechSigCheck
	MechDerive
)

// MechanismType names a concrete mechanism.
type MechanismType int

const (
	MechNone MechanismType = iota
	MechDeriveHKDF
	MechDerivePBKDF2
	MechWrapX25519Chacha20Poly1305
)

type mechKey struct {
	Action MechanismAction
	Mech   MechanismType
}

// mechParamState constrains an object parameter's required state.
type mechParamState int

const (
	StateAny mechParamState = iota
	StateHigh
	StateLow
)

type mechanismACLEntry struct {
	// Size ranges for each buffer parameter: [0] input, [1] output/salt,
	// [2] info/context (not every mechanism uses all three).
	BufferRanges [3]rangeDescriptor

	ObjectSubtype Subtype
	ObjectState   mechParamState
	// RouteThroughController indicates the object parameter must be
	// traced through its controlling object to a context (as the
	// original's routing flag does for e.g. a certificate's signing
	// context).
	RouteThroughController bool
}

func (a *aclSet) installMechanismACL() {
	a.mech = map[mechKey]mechanismACLEntry{
		{MechDerive, MechDeriveHKDF}: {
			BufferRanges: [3]rangeDescriptor{
				{Kind: RangeMinMax, Min: 1, Max: 1 << 16}, // ikm
				{Kind: RangeMinMax, Min: 16, Max: 64},     // derived key length
				{Kind: RangeAny},                          // info/context
			},
		},
		{MechDerive, MechDerivePBKDF2}: {
			BufferRanges: [3]rangeDescriptor{
				{Kind: RangeMinMax, Min: 1, Max: 1 << 12}, // password
				{Kind: RangeMinMax, Min: 8, Max: 64},      // salt
				{Kind: RangeMinMax, Min: 16, Max: 64},     // derived key length
			},
		},
		{MechWrap, MechWrapX25519Chacha20Poly1305}: {
			BufferRanges: [3]rangeDescriptor{
				{Kind: RangeMinMax, Min: 1, Max: 1 << 16},
				{Kind: RangeAny},
				{Kind: RangeAny},
			},
			ObjectSubtype: SubtypeCtxPKC,
			ObjectState:   StateHigh,
		},
	}
}

// checkMechanismAccess validates a mechanism invocation's buffer sizes
// and (if present) its object parameter's subtype/state.
func (a *aclSet) checkMechanismAccess(action MechanismAction, mech MechanismType, sizes [3]int, obj *object) Status {
	entry, ok := a.mech[mechKey{action, mech}]
	if !ok {
		return StatusArgValue
	}
	for i, size := range sizes {
		if size == 0 && entry.BufferRanges[i].Kind == RangeAny {
			continue
		}
		if !entry.BufferRanges[i].check(int64(size)) {
			switch i {
			case 0:
				return StatusArgNum1
			case 1:
				return StatusArgNum2
			default:
				return StatusArgValue
			}
		}
	}
	if obj != nil && entry.ObjectSubtype != 0 {
		if obj.subType&entry.ObjectSubtype == 0 {
			return StatusArgObject
		}
		switch entry.ObjectState {
		case StateHigh:
			if !obj.flags.has(flagHighState) {
				return StatusNotInited
			}
		case StateLow:
			if obj.flags.has(flagHighState) {
				return StatusInited
			}
		}
	}
	return StatusOK
}
