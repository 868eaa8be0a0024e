package ckernel

import "time"

// Attribute ACL
//
// One declarative entry per AttributeID specifying the subtypes on
// which the attribute is legal, the access matrix for the four caller
// classes (external-low/high, internal-low/high), the attribute's value
// type, its range, and the trigger/property flags. Grounded on
// cryptlib/kernel/msg_acl.c's ATTRIBUTE_ACL table shape and
// checkAttributeRange helper.

// AccessOp is one of read/write/delete.
type AccessOp int

const (
	OpRead AccessOp = 1 << iota
	OpWrite
	OpDelete
)

// callerClass indexes the four-entry access matrix.
type callerClass int

const (
	classExternalLow callerClass = iota
	classExternalHigh
	classInternalLow
	classInternalHigh
)

func classFor(external, highState bool) callerClass {
	switch {
	case external && !highState:
		return classExternalLow
	case external && highState:
		return classExternalHigh
	case !external && !highState:
		return classInternalLow
	default:
		return classInternalHigh
	}
}

// ValueType is the declared type of an attribute's value.
type ValueType int

const (
	ValBoolean ValueType = iota
	ValNumeric
	ValObjectHandle
	ValByteString
	ValWideString
	ValTime
	ValSpecial // nested subtype-specific ACL
)

// RangeKind selects which shape of range-check applies.
type RangeKind int

const (
	RangeAny RangeKind = iota
	RangeMinMax
	RangeAllowedValues
	RangeSubranges
	RangeSelect
)

// rangeDescriptor is the range/range-descriptor for one attribute.
type rangeDescriptor struct {
	Kind     RangeKind
	Min, Max int64
	Allowed  []int64
	Sub      []rangeDescriptor // RangeSubranges: composite of any of the above
}

func (r rangeDescriptor) check(v int64) bool {
	switch r.Kind {
	case RangeAny:
		return true
	case RangeMinMax:
		return v >= r.Min && v <= r.Max
	case RangeAllowedValues:
		for _, a := range r.Allowed {
			if a == v {
				return true
			}
		}
		return false
	case RangeSubranges:
		for _, s := range r.Sub {
			if s.check(v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// attrFlags mirrors the trigger/property flags from msg_acl.c.
type attrFlags uint8

const (
	attrTrigger attrFlags = 1 << iota
	attrProperty
	// attrRetriggerable marks an attribute writable even after the
	// object has entered the high state.
	attrRetriggerable
)

type attributeACLEntry struct {
	SubtypeMask Subtype
	Access      [4]AccessOp // indexed by callerClass
	Value       ValueType
	Range       rangeDescriptor
	Flags       attrFlags
	MinTime     time.Time
	MaxTime     time.Time
}

type aclSet struct {
	attrs   map[AttributeID]attributeACLEntry
	keymgmt map[keyItemType]keyManagementACLEntry
	mech    map[mechKey]mechanismACLEntry
	certmgmt map[certAction]certMgmtACLEntry
}

func newACLSet(now time.Time) *aclSet {
	minTime := time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC) // cryptlib's own first-release era
	maxTime := now.AddDate(100, 0, 0)

	a := &aclSet{attrs: make(map[AttributeID]attributeACLEntry)}

	a.attrs[AttrStatus] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpWrite, 0, OpWrite, 0},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeAllowedValues, Allowed: []int64{int64(StatusOK)}},
	}
	a.attrs[AttrKey] = attributeACLEntry{
		SubtypeMask: SubtypeCtxConventional | SubtypeCtxPKC | SubtypeCtxMAC,
		Access:      [4]AccessOp{OpWrite, 0, OpWrite | OpRead, 0},
		Value:       ValByteString,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 1, Max: 64},
		Flags:       attrTrigger,
	}
	a.attrs[AttrMode] = attributeACLEntry{
		SubtypeMask: SubtypeCtxConventional,
		Access:      [4]AccessOp{OpRead | OpWrite | OpDelete, OpRead, OpRead | OpWrite | OpDelete, OpRead},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeAllowedValues, Allowed: []int64{0, 1, 2, 3}},
	}
	a.attrs[AttrIV] = attributeACLEntry{
		SubtypeMask: SubtypeCtxConventional,
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead, OpRead | OpWrite, OpRead},
		Value:       ValByteString,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 8, Max: 16},
	}
	a.attrs[AttrKeyingIterations] = attributeACLEntry{
		SubtypeMask: SubtypeCtxConventional | SubtypeCtxMAC,
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead, OpRead | OpWrite, OpRead},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 1, Max: 20000},
	}
	a.attrs[AttrUsageCount] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpWrite | OpRead, OpRead, OpWrite | OpRead, OpRead},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 0, Max: 1 << 30},
	}
	a.attrs[AttrForwardCount] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpWrite | OpRead, 0, OpWrite | OpRead, 0},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 0, Max: 1 << 16},
		Flags:       attrProperty,
	}
	a.attrs[AttrHighSecurity] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpWrite, 0, OpWrite, 0},
		Value:       ValBoolean,
		Range:       rangeDescriptor{Kind: RangeAllowedValues, Allowed: []int64{0, 1}},
		Flags:       attrTrigger,
	}
	a.attrs[AttrRandom] = attributeACLEntry{
		SubtypeMask: SubtypeDevSystem,
		Access:      [4]AccessOp{OpRead, OpRead, OpRead, OpRead},
		Value:       ValByteString,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 1, Max: 1 << 20},
	}
	a.attrs[AttrEntropy] = attributeACLEntry{
		SubtypeMask: SubtypeDevSystem,
		Access:      [4]AccessOp{0, 0, OpWrite, OpWrite},
		Value:       ValByteString,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 1, Max: 1 << 20},
	}
	a.attrs[AttrEntropyQuality] = attributeACLEntry{
		SubtypeMask: SubtypeDevSystem,
		Access:      [4]AccessOp{0, 0, OpWrite, OpWrite},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeMinMax, Min: 1, Max: 100},
	}
	// IP-address allowed-values: exactly 4 or exactly 16 bytes (IPv4 or
	// IPv6), expressed as the composite subrange+allowed-value pattern.
	a.attrs[AttrIPAddress] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead, OpRead | OpWrite, OpRead},
		Value:       ValByteString,
		Range:       rangeDescriptor{Kind: RangeAllowedValues, Allowed: []int64{4, 16}},
	}
	// Current attribute group: either a cursor-movement code (negative
	// range) or an extension id (positive range).
	a.attrs[AttrCurrentGroup] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead | OpWrite, OpRead | OpWrite, OpRead | OpWrite},
		Value:       ValNumeric,
		Range: rangeDescriptor{Kind: RangeSubranges, Sub: []rangeDescriptor{
			{Kind: RangeMinMax, Min: -10, Max: -1},
			{Kind: RangeMinMax, Min: 1, Max: 1000},
		}},
	}
	a.attrs[AttrLockCount] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpRead, OpRead, OpRead, OpRead},
		Value:       ValNumeric,
		Range:       rangeDescriptor{Kind: RangeAny},
		Flags:       attrProperty,
	}
	a.attrs[AttrNotYetValidTime] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead, OpRead | OpWrite, OpRead},
		Value:       ValTime,
		MinTime:     minTime,
		MaxTime:     maxTime,
	}
	a.attrs[AttrValidToTime] = attributeACLEntry{
		SubtypeMask: ^Subtype(0),
		Access:      [4]AccessOp{OpRead | OpWrite, OpRead, OpRead | OpWrite, OpRead},
		Value:       ValTime,
		MinTime:     minTime,
		MaxTime:     maxTime,
	}

	a.installKeyManagementACL()
	a.installMechanismACL()
	a.installCertMgmtACL()
	return a
}

// checkAttributeAccess enforces the attribute ACL for one
// get/set/delete against one object, returning a Status exactly as the
// dispatcher's pre-dispatch handler would.
//
// An externally-invisible attribute is reported as a value-range error
// (ArgValue) rather than Permission/NotAvail, so a
// caller cannot distinguish "forbidden" from "does not exist".
func (a *aclSet) checkAttributeAccess(o *object, attr AttributeID, op AccessOp, external bool) Status {
	entry, ok := a.attrs[attr]
	if !ok {
		return StatusArgValue
	}
	if entry.SubtypeMask != 0 && o.subType&entry.SubtypeMask == 0 {
		return StatusArgValue
	}
	class := classFor(external, o.flags.has(flagHighState))
	if entry.Access[class]&op == 0 {
		if external {
			return StatusArgValue
		}
		return StatusPermission
	}
	return StatusOK
}

// checkAttributeRange validates a numeric/time value against the
// attribute's declared range, returning the argument-position error the
// dispatcher should surface.
func (a *aclSet) checkAttributeRange(attr AttributeID, v int64) Status {
	entry, ok := a.attrs[attr]
	if !ok {
		return StatusArgValue
	}
	if entry.Value == ValTime {
		t := time.Unix(v, 0)
		if t.Before(entry.MinTime) || t.After(entry.MaxTime) {
			return StatusArgNum1
		}
		return StatusOK
	}
	if !entry.Range.check(v) {
		return StatusArgNum1
	}
	return StatusOK
}

// checkByteStringLen validates a byte-string attribute's length against
// its range descriptor (used for IV, key, IP address, entropy, ...).
func (a *aclSet) checkByteStringLen(attr AttributeID, n int) Status {
	return a.checkAttributeRange(attr, int64(n))
}
