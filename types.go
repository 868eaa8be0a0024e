// Package ckernel implements the security kernel of a cryptographic
// library: the reference-monitor core that mediates every operation on
// every cryptographic object.
//
// Overview
//
// The kernel is a small number of cooperating pieces, built bottom-up:
//
//	secure allocator    page-locked, canary-protected heap blocks
//	sync primitives     re-entrant mutex, bounded object-wait, semaphore
//	object table        handle -> object-record mapping, LFSR allocation
//	ACL tables          declarative attribute/action/keymgmt/mechanism/certmgmt rules
//	dispatcher          the single entry point for every message
//	CSPRNG              entropy pool + X9.17 post-processor + FIPS-140 tests
//
// Every operation, external or internal, is a message sent to a handle.
// The Kernel looks the handle up in its object table, applies the
// pre-dispatch ACL check for the message kind, invokes the target
// object's own handler with the table lock dropped, applies the
// post-dispatch handler, and returns a Status.
//
// Data flow
//
// Byte streams enter and leave only through Push/Pop-style messages on
// envelope/session objects (not implemented by this package — see
// Non-goals); key material enters through SET_ATTRIBUTE(KEY) or
// key-management messages; randomness leaves through
// GET_ATTRIBUTE(RANDOM) sent to the system object, handle 0, and
// through Kernel.CSPRNG, which returns the generator itself.
//
// Non-goals
//
// This package does not implement cipher/hash/MAC/PKC algorithm bodies
// (beyond the minimal capability bindings in capability.go needed to
// exercise the kernel end to end), certificate encoding, envelope or
// secure-session state machines, keyset back-ends, hardware-token
// bindings, or an external API facade. It is a policy-enforcement and
// lifecycle engine only.
package ckernel

import "fmt"

// Handle addresses a live object in the kernel's object table. A freed
// slot's handle can be handed out again to a new object; only the
// busy-object wait compares unique IDs, so a stale Handle captured
// before a Destroy addresses whatever object now occupies the slot.
type Handle int32

// Fixed singleton handles. SystemHandle owns the CSPRNG and the default
// cryptographic capabilities; DefaultUserHandle is the root policy scope
// and is auto-created as a dependent of the system object.
const (
	SystemHandle      Handle = 0
	DefaultUserHandle Handle = 1

	firstDynamicHandle = 2
)

// ObjectType is the coarse kind of a kernel-managed object.
type ObjectType int

const (
	TypeNone ObjectType = iota
	TypeContext
	TypeCertificate
	TypeKeyset
	TypeEnvelope
	TypeSession
	TypeDevice
	TypeUser
	typeLast
)

func (t ObjectType) String() string {
	switch t {
	case TypeContext:
		return "context"
	case TypeCertificate:
		return "certificate"
	case TypeKeyset:
		return "keyset"
	case TypeEnvelope:
		return "envelope"
	case TypeSession:
		return "session"
	case TypeDevice:
		return "device"
	case TypeUser:
		return "user"
	default:
		return "none"
	}
}

// Subtype is a power-of-two-populated bitmask selecting a concrete
// variant within one ObjectType's subtype class. No object mixes
// classes, with the single documented exception of the default user
// object, which is simultaneously SubtypeUserNormal and SubtypeUserSO.
type Subtype uint32

const (
	// Context subtypes.
	SubtypeCtxConventional Subtype = 1 << iota
	SubtypeCtxPKC
	SubtypeCtxHash
	SubtypeCtxMAC

	// Device subtypes.
	SubtypeDevSystem
	SubtypeDevHardware

	// User subtypes.
	SubtypeUserNormal
	SubtypeUserSO
)

// ActionKind is one of the six action kinds tracked in an object's
// action-permission bitmap.
type ActionKind int

const (
	ActionEncrypt ActionKind = iota
	ActionDecrypt
	ActionSign
	ActionSigCheck
	ActionHash
	ActionGenKey
	numActionKinds
)

// ActionLevel is the access level granted to one ActionKind on one
// object.
type ActionLevel int

const (
	LevelNone ActionLevel = iota
	LevelInternalOnly
	LevelFull
	LevelNotAvailable
)

// actionPerms is the 64-entry action-permission bitmap, represented as
// one ActionLevel per ActionKind (the original packs two bits per
// action into a single word; Go has no reason to replicate the packing,
// only the semantics).
type actionPerms [numActionKinds]ActionLevel

func defaultActionPerms() actionPerms {
	var p actionPerms
	for i := range p {
		p[i] = LevelNone
	}
	return p
}

// objectFlags mirrors kernel.h's OBJECT_FLAG_* bitmask.
type objectFlags uint32

const (
	flagInternal objectFlags = 1 << iota
	flagNotInited
	flagHighState
	flagSignalled
	flagBusy
	flagSecureMem
	flagOwnedByThread
	flagAttrsLocked
	flagAliased
	flagCloned
)

func (f objectFlags) has(bit objectFlags) bool { return f&bit != 0 }

// Status is the kernel's return-code enum. All dispatcher-visible calls
// return a Status; Status implements error so it composes with the rest
// of the Go ecosystem (errors.Is, %w wrapping) without forcing callers
// to juggle two types.
type Status int

const (
	StatusOK Status = iota
	StatusNotAvail
	StatusPermission
	StatusNotInited
	StatusInited
	StatusSignalled
	StatusTimeout
	StatusRandom
	StatusFailed
	StatusIncomplete
	StatusMemory
	StatusBadData
	StatusNotFound
	StatusArgObject
	StatusArgValue
	StatusArgNum1
	StatusArgNum2
	StatusArgStr1
	StatusArgStr2

	// statusOKSpecial is an internal sentinel: "the pre-dispatch check
	// wants the in-flight message rewritten to DESTROY". It must never
	// be returned across the package boundary.
	statusOKSpecial
)

var statusNames = map[Status]string{
	StatusOK:         "OK",
	StatusNotAvail:   "NOTAVAIL",
	StatusPermission: "PERMISSION",
	StatusNotInited:  "NOTINITED",
	StatusInited:     "INITED",
	StatusSignalled:  "SIGNALLED",
	StatusTimeout:    "TIMEOUT",
	StatusRandom:     "RANDOM",
	StatusFailed:     "FAILED",
	StatusIncomplete: "INCOMPLETE",
	StatusMemory:     "MEMORY",
	StatusBadData:    "BADDATA",
	StatusNotFound:   "NOTFOUND",
	StatusArgObject:  "ARGERROR_OBJECT",
	StatusArgValue:   "ARGERROR_VALUE",
	StatusArgNum1:    "ARGERROR_NUM1",
	StatusArgNum2:    "ARGERROR_NUM2",
	StatusArgStr1:    "ARGERROR_STR1",
	StatusArgStr2:    "ARGERROR_STR2",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Error() string { return "ckernel: " + s.String() }

// OK reports whether s represents success.
func (s Status) OK() bool { return s == StatusOK }

// object is the kernel's internal record for one live handle. It
// corresponds to cryptlib's OBJECT_INFO.
type object struct {
	handle Handle

	objType ObjectType
	subType Subtype

	// instance is the object's private instance data. It is an
	// interface rather than an unsafe pointer + size pair because Go's
	// type system already gives us a safe tagged union; concrete types
	// live in context.go/device.go.
	instance any

	flags objectFlags
	perms actionPerms

	refCount   int
	lockCount  int
	lockOwner  goroutineToken
	uniqueID   uint32
	forwardCnt int // remaining ownership transfers; -1 = unlimited
	usageCnt   int // remaining uses; -1 = unlimited

	owner      Handle
	hasOwner   bool
	dependent  Handle
	hasDepend  bool
	depDevice  Handle
	hasDepDev  bool

	handler MessageHandler
}

// objectTemplate is the fully-zeroed free-slot value written back into
// a slot when its object is destroyed. isFree tests only for a nil
// instance, not for equality with this value.
var objectTemplate = object{}

func (o *object) isFree() bool { return o.instance == nil }

func (o *object) sameOwner(other *object) bool {
	if !o.hasOwner || !other.hasOwner {
		return true
	}
	if o.owner == other.owner {
		return true
	}
	return other.owner == o.handle
}
