package ckernel

// MessageKind enumerates the kinds of message the dispatcher
// understands. Grounded on cryptlib's MESSAGE_TYPE enum
// (sendmsg.c/msg_acl.c).
type MessageKind int

const (
	MsgNone MessageKind = iota

	MsgDestroy
	MsgIncRefCount
	MsgDecRefCount
	MsgGetDependent
	MsgSetDependent
	MsgClone

	MsgGetAttribute
	MsgSetAttribute
	MsgDeleteAttribute
	MsgGetAttributeString
	MsgSetAttributeString

	MsgCompare
	MsgCheck

	MsgEncrypt
	MsgDecrypt
	MsgSign
	MsgSigCheck
	MsgHash
	MsgGenKey
	MsgGenIV

	MsgCrtSign
	MsgCrtSigCheck
	MsgCrtExport

	MsgDevQueryCapability
	MsgDevExport
	MsgDevImport
	MsgDevSign
	MsgDevSigCheck
	MsgDevDerive
	MsgCreateObject
	MsgCreateObjectIndirect

	MsgEnvPushData
	MsgEnvPopData

	MsgKeysetGetKey
	MsgKeysetSetKey
	MsgKeysetDeleteKey
	MsgKeysetGetFirstCert
	MsgKeysetGetNextCert
	MsgCertMgmt

	msgLast

	// msgInternalFlag is ORed into a MessageKind by callers that want
	// internal-object/internal-attribute visibility. It is not itself
	// a distinct kind.
	msgInternalFlag MessageKind = 1 << 16
)

// Internal returns a copy of k tagged with the internal-access flag,
// granting access to internal-only objects and attributes for the
// duration of this one message.
func (k MessageKind) Internal() MessageKind { return k | msgInternalFlag }

// IsInternal reports whether k carries the internal-access flag.
func (k MessageKind) IsInternal() bool { return k&msgInternalFlag != 0 }

// baseKind strips the internal flag.
func (k MessageKind) baseKind() MessageKind { return k &^ msgInternalFlag }

// AttributeID names one attribute addressable via GET/SET/DELETE
// ATTRIBUTE messages.
type AttributeID int

const (
	AttrNone AttributeID = iota
	AttrStatus
	AttrKey
	AttrMode
	AttrIV
	AttrKeyingIterations
	AttrUsageCount
	AttrForwardCount
	AttrHighSecurity
	AttrRandom
	AttrRandomQuality
	AttrEntropy
	AttrEntropyQuality
	AttrSubjectAltName
	AttrIPAddress
	AttrCurrentGroup
	AttrLockCount
	AttrLockOwner
	AttrNotYetValidTime
	AttrValidToTime
)

// ParamValueKind classifies the small-integer parameter a message may
// carry.
type ParamValueKind int

const (
	ParamNone ParamValueKind = iota
	ParamBoolean
	ParamObjectType
	ParamMechanismType
	ParamItemType
	ParamFormatType
	ParamCompareType
	ParamLength
	ParamAny
)

// Message is the dispatcher's only unit of work: a 4-tuple of target
// handle, kind, optional data, and a small integer parameter.
type Message struct {
	Target Handle
	Kind   MessageKind
	Attr   AttributeID
	Data   []byte
	Num    int

	// External is true for messages originating outside the kernel's
	// own trusted call chain (i.e. not carrying the internal flag and
	// not issued by another kernel message handler).
	External bool
}

// MessageHandler is an object's own message handler, invoked by the
// dispatcher with the table lock dropped. tok identifies the logical
// call chain so nested sends from within the handler reuse the same
// re-entrant-mutex ownership.
type MessageHandler func(msg Message, tok goroutineToken) (Status, []byte)
