package ckernel

// System device and default user
//
// The kernel's two fixed singleton objects: the system device at handle
// 0 (owning the CSPRNG and the capability table) and the default user
// at handle 1 (the root policy scope, auto-created as the system
// device's dependent). Grounded on cryptlib/device/system.c and
// device.h's system-object bootstrap sequence.

// device is the TypeDevice instance backing both SubtypeDevSystem (the
// system object) and objects created via CREATE_OBJECT for other device
// subtypes.
type device struct {
	subtype Subtype
	csprng  *CSPRNG
	alloc   *Allocator
}

// Handle is the system device's MessageHandler: GET_ATTRIBUTE(RANDOM)
// is its one externally meaningful operation (besides the generic
// kernel-handled messages every object gets for free), reached only
// through the dispatcher's attribute pipeline.
func (dv *device) Handle(msg Message, tok goroutineToken) (Status, []byte) {
	switch msg.Kind.baseKind() {
	case MsgGetAttributeString:
		if msg.Attr == AttrRandom {
			if dv.csprng == nil {
				return StatusNotAvail, nil
			}
			n := msg.Num
			if n <= 0 {
				return StatusArgNum1, nil
			}
			buf := make([]byte, n)
			if _, st := dv.csprng.Output(buf); !st.OK() {
				return st, nil
			}
			return StatusOK, buf
		}
		return StatusArgValue, nil

	case MsgSetAttributeString:
		switch msg.Attr {
		case AttrEntropy:
			if dv.csprng == nil {
				return StatusNotAvail, nil
			}
			dv.csprng.AddEntropy(msg.Data)
			return StatusOK, nil
		}
		return StatusArgValue, nil

	case MsgSetAttribute:
		if msg.Attr == AttrEntropyQuality {
			if dv.csprng == nil {
				return StatusNotAvail, nil
			}
			return dv.csprng.AddEntropyQuality(msg.Num), nil
		}
		return StatusArgValue, nil

	case MsgDevQueryCapability:
		if _, ok := Capability(AlgorithmID(msg.Num)); ok {
			return StatusOK, nil
		}
		return StatusNotAvail, nil

	case MsgDestroy:
		return StatusOK, nil

	default:
		return StatusArgValue, nil
	}
}

// bootstrapSystem creates the system device (handle 0, matching
// SystemHandle) and the default user (handle 1, matching
// DefaultUserHandle) in that order, wiring the default user as the
// system device's dependent. Grounded on cryptlib/kernel/init.c's
// initialisation sequence, which creates these two objects before
// anything else can run.
func bootstrapSystem(table *objectTable, alloc *Allocator, csprng *CSPRNG) Status {
	sysPerms := defaultActionPerms()
	sysDev := &device{subtype: SubtypeDevSystem, csprng: csprng, alloc: alloc}
	sysHandle, st := table.Create(CreateParams{
		Type:     TypeDevice,
		Subtype:  SubtypeDevSystem,
		Perms:    sysPerms,
		Instance: sysDev,
		Handler:  sysDev.Handle,
	})
	if !st.OK() {
		return st
	}
	if sysHandle != SystemHandle {
		return StatusFailed
	}
	// The system device is immediately usable: it needs no external key
	// load before GET_ATTRIBUTE(RANDOM) or DEV_QUERY_CAPABILITY work, and
	// it must be externally reachable at all (flagInternal cleared) or
	// no caller outside the kernel could ever reach the CSPRNG.
	table.table[sysHandle].flags &^= flagNotInited | flagInternal
	table.table[sysHandle].flags |= flagHighState

	userPerms := defaultActionPerms()
	userDev := &device{subtype: SubtypeUserNormal | SubtypeUserSO}
	userHandle, st := table.Create(CreateParams{
		Type:     TypeUser,
		Subtype:  SubtypeUserNormal | SubtypeUserSO,
		Owner:    sysHandle,
		HasOwner: true,
		Perms:    userPerms,
		Instance: userDev,
		Handler:  userDev.Handle,
	})
	if !st.OK() {
		return st
	}
	if userHandle != DefaultUserHandle {
		return StatusFailed
	}
	table.table[userHandle].flags &^= flagNotInited | flagInternal
	table.table[userHandle].flags |= flagHighState

	return table.SetDependent(sysHandle, userHandle, false)
}
