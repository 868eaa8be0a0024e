package ckernel

// Action permission
//
// An action message (ENCRYPT/DECRYPT/SIGN/SIGCHECK/HASH/GENKEY) is
// permitted iff the object's per-action level meets the caller's
// required level: external callers need LevelFull, internal callers
// need at least LevelInternalOnly. LevelNotAvailable always yields
// StatusNotAvail; any lower-but-present level yields StatusPermission.
// Grounded on kernel.h's action-permission bitmap semantics
// (GET_ACTION_PERM macros in msg_acl.c).

func checkActionPermission(o *object, kind ActionKind, external bool) Status {
	level := o.perms[kind]
	switch level {
	case LevelNotAvailable:
		return StatusNotAvail
	case LevelFull:
		return StatusOK
	case LevelInternalOnly:
		if external {
			return StatusPermission
		}
		return StatusOK
	default: // LevelNone
		return StatusPermission
	}
}

// checkUsageCount enforces the usage-count monotone law: if usageCnt is
// finite it must be > 0 for the action to proceed, and is decremented
// on success by the post-dispatch handler (decrementUsage).
func checkUsageCount(o *object) Status {
	if o.usageCnt == 0 {
		return StatusPermission
	}
	return StatusOK
}

func decrementUsage(o *object) {
	if o.usageCnt > 0 {
		o.usageCnt--
		if o.usageCnt == 0 {
			for i := range o.perms {
				o.perms[i] = LevelNotAvailable
			}
		}
	}
}
