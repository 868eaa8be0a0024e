package ckernel

// Kernel self-test suite
//
// Runs as the last step of completeInit: a handful of policy checks
// that exercise the ACL tables directly (no object creation needed) plus
// one algorithm self-test per installed capability. Grounded on
// cryptlib/device/dev_sys.c's selfTest dispatch, which runs the
// capability self-tests before the device is considered usable, and on
// a handful of kernel-policy scenarios worth checking by name.

func runSelfTests(k *Kernel) Status {
	if st := selfTestAttributeRange(k.acl); !st.OK() {
		return st
	}
	if st := selfTestUsageCountExhaustion(); !st.OK() {
		return st
	}
	if st := selfTestForwardCountLock(k.acl); !st.OK() {
		return st
	}
	if st := selfTestInternalOnlyVisibility(k.acl); !st.OK() {
		return st
	}
	if st := selfTestIPAddressRange(k.acl); !st.OK() {
		return st
	}
	if st := selfTestAttributeGroupRange(k.acl); !st.OK() {
		return st
	}
	for id, cap := range capabilityTable {
		if cap.SelfTest == nil {
			continue
		}
		if st := cap.SelfTest(); !st.OK() {
			return statusForFailedCapability(id)
		}
	}
	return StatusOK
}

func statusForFailedCapability(AlgorithmID) Status { return StatusFailed }

// selfTestAttributeRange verifies the numeric range enforcement that
// KEYING_ITERATIONS depends on: it accepts 1..20000 and
// rejects 0 and 20001.
func selfTestAttributeRange(a *aclSet) Status {
	if st := a.checkAttributeRange(AttrKeyingIterations, 1); !st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrKeyingIterations, 20000); !st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrKeyingIterations, 0); st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrKeyingIterations, 20001); st.OK() {
		return StatusFailed
	}
	return StatusOK
}

// selfTestUsageCountExhaustion verifies the usage-count monotone law in
// isolation: an object at usageCnt==1 permits exactly one action and
// then locks out every action kind.
func selfTestUsageCountExhaustion() Status {
	o := &object{usageCnt: 1, perms: defaultActionPerms()}
	o.perms[ActionEncrypt] = LevelFull
	if st := checkUsageCount(o); !st.OK() {
		return StatusFailed
	}
	decrementUsage(o)
	if o.usageCnt != 0 {
		return StatusFailed
	}
	if o.perms[ActionEncrypt] != LevelNotAvailable {
		return StatusFailed
	}
	if st := checkUsageCount(o); st.OK() {
		return StatusFailed
	}
	return StatusOK
}

// selfTestForwardCountLock verifies FORWARDCOUNT is never writable by
// an external caller once the object is in the high state, regardless
// of how many forwards remain — the "forward-count lock" scenario.
func selfTestForwardCountLock(a *aclSet) Status {
	high := &object{flags: flagHighState, subType: SubtypeCtxConventional}
	st := a.checkAttributeAccess(high, AttrForwardCount, OpWrite, true)
	if st.OK() {
		return StatusFailed
	}
	return StatusOK
}

// selfTestInternalOnlyVisibility verifies an externally-invisible
// attribute (ENTROPY, write-only and internal-only) is reported to an
// external caller as ArgValue, never Permission — so a caller can never
// distinguish "forbidden" from "does not exist".
func selfTestInternalOnlyVisibility(a *aclSet) Status {
	sysObj := &object{subType: SubtypeDevSystem}
	st := a.checkAttributeAccess(sysObj, AttrEntropy, OpWrite, true)
	if st != StatusArgValue {
		return StatusFailed
	}
	st = a.checkAttributeAccess(sysObj, AttrEntropy, OpWrite, false)
	if !st.OK() {
		return StatusFailed
	}
	return StatusOK
}

// selfTestIPAddressRange verifies the composite allowed-values check:
// exactly 4 or 16 bytes, nothing else.
func selfTestIPAddressRange(a *aclSet) Status {
	if st := a.checkByteStringLen(AttrIPAddress, 4); !st.OK() {
		return StatusFailed
	}
	if st := a.checkByteStringLen(AttrIPAddress, 16); !st.OK() {
		return StatusFailed
	}
	if st := a.checkByteStringLen(AttrIPAddress, 6); st.OK() {
		return StatusFailed
	}
	return StatusOK
}

// selfTestAttributeGroupRange verifies the composite subrange check:
// CURRENT_GROUP accepts [-10,-1] and [1,1000] but nothing in between or
// outside.
func selfTestAttributeGroupRange(a *aclSet) Status {
	if st := a.checkAttributeRange(AttrCurrentGroup, -5); !st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrCurrentGroup, 500); !st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrCurrentGroup, 0); st.OK() {
		return StatusFailed
	}
	if st := a.checkAttributeRange(AttrCurrentGroup, 1001); st.OK() {
		return StatusFailed
	}
	return StatusOK
}
