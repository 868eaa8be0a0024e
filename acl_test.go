package ckernel

import (
	"testing"
	"time"
)

func newTestACL(t *testing.T) *aclSet {
	t.Helper()
	return newACLSet(time.Now())
}

func TestAttributeAccessExternalLowState(t *testing.T) {
	acl := newTestACL(t)
	o := &object{subType: SubtypeCtxConventional}
	// KEY is write-only for an external caller on a low-state object.
	if st := acl.checkAttributeAccess(o, AttrKey, OpWrite, true); !st.OK() {
		t.Fatalf("external write of KEY on low-state object: %v", st)
	}
	if st := acl.checkAttributeAccess(o, AttrKey, OpRead, true); st.OK() {
		t.Fatal("external read of KEY should never be permitted")
	}
}

func TestAttributeAccessUnknownAttributeIsArgValue(t *testing.T) {
	acl := newTestACL(t)
	o := &object{subType: SubtypeCtxConventional}
	if st := acl.checkAttributeAccess(o, AttributeID(9999), OpRead, true); st != StatusArgValue {
		t.Fatalf("unknown attribute should be ArgValue, got %v", st)
	}
}

func TestAttributeAccessWrongSubtypeIsArgValue(t *testing.T) {
	acl := newTestACL(t)
	o := &object{subType: SubtypeCtxHash}
	if st := acl.checkAttributeAccess(o, AttrMode, OpRead, true); st != StatusArgValue {
		t.Fatalf("MODE on a hash context should be ArgValue, got %v", st)
	}
}

func TestCheckAttributeRangeKeyingIterations(t *testing.T) {
	acl := newTestACL(t)
	cases := []struct {
		v  int64
		ok bool
	}{
		{0, false}, {1, true}, {20000, true}, {20001, false},
	}
	for _, c := range cases {
		st := acl.checkAttributeRange(AttrKeyingIterations, c.v)
		if st.OK() != c.ok {
			t.Errorf("checkAttributeRange(%d) = %v, want ok=%v", c.v, st, c.ok)
		}
	}
}

func TestCheckAttributeRangeTimeBounds(t *testing.T) {
	acl := newTestACL(t)
	tooOld := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	ok := time.Now().Unix()
	tooFar := time.Now().AddDate(200, 0, 0).Unix()
	if st := acl.checkAttributeRange(AttrValidToTime, tooOld); st.OK() {
		t.Fatal("a time before MinTime should be rejected")
	}
	if st := acl.checkAttributeRange(AttrValidToTime, ok); !st.OK() {
		t.Fatalf("a present-day time should be accepted: %v", st)
	}
	if st := acl.checkAttributeRange(AttrValidToTime, tooFar); st.OK() {
		t.Fatal("a time 200 years out should be rejected")
	}
}

func TestCheckActionPermission(t *testing.T) {
	o := &object{perms: defaultActionPerms()}
	o.perms[ActionEncrypt] = LevelInternalOnly
	if st := checkActionPermission(o, ActionEncrypt, true); st.OK() {
		t.Fatal("external caller should not get an internal-only action")
	}
	if st := checkActionPermission(o, ActionEncrypt, false); !st.OK() {
		t.Fatalf("internal caller should get an internal-only action: %v", st)
	}
	o.perms[ActionSign] = LevelNotAvailable
	if st := checkActionPermission(o, ActionSign, false); st != StatusNotAvail {
		t.Fatalf("NotAvailable action should report StatusNotAvail, got %v", st)
	}
}

func TestKeyManagementACLRequiresKeyID(t *testing.T) {
	acl := newTestACL(t)
	if st := acl.checkKeyManagementAccess(KeyItemPublicKey, KeysetRead, false, false); st != StatusArgStr1 {
		t.Fatalf("missing key ID should be ArgStr1, got %v", st)
	}
	if st := acl.checkKeyManagementAccess(KeyItemPublicKey, KeysetRead, true, false); !st.OK() {
		t.Fatalf("public key read with key ID should succeed: %v", st)
	}
}

func TestMechanismACLBufferRanges(t *testing.T) {
	acl := newTestACL(t)
	st := acl.checkMechanismAccess(MechDerive, MechDerivePBKDF2, [3]int{10, 16, 32}, nil)
	if !st.OK() {
		t.Fatalf("valid PBKDF2 mechanism call: %v", st)
	}
	st = acl.checkMechanismAccess(MechDerive, MechDerivePBKDF2, [3]int{10, 4, 32}, nil)
	if st.OK() {
		t.Fatal("salt shorter than the minimum should be rejected")
	}
}

func TestCertMgmtACLRequiresHighStateCAKey(t *testing.T) {
	acl := newTestACL(t)
	lowKey := &object{objType: TypeContext, subType: SubtypeCtxPKC}
	if st := acl.checkCertMgmtAccess(CertActionIssueCert, false, lowKey); st.OK() {
		t.Fatal("issuing with a low-state CA key should fail")
	}
	highKey := &object{objType: TypeContext, subType: SubtypeCtxPKC, flags: flagHighState, hasDepend: true}
	if st := acl.checkCertMgmtAccess(CertActionIssueCert, false, highKey); !st.OK() {
		t.Fatalf("issuing with a qualifying CA key should succeed: %v", st)
	}
}
