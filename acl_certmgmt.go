package ckernel

// Certificate-management ACL
//
// Keyed on action kind (create, connect, issue-cert, revoke, expire,
// ...). Grounded on cryptlib/kernel/certm_acl.c.

type certAction int

const (
	CertActionCreate certAction = iota
	CertActionConnect
	CertActionIssueCert
	CertActionRevoke
	CertActionExpire
)

// certAccessLevel is the cert-mgmt equivalent of ActionLevel.
type certAccessLevel int

const (
	CertAccessNone certAccessLevel = iota
	CertAccessNoneExternal
	CertAccessAll
)

type certMgmtACLEntry struct {
	Access               certAccessLevel
	RequiresCAKeyHighState bool
	RequiresDependentCert  bool
	RequestSubtype         Subtype
}

func (a *aclSet) installCertMgmtACL() {
	a.certmgmt = map[certAction]certMgmtACLEntry{
		CertActionCreate: {Access: CertAccessAll},
		CertActionConnect: {Access: CertAccessAll},
		CertActionIssueCert: {
			Access:                 CertAccessAll,
			RequiresCAKeyHighState: true,
			RequiresDependentCert:  true,
			RequestSubtype:         ^Subtype(0),
		},
		CertActionRevoke: {
			Access:                 CertAccessNoneExternal,
			RequiresCAKeyHighState: true,
			RequiresDependentCert:  true,
		},
		CertActionExpire: {Access: CertAccessNoneExternal},
	}
}

// checkCertMgmtAccess validates a cert-management action: the caller's
// access level, and — for actions that require one — that the CA-key
// object is a high-state PKC private-key context with a dependent
// certificate.
func (a *aclSet) checkCertMgmtAccess(action certAction, external bool, caKey *object) Status {
	entry, ok := a.certmgmt[action]
	if !ok {
		return StatusArgValue
	}
	switch entry.Access {
	case CertAccessNone:
		return StatusPermission
	case CertAccessNoneExternal:
		if external {
			return StatusPermission
		}
	}
	if entry.RequiresCAKeyHighState {
		if caKey == nil || caKey.objType != TypeContext || caKey.subType&SubtypeCtxPKC == 0 {
			return StatusArgObject
		}
		if !caKey.flags.has(flagHighState) {
			return StatusNotInited
		}
	}
	if entry.RequiresDependentCert {
		if caKey == nil || !caKey.hasDepend {
			return StatusNotFound
		}
	}
	return StatusOK
}
