package ckernel

// Key-management ACL
//
// Keyed on item type (public key, private key, secret key, cert
// request, PKI user, revocation info, data). Grounded on
// cryptlib/kernel/key_acl.c.

type keyItemType int

const (
	KeyItemPublicKey keyItemType = iota
	KeyItemPrivateKey
	KeyItemSecretKey
	KeyItemCertRequest
	KeyItemPKIUser
	KeyItemRevocationInfo
	KeyItemData
)

// keysetAccess is one of read/write/delete/getFirstCert/query.
type keysetAccess int

const (
	KeysetRead keysetAccess = 1 << iota
	KeysetWrite
	KeysetDelete
	KeysetGetFirstCert
	KeysetQuery
)

// keyMgmtFlag mirrors the original's KEYMGMT_FLAG_* bitmask.
type keyMgmtFlag uint32

const (
	KeyMgmtCheckOnly keyMgmtFlag = 1 << iota
	KeyMgmtLabelOnly
	KeyMgmtUpdate
	KeyMgmtUserID
)

type keyManagementACLEntry struct {
	ValidKeysetSubtypes Subtype
	Access              keysetAccess
	WritableObjectTypes Subtype
	AllowedFlags        keyMgmtFlag
	RequiresKeyID       bool
	RequiresPassword    bool
	// RequiredObjectSubtype constrains item types that demand a
	// specific concrete object (e.g. a certificate, not merely any PKC
	// context) rather than accepting the broader subtype mask above.
	RequiredObjectSubtype Subtype
}

func (a *aclSet) installKeyManagementACL() {
	a.keymgmt = map[keyItemType]keyManagementACLEntry{
		KeyItemPublicKey: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetQuery,
			WritableObjectTypes: SubtypeCtxPKC,
			AllowedFlags:        KeyMgmtCheckOnly | KeyMgmtLabelOnly,
			RequiresKeyID:       true,
		},
		KeyItemPrivateKey: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetDelete,
			WritableObjectTypes: SubtypeCtxPKC,
			AllowedFlags:        KeyMgmtUpdate,
			RequiresKeyID:       true,
			RequiresPassword:    true,
		},
		KeyItemSecretKey: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetDelete,
			WritableObjectTypes: SubtypeCtxConventional | SubtypeCtxMAC,
			RequiresKeyID:       true,
			RequiresPassword:    true,
		},
		KeyItemCertRequest: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite,
			WritableObjectTypes: ^Subtype(0),
		},
		KeyItemPKIUser: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetDelete,
			WritableObjectTypes: ^Subtype(0),
			RequiresKeyID:       true,
		},
		KeyItemRevocationInfo: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetQuery,
			WritableObjectTypes: ^Subtype(0),
		},
		KeyItemData: {
			ValidKeysetSubtypes: ^Subtype(0),
			Access:              KeysetRead | KeysetWrite | KeysetDelete | KeysetGetFirstCert | KeysetQuery,
			WritableObjectTypes: ^Subtype(0),
		},
	}
}

// checkKeyManagementAccess validates one keyset operation against the
// ACL for its item type.
func (a *aclSet) checkKeyManagementAccess(item keyItemType, op keysetAccess, hasKeyID, hasPassword bool) Status {
	entry, ok := a.keymgmt[item]
	if !ok {
		return StatusArgValue
	}
	if entry.Access&op == 0 {
		return StatusPermission
	}
	if entry.RequiresKeyID && !hasKeyID {
		return StatusArgStr1
	}
	if entry.RequiresPassword && !hasPassword {
		return StatusArgStr2
	}
	return StatusOK
}
