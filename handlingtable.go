package ckernel

// installHandlingTable populates d.handling, the data-not-code table
// the dispatcher drives by indexed lookup ("message
// passing over deep call chains" design note: "make the handling table
// data, not code").
func (d *Dispatcher) installHandlingTable() {
	h := d.handling

	h[MsgDestroy] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			return d.table.Destroy(msg.Target, newGoroutineToken()), nil
		},
	}
	h[MsgIncRefCount] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			return d.table.IncRef(msg.Target), nil
		},
	}
	h[MsgDecRefCount] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			return d.table.DecRef(msg.Target), nil
		},
	}
	h[MsgGetDependent] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			dep, st := d.table.GetDependent(msg.Target, msg.Num != 0)
			if !st.OK() {
				return st, nil
			}
			return st, handleBytes(dep)
		},
	}
	h[MsgSetDependent] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			return d.table.SetDependent(msg.Target, Handle(msg.Num), len(msg.Data) != 0), nil
		},
	}
	h[MsgClone] = &handlingEntry{
		Routing: RouteNone,
		KernelHandler: func(d *Dispatcher, msg Message) (Status, []byte) {
			clone, st := d.table.Clone(msg.Target)
			if !st.OK() {
				return st, nil
			}
			return st, handleBytes(clone)
		},
	}

	h[MsgGetAttribute] = d.attributeEntry(OpRead)
	h[MsgGetAttributeString] = d.attributeEntry(OpRead)
	h[MsgSetAttribute] = d.attributeEntry(OpWrite)
	h[MsgSetAttributeString] = d.attributeEntry(OpWrite)
	h[MsgDeleteAttribute] = d.attributeEntry(OpDelete)

	h[MsgCompare] = &handlingEntry{Routing: RouteNone}
	h[MsgCheck] = &handlingEntry{Routing: RouteNone}

	h[MsgEncrypt] = d.actionEntry(ActionEncrypt)
	h[MsgDecrypt] = d.actionEntry(ActionDecrypt)
	h[MsgSign] = d.actionEntry(ActionSign)
	h[MsgSigCheck] = d.actionEntry(ActionSigCheck)
	h[MsgHash] = d.actionEntry(ActionHash)
	h[MsgGenKey] = d.actionEntry(ActionGenKey)
	h[MsgGenIV] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeCtxConventional}

	h[MsgCrtSign] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeCtxPKC}
	h[MsgCrtSigCheck] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeCtxPKC}
	h[MsgCrtExport] = &handlingEntry{Routing: RouteNone}

	h[MsgDevQueryCapability] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgDevExport] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgDevImport] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgDevSign] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgDevSigCheck] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgDevDerive] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgCreateObject] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}
	h[MsgCreateObjectIndirect] = &handlingEntry{Routing: RouteNone, ValidSubtypes: SubtypeDevSystem | SubtypeDevHardware}

	h[MsgEnvPushData] = &handlingEntry{Routing: RouteNone}
	h[MsgEnvPopData] = &handlingEntry{Routing: RouteNone}

	h[MsgKeysetGetKey] = &handlingEntry{Routing: RouteNone}
	h[MsgKeysetSetKey] = &handlingEntry{Routing: RouteNone}
	h[MsgKeysetDeleteKey] = &handlingEntry{Routing: RouteNone}
	h[MsgKeysetGetFirstCert] = &handlingEntry{Routing: RouteNone}
	h[MsgKeysetGetNextCert] = &handlingEntry{Routing: RouteNone}
	h[MsgCertMgmt] = &handlingEntry{Routing: RouteNone}
}

// attributeEntry builds the (shared-shape) handling entry for one of
// the five attribute message kinds, wiring the attribute ACL as the
// pre-dispatch check.
func (d *Dispatcher) attributeEntry(op AccessOp) *handlingEntry {
	return &handlingEntry{
		Routing: RouteNone,
		PreDispatch: func(d *Dispatcher, o *object, msg *Message) Status {
			if st := d.acl.checkAttributeAccess(o, msg.Attr, op, msg.External); !st.OK() {
				return st
			}
			if op != OpWrite {
				return StatusOK
			}
			entry, ok := d.acl.attrs[msg.Attr]
			if !ok {
				return StatusArgValue
			}
			switch entry.Value {
			case ValNumeric, ValTime:
				return d.acl.checkAttributeRange(msg.Attr, int64(msg.Num))
			case ValByteString, ValWideString:
				return d.acl.checkByteStringLen(msg.Attr, len(msg.Data))
			default:
				return StatusOK
			}
		},
		PostDispatch: func(d *Dispatcher, o *object, msg *Message, result Status) Status {
			if !result.OK() {
				return result
			}
			if entry, ok := d.acl.attrs[msg.Attr]; ok && entry.Flags&attrTrigger != 0 && op == OpWrite {
				o.flags |= flagHighState
			}
			return result
		},
	}
}

// actionEntry builds the handling entry shared by the six action
// message kinds: action-permission check, usage-count check, and (on
// success) usage-count decrement.
func (d *Dispatcher) actionEntry(kind ActionKind) *handlingEntry {
	return &handlingEntry{
		Routing:       RouteNone,
		ValidSubtypes: SubtypeCtxConventional | SubtypeCtxPKC | SubtypeCtxHash | SubtypeCtxMAC,
		PreDispatch: func(d *Dispatcher, o *object, msg *Message) Status {
			if o.flags.has(flagNotInited) || !o.flags.has(flagHighState) {
				return StatusNotInited
			}
			if st := checkActionPermission(o, kind, msg.External); !st.OK() {
				return st
			}
			return checkUsageCount(o)
		},
		PostDispatch: func(d *Dispatcher, o *object, msg *Message, result Status) Status {
			if result.OK() {
				decrementUsage(o)
			}
			return result
		},
	}
}

func handleBytes(h Handle) []byte {
	return []byte{byte(h), byte(h >> 8), byte(h >> 16), byte(h >> 24)}
}
