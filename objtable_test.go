package ckernel

import "testing"

func newTestTable(t *testing.T) *objectTable {
	t.Helper()
	return newObjectTable(8, NewAllocator())
}

func TestCreateAndValidate(t *testing.T) {
	table := newTestTable(t)
	h, st := table.Create(CreateParams{
		Type:     TypeContext,
		Subtype:  SubtypeCtxConventional,
		Perms:    defaultActionPerms(),
		Instance: &struct{}{},
	})
	if !st.OK() {
		t.Fatalf("Create: %v", st)
	}
	table.mu.Lock()
	o, st := table.validate(h, TypeContext)
	table.mu.Unlock()
	if !st.OK() {
		t.Fatalf("validate: %v", st)
	}
	if o.isFree() {
		t.Fatal("freshly created object reports isFree()")
	}
	if !o.flags.has(flagNotInited) {
		t.Fatal("new object should start flagNotInited")
	}
}

func TestCreateRejectsNilInstance(t *testing.T) {
	table := newTestTable(t)
	if _, st := table.Create(CreateParams{Type: TypeContext}); st.OK() {
		t.Fatal("Create with nil Instance should fail")
	}
}

func TestTableExpandsPastInitialSize(t *testing.T) {
	table := newObjectTable(2, NewAllocator())
	var handles []Handle
	for i := 0; i < 20; i++ {
		h, st := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
		if !st.OK() {
			t.Fatalf("Create #%d: %v", i, st)
		}
		handles = append(handles, h)
	}
	if len(table.table) <= 2 {
		t.Fatalf("table did not expand: size=%d", len(table.table))
	}
	seen := map[Handle]bool{}
	for _, h := range handles {
		if seen[h] {
			t.Fatalf("duplicate handle %d issued", h)
		}
		seen[h] = true
	}
}

func TestDestroyFreesSlot(t *testing.T) {
	table := newTestTable(t)
	h, st := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
	if !st.OK() {
		t.Fatalf("Create: %v", st)
	}
	if st := table.MarkInitedForTest(h); !st.OK() {
		t.Fatalf("mark inited: %v", st)
	}
	if st := table.Destroy(h, newGoroutineToken()); !st.OK() {
		t.Fatalf("Destroy: %v", st)
	}
	table.mu.Lock()
	free := table.table[h].isFree()
	table.mu.Unlock()
	if !free {
		t.Fatal("slot not freed after Destroy")
	}
}

// MarkInitedForTest is a tiny test-only helper mirroring the flag-clearing
// step of Kernel.MarkInitialised (it does not carry out a deferred destroy),
// kept here (not in init.go) since it operates directly on a bare
// objectTable rather than a full Kernel.
func (t *objectTable) MarkInitedForTest(h Handle) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		return st
	}
	o.flags &^= flagNotInited | flagInternal
	return StatusOK
}

func TestDestroyDeferredWhileNotInited(t *testing.T) {
	table := newTestTable(t)
	h, st := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
	if !st.OK() {
		t.Fatalf("Create: %v", st)
	}
	if st := table.Destroy(h, newGoroutineToken()); !st.OK() {
		t.Fatalf("Destroy: %v", st)
	}
	table.mu.Lock()
	free := table.table[h].isFree()
	signalled := table.table[h].flags.has(flagSignalled)
	table.mu.Unlock()
	if free {
		t.Fatal("destroy of a not-inited object must defer, not free immediately")
	}
	if !signalled {
		t.Fatal("deferred destroy should mark flagSignalled")
	}
}

func TestSetDependentRejectsCycle(t *testing.T) {
	table := newTestTable(t)
	a, _ := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
	b, _ := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
	if st := table.SetDependent(a, b, false); !st.OK() {
		t.Fatalf("SetDependent a->b: %v", st)
	}
	if st := table.SetDependent(b, a, false); st.OK() {
		t.Fatal("SetDependent creating a 2-cycle should fail")
	}
}

func TestCloneAliases(t *testing.T) {
	table := newTestTable(t)
	h, _ := table.Create(CreateParams{Type: TypeContext, Instance: &struct{ v int }{v: 42}})
	clone, st := table.Clone(h)
	if !st.OK() {
		t.Fatalf("Clone: %v", st)
	}
	table.mu.Lock()
	orig := table.table[h]
	cl := table.table[clone]
	table.mu.Unlock()
	if !orig.flags.has(flagAliased) {
		t.Fatal("original not marked aliased after Clone")
	}
	if !cl.flags.has(flagCloned) {
		t.Fatal("clone not marked flagCloned")
	}
}

func TestIncDecRefCountDestroys(t *testing.T) {
	table := newTestTable(t)
	h, _ := table.Create(CreateParams{Type: TypeContext, Instance: &struct{}{}})
	table.MarkInitedForTest(h)
	// A fresh object starts at refCount 0; two extra retains must be
	// balanced by two releases before the object goes away.
	if st := table.IncRef(h); !st.OK() {
		t.Fatalf("IncRef #1: %v", st)
	}
	if st := table.IncRef(h); !st.OK() {
		t.Fatalf("IncRef #2: %v", st)
	}
	if st := table.DecRef(h); !st.OK() {
		t.Fatalf("DecRef #1: %v", st)
	}
	table.mu.Lock()
	free := table.table[h].isFree()
	table.mu.Unlock()
	if free {
		t.Fatal("object destroyed too early")
	}
	if st := table.DecRef(h); !st.OK() {
		t.Fatalf("DecRef #2: %v", st)
	}
	table.mu.Lock()
	free = table.table[h].isFree()
	table.mu.Unlock()
	if !free {
		t.Fatal("object should be destroyed once refCount returns to 0")
	}
}
