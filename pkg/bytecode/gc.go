package bytecode

import (
	"log"
	"os"
)

// initialNextGC is the allocation threshold, in estimated bytes, at which
// the first collection runs. 1 MiB matches clox's memory.h constant.
const initialNextGC = 1 << 20

// gcHeapGrowFactor is how much nextGC grows after each collection relative
// to the heap size that collection left behind.
const gcHeapGrowFactor = 2

// GC is a tri-color mark-and-sweep collector over the VM's object heap. It
// also owns the string-interning table, since interning and collection are
// tied together in clox: a string can only be freed once nothing marks it
// and the interning table itself has dropped its own reference.
//
// Collection is synchronous and allocation-triggered — there is no
// background goroutine — so unlike the teacher's own *GC-suffixed type
// (vm/registry_gc.go, a periodically-swept concurrency registry) this one
// needs no Start/Stop lifecycle: every call into the bytecode package runs
// it inline when bytesAllocated crosses nextGC.
type GC struct {
	vm      *VM
	strings *Table

	objects        *Obj
	bytesAllocated int
	nextGC         int
	growFactor     float64
	grayStack      []*Obj

	// activeCompiler is the innermost compiler currently running, so a
	// collection triggered by an allocation made *during* compilation can
	// still find every ObjFunction reachable only through a half-finished
	// compiler chain. See markCompilerRoots.
	activeCompiler *compiler

	// DebugGC, when set, logs each collection via the standard log package,
	// the same ambient logging convention the teacher's JIT uses for its own
	// internal diagnostics.
	DebugGC bool

	// stressGC, latched from LOX_GC_STRESS once at VM construction, forces
	// track to collect on every allocation instead of waiting for nextGC.
	// It exists to exercise the rooting discipline (allocate, push, then
	// allocate again) under the worst-case collection frequency; it changes
	// when garbage is reclaimed, never what reachability computes.
	stressGC bool
}

// NewGC returns a GC with an empty heap and the built-in tuning constants,
// ready to be attached to a VM.
func NewGC() *GC {
	return NewGCWithOptions(initialNextGC, gcHeapGrowFactor)
}

// NewGCWithOptions returns a GC tuned by initialThreshold (bytes allocated
// before the first collection) and growthFactor (nextGC's multiplier after
// each collection), letting the config package (§4.8) override the §4.6
// defaults without this package knowing about TOML or files. Values <= 0
// fall back to the built-in defaults.
func NewGCWithOptions(initialThreshold int, growthFactor float64) *GC {
	if initialThreshold <= 0 {
		initialThreshold = initialNextGC
	}
	if growthFactor <= 0 {
		growthFactor = gcHeapGrowFactor
	}
	return &GC{strings: NewTable(), nextGC: initialThreshold, growFactor: growthFactor}
}

func (g *GC) attachVM(vm *VM) {
	g.vm = vm
	if os.Getenv("LOX_GC_STRESS") != "" {
		g.stressGC = true
		log.Printf("gc: LOX_GC_STRESS enabled, collecting on every allocation")
	}
}

// track accounts for a new allocation and links obj into the heap's object
// list. The threshold check runs before linking, not after: obj isn't
// reachable from any root yet, so a collection triggered here must not be
// able to find and free it either way, but running the check first matches
// clox's reallocate()-before-allocateObject()-linking order and keeps a
// stress-mode collection from racing a half-initialized object onto the
// sweep list.
func (g *GC) track(obj *Obj, size int) {
	g.bytesAllocated += size
	if g.stressGC || g.bytesAllocated > g.nextGC {
		g.collectGarbage()
	}

	obj.Next = g.objects
	obj.Size = size
	g.objects = obj
}

// hashString computes the FNV-1a hash clox uses for every ObjString, so
// string hashing here is identical across implementations for the same
// input bytes.
func hashString(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// InternString returns the canonical ObjString for chars, allocating and
// interning a new one only if an equal string isn't already on the heap.
func (g *GC) InternString(chars string) *ObjString {
	hash := hashString(chars)
	if existing := g.strings.FindString(chars, hash); existing != nil {
		return existing
	}

	str := &ObjString{Chars: chars, Hash: hash}
	obj := &Obj{Kind: ObjKindString, data: str}
	str.self = obj
	g.track(obj, len(chars)+16)

	// The table lookup in a later GC cycle must not itself keep the string
	// alive (that would defeat interning's whole purpose of weak lookup),
	// so the value stored is nil and only markRoots/blackenObject's object
	// graph walk can mark it live.
	g.strings.Set(str, NilValue)
	return str
}

// StringValue wraps an interned string as a Value.
func StringValue(s *ObjString) Value {
	return ObjValue(s.self)
}

// NewFunction allocates an empty function; the caller fills in Arity,
// Name, and Chunk as compilation proceeds.
func (g *GC) NewFunction() (*Obj, *ObjFunction) {
	fn := &ObjFunction{Chunk: NewChunk()}
	obj := &Obj{Kind: ObjKindFunction, data: fn}
	fn.self = obj
	g.track(obj, 64)
	return obj, fn
}

// NewClosure allocates a closure over fn with upvalueCount empty upvalue
// slots for the VM's OP_CLOSURE handler to fill in.
func (g *GC) NewClosure(fn *ObjFunction) (*Obj, *ObjClosure) {
	cl := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	obj := &Obj{Kind: ObjKindClosure, data: cl}
	cl.self = obj
	g.track(obj, 32+8*fn.UpvalueCount)
	return obj, cl
}

// NewUpvalue allocates an open upvalue pointing at the live stack slot at
// index slotIndex.
func (g *GC) NewUpvalue(location *Value, slotIndex int) (*Obj, *ObjUpvalue) {
	uv := &ObjUpvalue{Location: location, slot: slotIndex}
	obj := &Obj{Kind: ObjKindUpvalue, data: uv}
	uv.self = obj
	g.track(obj, 40)
	return obj, uv
}

// NewNative wraps fn as a callable Lox value.
func (g *GC) NewNative(name string, fn NativeFn) *Obj {
	native := &ObjNative{Fn: fn, Name: name}
	obj := &Obj{Kind: ObjKindNative, data: native}
	g.track(obj, 24)
	return obj
}

// NewClass allocates an empty class named name.
func (g *GC) NewClass(name *ObjString) (*Obj, *ObjClass) {
	cls := &ObjClass{Name: name, Methods: NewTable()}
	obj := &Obj{Kind: ObjKindClass, data: cls}
	cls.self = obj
	g.track(obj, 32)
	return obj, cls
}

// NewInstance allocates an instance of class with an empty field table.
func (g *GC) NewInstance(class *ObjClass) (*Obj, *ObjInstance) {
	inst := &ObjInstance{Class: class, Fields: NewTable()}
	obj := &Obj{Kind: ObjKindInstance, data: inst}
	g.track(obj, 32)
	return obj, inst
}

// NewBoundMethod allocates a method bound to its receiver.
func (g *GC) NewBoundMethod(receiver Value, method *ObjClosure) (*Obj, *ObjBoundMethod) {
	bound := &ObjBoundMethod{Receiver: receiver, Method: method}
	obj := &Obj{Kind: ObjKindBoundMethod, data: bound}
	g.track(obj, 32)
	return obj, bound
}

func (g *GC) markValue(v Value) {
	if v.Type == ValObj {
		g.markObject(v.Obj)
	}
}

func (g *GC) markObject(obj *Obj) {
	if obj == nil || obj.Marked {
		return
	}
	if g.DebugGC {
		log.Printf("gc: mark %p %s", obj, obj.String())
	}
	obj.Marked = true
	g.grayStack = append(g.grayStack, obj)
}

func (g *GC) markArray(values []Value) {
	for _, v := range values {
		g.markValue(v)
	}
}

func (g *GC) markTable(t *Table) {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.key != nil {
			g.markObject(objOf(entry.key))
			g.markValue(entry.value)
		}
	}
}

func (g *GC) markRoots() {
	vm := g.vm
	if vm == nil {
		g.markCompilerRoots()
		return
	}

	for i := 0; i < vm.stackTop; i++ {
		g.markValue(vm.stack[i])
	}

	for i := 0; i < vm.frameCount; i++ {
		if cl := vm.frames[i].closure; cl != nil {
			g.markObject(cl.self)
		}
	}

	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		g.markObject(uv.self)
	}

	g.markTable(vm.globals)
	g.markObject(objOf(vm.initString))
	g.markCompilerRoots()
}

// objOf recovers the Obj header for an interned string, or nil.
func objOf(s *ObjString) *Obj {
	if s == nil {
		return nil
	}
	return s.self
}

func (g *GC) markCompilerRoots() {
	for c := g.activeCompiler; c != nil; c = c.enclosing {
		if c.function != nil {
			g.markObject(c.function.self)
		}
	}
}

func (g *GC) blackenObject(obj *Obj) {
	if g.DebugGC {
		log.Printf("gc: blacken %p %s", obj, obj.String())
	}

	switch obj.Kind {
	case ObjKindUpvalue:
		g.markValue(obj.data.(*ObjUpvalue).Closed)

	case ObjKindClosure:
		cl := obj.data.(*ObjClosure)
		if cl.Function != nil {
			g.markObject(cl.Function.self)
		}
		for _, uv := range cl.Upvalues {
			if uv != nil {
				g.markObject(uv.self)
			}
		}

	case ObjKindFunction:
		fn := obj.data.(*ObjFunction)
		g.markObject(objOf(fn.Name))
		g.markArray(fn.Chunk.Constants)

	case ObjKindClass:
		cls := obj.data.(*ObjClass)
		g.markObject(objOf(cls.Name))
		g.markTable(cls.Methods)

	case ObjKindInstance:
		inst := obj.data.(*ObjInstance)
		if inst.Class != nil {
			g.markObject(inst.Class.self)
		}
		g.markTable(inst.Fields)

	case ObjKindBoundMethod:
		bound := obj.data.(*ObjBoundMethod)
		g.markValue(bound.Receiver)
		if bound.Method != nil {
			g.markObject(bound.Method.self)
		}

	case ObjKindNative, ObjKindString:
		// No outgoing references.
	}
}

func (g *GC) traceReferences() {
	for len(g.grayStack) > 0 {
		obj := g.grayStack[len(g.grayStack)-1]
		g.grayStack = g.grayStack[:len(g.grayStack)-1]
		g.blackenObject(obj)
	}
}

func (g *GC) sweep() {
	var previous *Obj
	obj := g.objects

	for obj != nil {
		if obj.Marked {
			obj.Marked = false
			previous = obj
			obj = obj.Next
			continue
		}

		unreached := obj
		obj = obj.Next
		if previous != nil {
			previous.Next = obj
		} else {
			g.objects = obj
		}
		g.bytesAllocated -= unreached.Size
		if g.DebugGC {
			log.Printf("gc: free %p", unreached)
		}
	}
}

func (g *GC) collectGarbage() {
	if g.DebugGC {
		log.Printf("gc: begin collect (bytesAllocated=%d nextGC=%d)", g.bytesAllocated, g.nextGC)
	}

	g.markRoots()
	g.traceReferences()
	g.strings.RemoveWhite()
	g.sweep()

	g.nextGC = int(float64(g.bytesAllocated) * g.growFactor)

	if g.DebugGC {
		log.Printf("gc: end collect (nextGC=%d)", g.nextGC)
	}
}
