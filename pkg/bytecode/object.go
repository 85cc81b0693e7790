package bytecode

import "fmt"

// ObjKind tags the concrete payload an Obj header wraps.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
	ObjKindUpvalue
	ObjKindNative
	ObjKindClass
	ObjKindInstance
	ObjKindBoundMethod
)

// Obj is the header shared by every heap-allocated Lox value: a type tag for
// the collector's sweep switch, a mark bit set during the trace phase, and
// an intrusive link into the VM's list of every live allocation. The actual
// payload lives in data, asserted back to its concrete type by the Value
// accessor methods and by each payload's own self field.
type Obj struct {
	Kind   ObjKind
	Marked bool
	Next   *Obj
	Size   int // estimated bytes charged against the collector's allocation threshold
	data   any
}

func (o *Obj) String() string {
	switch o.Kind {
	case ObjKindString:
		return o.data.(*ObjString).Chars
	case ObjKindFunction:
		return o.data.(*ObjFunction).String()
	case ObjKindClosure:
		return o.data.(*ObjClosure).Function.String()
	case ObjKindUpvalue:
		return "upvalue"
	case ObjKindNative:
		return "<native fn>"
	case ObjKindClass:
		return o.data.(*ObjClass).Name.Chars
	case ObjKindInstance:
		return o.data.(*ObjInstance).Class.Name.Chars + " instance"
	case ObjKindBoundMethod:
		return o.data.(*ObjBoundMethod).Method.Function.String()
	default:
		return fmt.Sprintf("<obj kind %d>", o.Kind)
	}
}

// ObjString is an interned, immutable string. Equal content always shares
// one ObjString, so equality and hash-table lookup reduce to pointer
// comparison; see table.go and gc.go's string-interning path.
type ObjString struct {
	Chars string
	Hash  uint32

	// self back-points to the Obj wrapping this string, so the interning
	// table and the collector can get from an *ObjString to its mark bit
	// and sweep-list link without a second lookup.
	self *Obj
}

// ObjFunction is a compiled Lox function body: its arity, its upvalue
// count, and the bytecode chunk that implements it. The top-level script is
// represented as a nameless ObjFunction with arity 0.
type ObjFunction struct {
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString // nil for the top-level script

	self *Obj
}

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// UpvalueDescriptor records, for one upvalue slot of a closure, whether the
// compiler resolved it to a local slot of the immediately enclosing function
// (Index is a stack slot) or to an upvalue of that enclosing function
// (Index is an upvalue index). Emitted by the compiler after OP_CLOSURE's
// function-constant operand, one pair of bytes per upvalue.
type UpvalueDescriptor struct {
	Index   uint8
	IsLocal bool
}

// ObjClosure pairs a compiled function with the upvalues it captured at the
// point it was created.
type ObjClosure struct {
	Function *ObjFunction
	Upvalues []*ObjUpvalue

	self *Obj
}

// ObjUpvalue is a reference cell for a variable captured by a closure. While
// the upvalue is open, Location points at a live stack slot; once the frame
// that owns that slot returns, closeUpvalues copies the value into Closed
// and repoints Location at it, so further reads and writes go through the
// cell instead of the (now-reused) stack slot. Next threads this upvalue
// into the VM's sorted list of open upvalues.
type ObjUpvalue struct {
	Location *Value
	Closed   Value
	Next     *ObjUpvalue

	// slot is the stack index Location points at while the upvalue is open.
	// Go has no pointer subtraction, so the VM tracks this alongside
	// Location instead of recovering it from pointer arithmetic the way
	// clox's captureUpvalue/closeUpvalues do.
	slot int

	self *Obj
}

// NativeFn is the signature for a function implemented in Go and exposed to
// Lox code as a callable global.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a NativeFn so it can be stored in a Value and called
// through the same OpCall path as a Lox closure.
type ObjNative struct {
	Fn   NativeFn
	Name string
}

// ObjClass is a runtime class: its name and its method table, keyed by
// interned method-name ObjString so lookups are pointer-keyed.
type ObjClass struct {
	Name    *ObjString
	Methods *Table

	self *Obj
}

// ObjInstance is an instance of an ObjClass with its own field table.
// Fields are created lazily on first assignment, exactly as in Lox.
type ObjInstance struct {
	Class  *ObjClass
	Fields *Table
}

// ObjBoundMethod pairs a receiver with one of its class's closures, the
// result of evaluating `instance.method` without calling it; calling the
// bound method re-inserts the receiver at stack slot zero before invoking
// Method, exactly as if it had been called as instance.method(...).
type ObjBoundMethod struct {
	Receiver Value
	Method   *ObjClosure
}
