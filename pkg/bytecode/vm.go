package bytecode

import (
	"fmt"
	"io"
	"os"
	"time"
)

const framesMax = 64
const stackSlotsPerFrame = 256

// InterpretResult reports the outcome of running a script to completion.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is one activation record on the VM's call stack: a closure, an
// instruction pointer into that closure's chunk, and the stack index its
// locals start at.
type CallFrame struct {
	closure *ObjClosure
	ip      int
	slots   int // index into vm.stack where this frame's window begins
}

// Limits caps the VM's call-frame and value-stack capacity. A zero value in
// either field falls back to the §4.8 default (64 frames, 256 slots per
// frame); the config package is the only caller expected to override them.
type Limits struct {
	FramesMax          int
	StackSlotsPerFrame int
}

// DefaultLimits returns the built-in frame and stack-slot caps.
func DefaultLimits() Limits {
	return Limits{FramesMax: framesMax, StackSlotsPerFrame: stackSlotsPerFrame}
}

func (l Limits) withDefaults() Limits {
	if l.FramesMax <= 0 {
		l.FramesMax = framesMax
	}
	if l.StackSlotsPerFrame <= 0 {
		l.StackSlotsPerFrame = stackSlotsPerFrame
	}
	return l
}

// VM executes compiled chunks on a preallocated value stack and call-frame
// array, the same two-stack-no-per-call-heap-allocation shape clox uses for
// its bytecode interpreter. The backing slices are sized once at
// construction and never grown.
type VM struct {
	stack    []Value
	stackTop int

	frames     []CallFrame
	frameCount int

	openUpvalues *ObjUpvalue

	globals    *Table
	initString *ObjString

	gc *GC

	Stdout io.Writer
	Stderr io.Writer
}

// NewVM returns a VM with its own GC and default limits, ready to run
// scripts via Interpret.
func NewVM() *VM {
	return NewVMWithOptions(DefaultLimits(), NewGC())
}

// NewVMWithOptions returns a VM sized by limits and backed by gc, letting
// the config package (§4.8) override either without the core package
// knowing about TOML or files.
func NewVMWithOptions(limits Limits, gc *GC) *VM {
	limits = limits.withDefaults()
	vm := &VM{
		stack:   make([]Value, limits.FramesMax*limits.StackSlotsPerFrame),
		frames:  make([]CallFrame, limits.FramesMax),
		globals: NewTable(),
		gc:      gc,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	gc.attachVM(vm)
	vm.initString = gc.InternString("init")
	vm.defineNative("clock", nativeClock)
	return vm
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

// runtimeError prints message and a call-stack trace to Stderr, then resets
// the stack. Global bindings already established are left untouched, so a
// REPL session can keep going after a runtime error the way clox's does.
func (vm *VM) runtimeError(format string, args ...any) {
	fmt.Fprintf(vm.Stderr, format, args...)
	fmt.Fprintln(vm.Stderr)

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.LineAt(frame.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(vm.Stderr, "[line %d] in %s\n", line, name)
	}

	vm.resetStack()
}

func (vm *VM) defineNative(name string, fn NativeFn) {
	obj := vm.gc.NewNative(name, fn)
	vm.globals.Set(vm.gc.InternString(name), ObjValue(obj))
}

func nativeClock(args []Value) (Value, error) {
	return NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
}

// Interpret compiles and runs source to completion on a fresh top-level
// frame.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, ok := Compile(source, vm.gc, vm.Stderr)
	if !ok {
		return InterpretCompileError
	}

	vm.push(ObjValue(fn.self))
	closureObj, closure := vm.gc.NewClosure(fn)
	vm.pop()
	vm.push(ObjValue(closureObj))

	vm.call(closure, 0)

	return vm.run()
}

func (vm *VM) call(closure *ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}

	if vm.frameCount == len(vm.frames) {
		vm.runtimeError("Stack overflow.")
		return false
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) callValue(callee Value, argCount int) bool {
	if callee.IsObj() {
		switch callee.Obj.Kind {
		case ObjKindBoundMethod:
			bound := callee.AsBoundMethod()
			vm.stack[vm.stackTop-argCount-1] = bound.Receiver
			return vm.call(bound.Method, argCount)

		case ObjKindClass:
			class := callee.AsClass()
			instObj, _ := vm.gc.NewInstance(class)
			vm.stack[vm.stackTop-argCount-1] = ObjValue(instObj)
			if initializer, ok := class.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsClosure(), argCount)
			} else if argCount != 0 {
				vm.runtimeError("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true

		case ObjKindClosure:
			return vm.call(callee.AsClosure(), argCount)

		case ObjKindNative:
			native := callee.AsNative()
			result, err := native.Fn(vm.stack[vm.stackTop-argCount : vm.stackTop])
			if err != nil {
				vm.runtimeError("%s", err.Error())
				return false
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true
		}
	}

	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(method.AsClosure(), argCount)
}

func (vm *VM) invoke(name *ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsInstance() {
		vm.runtimeError("Only instances have methods.")
		return false
	}

	instance := receiver.AsInstance()
	if value, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = value
		return vm.callValue(value, argCount)
	}

	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) bindMethod(class *ObjClass, name *ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}

	boundObj, _ := vm.gc.NewBoundMethod(vm.peek(0), method.AsClosure())
	vm.pop()
	vm.push(ObjValue(boundObj))
	return true
}

// captureUpvalue returns the open upvalue for the stack slot at local,
// creating and inserting one into vm.openUpvalues (kept sorted by
// descending stack index) if none exists yet.
func (vm *VM) captureUpvalue(local int) *ObjUpvalue {
	var prev *ObjUpvalue
	uv := vm.openUpvalues

	for uv != nil && uv.slot > local {
		prev = uv
		uv = uv.Next
	}

	if uv != nil && uv.slot == local {
		return uv
	}

	_, created := vm.gc.NewUpvalue(&vm.stack[local], local)
	created.Next = uv

	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}

	return created
}

func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.slot >= last {
		uv := vm.openUpvalues
		uv.Closed = *uv.Location
		uv.Location = &uv.Closed
		vm.openUpvalues = uv.Next
	}
}

func (vm *VM) defineMethod(name *ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsClass()
	class.Methods.Set(name, method)
	vm.pop()
}

func (vm *VM) concatenate() {
	b := vm.peek(0).AsString()
	a := vm.peek(1).AsString()

	result := vm.gc.InternString(a.Chars + b.Chars)
	vm.pop()
	vm.pop()
	vm.push(StringValue(result))
}

func isFalsey(v Value) bool { return v.IsFalsey() }

// run executes bytecode starting from the current top call frame until it
// returns to frame zero, or hits a runtime error.
func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *ObjString {
		return readConstant().AsString()
	}

	for {
		op := Opcode(readByte())

		switch op {
		case OpConstant:
			vm.push(readConstant())

		case OpNil:
			vm.push(NilValue)
		case OpTrue:
			vm.push(BoolValue(true))
		case OpFalse:
			vm.push(BoolValue(false))

		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[frame.slots+int(slot)])

		case OpSetLocal:
			slot := readByte()
			vm.stack[frame.slots+int(slot)] = vm.peek(0)

		case OpGetGlobal:
			name := readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(value)

		case OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)

		case OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case OpGetProperty:
			if !vm.peek(0).IsInstance() {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}

			instance := vm.peek(0).AsInstance()
			name := readString()

			if value, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(value)
				break
			}

			if !vm.bindMethod(instance.Class, name) {
				return InterpretRuntimeError
			}

		case OpSetProperty:
			if !vm.peek(1).IsInstance() {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}

			instance := vm.peek(1).AsInstance()
			instance.Fields.Set(readString(), vm.peek(0))

			value := vm.pop()
			vm.pop()
			vm.push(value)

		case OpGetSuper:
			name := readString()
			superclass := vm.pop().AsClass()
			if !vm.bindMethod(superclass, name) {
				return InterpretRuntimeError
			}

		case OpClass:
			obj, _ := vm.gc.NewClass(readString())
			vm.push(ObjValue(obj))

		case OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsClass() {
				vm.runtimeError("Superclass must be a class.")
				return InterpretRuntimeError
			}
			subclass := vm.peek(0).AsClass()
			subclass.Methods.AddAll(superVal.AsClass().Methods)
			vm.pop()

		case OpMethod:
			vm.defineMethod(readString())

		case OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				vm.concatenate()
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(NumberValue(a + b))
			default:
				vm.runtimeError("Operands must be two numbers or two strings.")
				return InterpretRuntimeError
			}

		case OpSubtract:
			if !vm.binaryNumericOp('-') {
				return InterpretRuntimeError
			}
		case OpMultiply:
			if !vm.binaryNumericOp('*') {
				return InterpretRuntimeError
			}
		case OpDivide:
			if !vm.binaryNumericOp('/') {
				return InterpretRuntimeError
			}
		case OpGreater:
			if !vm.binaryNumericOp('>') {
				return InterpretRuntimeError
			}
		case OpLess:
			if !vm.binaryNumericOp('<') {
				return InterpretRuntimeError
			}

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(NumberValue(-vm.pop().AsNumber()))

		case OpNot:
			vm.push(BoolValue(isFalsey(vm.pop())))

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(ValuesEqual(a, b)))

		case OpJump:
			offset := readShort()
			frame.ip += offset

		case OpJumpIfFalse:
			offset := readShort()
			if isFalsey(vm.peek(0)) {
				frame.ip += offset
			}

		case OpLoop:
			offset := readShort()
			frame.ip -= offset

		case OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpInvoke:
			method := readString()
			argCount := int(readByte())
			if !vm.invoke(method, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpSuperInvoke:
			method := readString()
			argCount := int(readByte())
			superclass := vm.pop().AsClass()
			if !vm.invokeFromClass(superclass, method, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpClosure:
			fn := readConstant().AsFunction()
			obj, closure := vm.gc.NewClosure(fn)
			vm.push(ObjValue(obj))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}

			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		default:
			vm.runtimeError("Unknown opcode 0x%02X.", byte(op))
			return InterpretRuntimeError
		}
	}
}

func (vm *VM) binaryNumericOp(op byte) bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.runtimeError("Operands must be numbers.")
		return false
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()

	switch op {
	case '-':
		vm.push(NumberValue(a - b))
	case '*':
		vm.push(NumberValue(a * b))
	case '/':
		vm.push(NumberValue(a / b))
	case '>':
		vm.push(BoolValue(a > b))
	case '<':
		vm.push(BoolValue(a < b))
	}
	return true
}
