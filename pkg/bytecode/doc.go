// Package bytecode provides a single-pass compiler and stack-based virtual
// machine for Lox, the dynamically typed scripting language from Crafting
// Interpreters. Source text goes straight to bytecode with no intermediate
// AST, and the resulting chunk runs on a call-frame stack machine with a
// tracing garbage collector over its own object heap.
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Scanner: a lazy, one-token-at-a-time lexer over the source string.
//
//   - Compiler: a Pratt parser that emits bytecode directly into a Chunk as
//     it parses, tracking locals, upvalues, and enclosing classes so it can
//     resolve variable references and validate this/super usage without a
//     separate resolution pass.
//
//   - Chunk: a compiled function body — its bytecode, constant pool, and
//     per-instruction source lines for error reporting.
//
//   - VM: a fixed-size call-frame array plus a value stack. Calls, method
//     dispatch, and closures all operate by slicing into that one stack
//     rather than allocating per-call.
//
//   - GC: a tri-color mark-and-sweep collector triggered by an allocation
//     threshold, tracing the VM's stack, call frames, open upvalues, globals,
//     and any compiler currently running as its root set.
//
// # Closures
//
// A closure captures enclosing locals by reference while they are still on
// the stack (an "open" upvalue) and by value once the frame that owned them
// returns (a "closed" upvalue), matching Lox's by-reference capture
// semantics: two closures over the same local see each other's writes until
// that local's frame pops.
//
// # Classes
//
// Classes are plain method tables keyed by interned name. Inheritance
// copies the superclass's table into the subclass at OP_INHERIT time rather
// than walking a superclass chain at lookup time, so a method lookup is
// always a single table probe.
package bytecode
