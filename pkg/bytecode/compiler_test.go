package bytecode

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func compileSource(t *testing.T, source string) (*ObjFunction, bool, string) {
	t.Helper()
	gc := NewGC()
	var errOut bytes.Buffer
	fn, ok := Compile(source, gc, &errOut)
	return fn, ok, errOut.String()
}

func TestCompileSimpleExpressionStatement(t *testing.T) {
	fn, ok, errOut := compileSource(t, `1 + 2;`)
	if !ok {
		t.Fatalf("compile failed: %s", errOut)
	}
	if fn.Arity != 0 {
		t.Errorf("arity = %d, want 0", fn.Arity)
	}
	if len(fn.Chunk.Code) == 0 {
		t.Error("expected emitted bytecode")
	}
}

func TestCompileReportsSyntaxError(t *testing.T) {
	_, ok, errOut := compileSource(t, `var = 1;`)
	if ok {
		t.Fatal("expected compile failure")
	}
	if !strings.Contains(errOut, "Expect variable name.") {
		t.Errorf("errOut = %q, missing expected message", errOut)
	}
}

func TestCompileReportsLocationAtEnd(t *testing.T) {
	_, ok, errOut := compileSource(t, `var a =`)
	if ok {
		t.Fatal("expected compile failure")
	}
	if !strings.Contains(errOut, "at end") {
		t.Errorf("errOut = %q, missing ' at end'", errOut)
	}
}

func TestCompilePanicModeSynchronizes(t *testing.T) {
	// The first statement has a syntax error; the compiler should recover
	// at the next statement boundary and still compile the third line,
	// reporting exactly one diagnostic rather than a cascade.
	_, ok, errOut := compileSource(t, `
var = 1;
print "still here";
`)
	if ok {
		t.Fatal("expected compile failure")
	}
	if n := strings.Count(errOut, "[line"); n != 1 {
		t.Errorf("expected exactly one diagnostic, got %d in %q", n, errOut)
	}
}

func TestCompileTooManyLocalsIsAnError(t *testing.T) {
	var src strings.Builder
	src.WriteString("{\n")
	for i := 0; i < 257; i++ {
		src.WriteString("var v")
		src.WriteString(strconv.Itoa(i))
		src.WriteString(" = 0;\n")
	}
	src.WriteString("}\n")

	_, ok, errOut := compileSource(t, src.String())
	if ok {
		t.Fatal("expected compile failure for too many locals")
	}
	if !strings.Contains(errOut, "Too many local variables") {
		t.Errorf("errOut = %q, missing expected message", errOut)
	}
}

func TestCompileClosureCapturesUpvalueDescriptor(t *testing.T) {
	fn, ok, errOut := compileSource(t, `
fun outer() {
  var x = 1;
  fun inner() {
    return x;
  }
  return inner;
}
`)
	if !ok {
		t.Fatalf("compile failed: %s", errOut)
	}

	listing := fn.Chunk.DisassembleWithName("script")
	if !strings.Contains(listing, "OP_CLOSURE") {
		t.Errorf("expected OP_CLOSURE in listing, got:\n%s", listing)
	}
}

func TestCompileInvalidAssignmentTarget(t *testing.T) {
	cases := []string{
		"a + b = c;",
		"(a) = c;",
		"!a = c;",
	}
	for _, src := range cases {
		_, ok, errOut := compileSource(t, src)
		if ok {
			t.Fatalf("%q: expected compile failure", src)
		}
		if !strings.Contains(errOut, "Invalid assignment target.") {
			t.Errorf("%q: errOut = %q, missing expected message", src, errOut)
		}
	}
}
