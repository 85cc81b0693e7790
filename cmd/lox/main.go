// Command lox runs Lox source files or starts an interactive REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/loxvm/lox/config"
	"github.com/loxvm/lox/pkg/bytecode"
)

const (
	exitUsage        = 64
	exitCompileError = 65
	exitCantOpenFile = 66
	exitRuntimeError = 70
)

func main() {
	var configPath string
	var disassemble bool
	flag.StringVar(&configPath, "config", "lox.toml", "path to an optional lox.toml")
	flag.BoolVar(&disassemble, "disassemble", false, "print the compiled script's bytecode instead of running it")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lox [--config PATH] [--disassemble] [script]")
	}
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	args := flag.Args()
	switch len(args) {
	case 0:
		repl(cfg)
	case 1:
		runFile(cfg, args[0], disassemble)
	default:
		flag.Usage()
		os.Exit(exitUsage)
	}
}

func repl(cfg config.Config) {
	vm := cfg.NewVM()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		vm.Interpret(scanner.Text())
	}
}

func runFile(cfg config.Config, path string, disassemble bool) {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file \"%s\".\n", path)
		os.Exit(exitCantOpenFile)
	}

	if disassemble {
		os.Exit(disassembleFile(string(source)))
	}

	vm := cfg.NewVM()
	switch vm.Interpret(string(source)) {
	case bytecode.InterpretCompileError:
		os.Exit(exitCompileError)
	case bytecode.InterpretRuntimeError:
		os.Exit(exitRuntimeError)
	}
}

func disassembleFile(source string) int {
	gc := bytecode.NewGC()
	fn, ok := bytecode.Compile(source, gc, os.Stderr)
	if !ok {
		return exitCompileError
	}

	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	io.WriteString(os.Stdout, fn.Chunk.DisassembleWithName(name))
	return 0
}
