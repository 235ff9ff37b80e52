package asm

import "github.com/chazu/vainilla/vm"

// Diagnose assembles source and returns every error instead of stopping at
// the first one. Editors use it to report all problems in a file.
func Diagnose(source string) []*Error {
	a := NewAssembler()
	a.collect = true
	lines := Lines(source)
	_ = a.pass1(lines)
	_ = a.pass2(lines)
	return a.errs
}

// Declaration is a label declaration in source.
type Declaration struct {
	Name  string
	Line  int // 1-based
	Col   int // 1-based
	Index int // instruction index the label resolves to
}

// Declarations returns the first declaration of every label in source,
// in source order.
func Declarations(source string) []Declaration {
	var decls []Declaration
	seen := make(map[string]bool)
	labels := 0
	for pos, ln := range Lines(source) {
		if !ln.IsLabel() {
			continue
		}
		name := ln.Label()
		if !seen[name] {
			seen[name] = true
			decls = append(decls, Declaration{Name: name, Line: ln.No, Col: ln.Col, Index: pos - labels})
		}
		labels++
	}
	return decls
}

// Reference is a jump operand naming a label.
type Reference struct {
	Name string
	Line int // 1-based
	Col  int // 1-based
}

// References returns every label used as a jump operand, in source order.
func References(source string) []Reference {
	var refs []Reference
	for _, ln := range Lines(source) {
		if ln.IsLabel() {
			continue
		}
		toks := ln.Tokens()
		if len(toks) < 2 {
			continue
		}
		if op, ok := vm.LookupMnemonic(toks[0].Text); ok && op.IsJump() {
			refs = append(refs, Reference{Name: toks[1].Text, Line: ln.No, Col: toks[1].Col})
		}
	}
	return refs
}
