package oracle

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/mod/modfile"
)

// Fixed sandbox layout. The target always lives in module and package "app".
const (
	modulePath  = "app"
	sourceFile  = "app.go"
	testFile    = "app_test.go"
	profileFile = "cover.out"
)

// writeSandbox materializes the module, target source and candidate test in dir.
func writeSandbox(dir, goVersion, source, test string) error {
	mod, err := goMod(goVersion)
	if err != nil {
		return err
	}
	files := []struct {
		name string
		data []byte
	}{
		{"go.mod", mod},
		{sourceFile, []byte(normalizeSource(source))},
		{testFile, []byte(linkTest(test, source))},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

// goMod renders a dependency-free go.mod for the sandbox module.
func goMod(goVersion string) ([]byte, error) {
	f, err := modfile.Parse("go.mod", []byte("module "+modulePath+"\n"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build go.mod: %w", err)
	}
	if err := f.AddGoStmt(goVersion); err != nil {
		return nil, fmt.Errorf("invalid go version %q: %w", goVersion, err)
	}
	return f.Format()
}

// normalizeSource moves the target into package app. A file without a
// package clause gets one prepended on its first line so reported line
// numbers still match the caller's source.
func normalizeSource(src string) string {
	start, end, _, ok := packageClause(src)
	if !ok {
		return "package " + modulePath + "; " + src
	}
	return src[:start] + modulePath + src[end:]
}

// linkTest guarantees the candidate test can see the target's symbols, no
// matter which package clause the generator chose. An external test package
// gets a dot import of the target unless it already imports it or never
// names any of its exported identifiers.
func linkTest(test, source string) string {
	start, end, name, ok := packageClause(test)
	if !ok {
		return "package " + modulePath + "\n\n" + test
	}
	if !strings.HasSuffix(name, "_test") {
		return test[:start] + modulePath + test[end:]
	}

	linked := test[:start] + modulePath + "_test"
	if importsTarget(test) || !usesTarget(test, source) {
		return linked + test[end:]
	}
	// Same line as the clause, so line numbers in failures stay accurate.
	return linked + "; import . " + strconv.Quote(modulePath) + test[end:]
}

// importsTarget reports whether any import spec of test names the target
// module, under any alias.
func importsTarget(test string) bool {
	f, _ := parser.ParseFile(token.NewFileSet(), testFile, test, parser.ImportsOnly)
	if f == nil {
		return false
	}
	for _, spec := range f.Imports {
		if path, err := strconv.Unquote(spec.Path.Value); err == nil && path == modulePath {
			return true
		}
	}
	return false
}

// usesTarget reports whether test mentions an exported top-level name of
// source as an unqualified identifier. When either file fails to parse it
// answers true and leaves the diagnosis to the compiler.
func usesTarget(test, source string) bool {
	exported, err := exportedNames(normalizeSource(source))
	if err != nil {
		return true
	}
	f, err := parser.ParseFile(token.NewFileSet(), testFile, test, parser.SkipObjectResolution)
	if err != nil {
		return true
	}

	return refersTo(f, exported)
}

// refersTo walks n for an identifier in names that is used as a reference.
// Selected fields and methods and declared field or parameter names are
// ignored.
func refersTo(n ast.Node, names map[string]bool) bool {
	found := false
	ast.Inspect(n, func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.SelectorExpr:
			found = refersTo(n.X, names)
			return false
		case *ast.Field:
			if n.Type != nil {
				found = refersTo(n.Type, names)
			}
			return false
		case *ast.Ident:
			found = names[n.Name]
		}
		return !found
	})
	return found
}

// exportedNames collects the exported package-level identifiers of src.
func exportedNames(src string) (map[string]bool, error) {
	f, err := parser.ParseFile(token.NewFileSet(), sourceFile, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	add := func(id *ast.Ident) {
		if id.IsExported() {
			names[id.Name] = true
		}
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				add(d.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch sp := spec.(type) {
				case *ast.TypeSpec:
					add(sp.Name)
				case *ast.ValueSpec:
					for _, id := range sp.Names {
						add(id)
					}
				}
			}
		}
	}
	return names, nil
}

// packageClause finds the package name token. ok is false when the first
// token after comments is not the package keyword.
func packageClause(src string) (start, end int, name string, ok bool) {
	b := []byte(src)
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(b))

	var s scanner.Scanner
	s.Init(file, b, nil, 0)

	if _, tok, _ := s.Scan(); tok != token.PACKAGE {
		return 0, 0, "", false
	}
	pos, tok, lit := s.Scan()
	if tok != token.IDENT {
		return 0, 0, "", false
	}
	start = file.Offset(pos)
	return start, start + len(lit), lit, true
}
