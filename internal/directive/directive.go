// Package directive scans Go source for callwire directives and turns the
// annotated declarations into interface descriptors.
//
// Directives are line comments on the methods of an interface type, or on
// the func fields of a struct type:
//
//	type Users interface {
//		//callwire:POST /users/list
//		//callwire:args name
//		List(name string) model.Call
//
//		//callwire:POST /users/create
//		//callwire:body json
//		Create(u User) model.Call
//	}
//
// Any directive other than args becomes a tag of that kind. When args is
// absent the parameter names of the signature are used as binding names.
package directive

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/pitabwire/callwire/internal/describe"
	"github.com/pitabwire/callwire/model"
)

const prefix = "//callwire:"

// Result contains the descriptors found in the scanned packages.
type Result struct {
	// Interfaces holds one descriptor per annotated type, sorted by name.
	Interfaces []model.InterfaceDescriptor

	// Packages lists the import paths that were scanned.
	Packages []string
}

// Scan loads the packages matching pattern and collects their directives.
// The pattern follows go command semantics, including "./...".
func Scan(pattern string) (*Result, error) {
	return ScanDir(pattern, "")
}

// ScanDir is like Scan but allows specifying a working directory.
// If dir is empty, the current directory is used.
func ScanDir(pattern, dir string) (*Result, error) {
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Dir:  dir,
		Fset: fset,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load package: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching %q", pattern)
	}

	result := &Result{}
	seen := make(map[string]string)
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, fmt.Errorf("package errors: %v", pkg.Errors[0])
		}
		result.Packages = append(result.Packages, pkg.PkgPath)

		for _, f := range pkg.Syntax {
			descs, err := parseFile(fset, f)
			if err != nil {
				return nil, err
			}
			for _, d := range descs {
				if prev, ok := seen[d.Name]; ok {
					return nil, fmt.Errorf("interface %s declared in both %s and %s", d.Name, prev, d.SourceFile)
				}
				seen[d.Name] = d.SourceFile
				result.Interfaces = append(result.Interfaces, d)
			}
		}
	}

	sort.Slice(result.Interfaces, func(i, j int) bool {
		return result.Interfaces[i].Name < result.Interfaces[j].Name
	})
	return result, nil
}

// parseFile extracts descriptors from a single file.
func parseFile(fset *token.FileSet, f *ast.File) ([]model.InterfaceDescriptor, error) {
	// Every directive comment must end up attached to a method.
	unmatched := make(map[token.Pos]token.Position)
	for _, cg := range f.Comments {
		for _, c := range cg.List {
			if strings.HasPrefix(c.Text, prefix) {
				unmatched[c.Pos()] = fset.Position(c.Pos())
			}
		}
	}
	if len(unmatched) == 0 {
		return nil, nil
	}

	var descs []model.InterfaceDescriptor
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)

			var fields *ast.FieldList
			switch t := ts.Type.(type) {
			case *ast.InterfaceType:
				fields = t.Methods
			case *ast.StructType:
				fields = t.Fields
			default:
				continue
			}

			desc := model.InterfaceDescriptor{
				Name:       ts.Name.Name,
				SourceFile: fset.Position(ts.Pos()).Filename,
			}
			for _, field := range fields.List {
				fn, ok := field.Type.(*ast.FuncType)
				if !ok || field.Doc == nil || len(field.Names) == 0 {
					continue
				}
				tags, args, hasArgs, err := parseDirectives(fset, field.Doc, unmatched)
				if err != nil {
					return nil, err
				}
				if len(tags) == 0 && !hasArgs {
					continue
				}
				arity, names := signature(fn)
				if !hasArgs {
					args = names
				}
				for _, name := range field.Names {
					desc.Methods = append(desc.Methods, model.MethodDescriptor{
						Interface: desc.Name,
						Name:      name.Name,
						Tags:      tags,
						Args:      args,
						Arity:     arity,
					})
				}
			}
			if len(desc.Methods) > 0 {
				descs = append(descs, desc)
			}
		}
	}

	for _, pos := range unmatched {
		return nil, fmt.Errorf("%s: callwire directive must be attached to an interface method or func field", pos)
	}
	return descs, nil
}

// parseDirectives reads the directives of one method doc comment.
func parseDirectives(fset *token.FileSet, doc *ast.CommentGroup, unmatched map[token.Pos]token.Position) ([]model.Tag, []string, bool, error) {
	var (
		tags    []model.Tag
		args    []string
		hasArgs bool
	)
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, prefix) {
			continue
		}
		delete(unmatched, c.Pos())

		text := strings.TrimSpace(strings.TrimPrefix(c.Text, prefix))
		kind, value, _ := strings.Cut(text, " ")
		value = strings.TrimSpace(value)
		if kind == "" {
			return nil, nil, false, fmt.Errorf("%s: empty callwire directive", fset.Position(c.Pos()))
		}

		switch {
		case kind == model.ArgsKey:
			args = describe.SplitArgs(value)
			hasArgs = true
		case model.TagKind(strings.ToUpper(kind)).IsVerb():
			if value == "" {
				return nil, nil, false, fmt.Errorf("%s: //callwire:%s requires a path", fset.Position(c.Pos()), kind)
			}
			tags = append(tags, model.Tag{Kind: model.TagKind(strings.ToUpper(kind)), Value: value})
		default:
			tags = append(tags, model.Tag{Kind: model.TagKind(kind), Value: value})
		}
	}
	return tags, args, hasArgs, nil
}

// signature returns the parameter count of fn and the parameter names. A
// name is empty where the parameter is unnamed or blank.
func signature(fn *ast.FuncType) (int, []string) {
	if fn.Params == nil {
		return 0, nil
	}
	var names []string
	for _, p := range fn.Params.List {
		if len(p.Names) == 0 {
			names = append(names, "")
			continue
		}
		for _, n := range p.Names {
			if n.Name == "_" {
				names = append(names, "")
				continue
			}
			names = append(names, n.Name)
		}
	}
	return len(names), names
}
