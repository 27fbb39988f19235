// Package goanalysis derives the static model of a Go package: its
// functions and methods, the predicates of their if statements and
// loops, control dependencies, call edges, and cyclomatic complexity.
//
// The receiver type of a method is its class; package-level functions
// belong to a class named after the package.
package goanalysis

import (
	"cmp"
	"fmt"
	"go/token"
	"go/types"
	"slices"

	"github.com/fzipp/gocyclo"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/loader"
	"github.com/unbound-force/mosaic/internal/static"
)

// Analysis is the static model of one package.
type Analysis struct {
	// Program holds methods, branches, and call edges.
	Program *static.Program

	// PkgPath is the import path of the package.
	PkgPath string

	fset *token.FileSet
}

// Analyze loads the package matching pattern relative to dir and
// builds its static model.
func Analyze(dir, pattern string) (*Analysis, error) {
	res, err := loader.Load(dir, pattern)
	if err != nil {
		return nil, err
	}
	return FromPackage(res.Pkg)
}

// FromPackage builds the static model of an already loaded package.
func FromPackage(pkg *packages.Package) (*Analysis, error) {
	ssaPkg := BuildSSA(pkg)
	if ssaPkg == nil {
		return nil, fmt.Errorf("building SSA for %s failed", pkg.PkgPath)
	}
	b := &builder{
		fset:       pkg.Fset,
		pkgName:    pkg.Name,
		program:    static.NewProgram(pkg.Name),
		complexity: complexities(pkg),
		frames:     make(map[*ssa.Function]goal.Frame),
	}
	fns := sourceFunctions(ssaPkg)
	for _, fn := range fns {
		b.frames[fn] = b.frame(fn)
	}
	for _, fn := range fns {
		if err := b.addMethod(fn); err != nil {
			return nil, err
		}
	}
	for _, fn := range fns {
		if err := b.addBody(fn); err != nil {
			return nil, err
		}
	}
	if err := b.program.Validate(); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", pkg.PkgPath, err)
	}
	return &Analysis{Program: b.program, PkgPath: pkg.PkgPath, fset: pkg.Fset}, nil
}

// BuildSSA constructs the SSA form of a loaded package. It returns nil
// when construction produced no package.
func BuildSSA(pkg *packages.Package) *ssa.Package {
	prog, ssaPkgs := ssautil.AllPackages([]*packages.Package{pkg}, ssa.InstantiateGenerics)
	prog.Build()
	if len(ssaPkgs) == 0 || ssaPkgs[0] == nil {
		return nil
	}
	return ssaPkgs[0]
}

// sourceFunctions returns the functions and methods declared in the
// package source, ordered by position.
func sourceFunctions(pkg *ssa.Package) []*ssa.Function {
	var out []*ssa.Function
	keep := func(fn *ssa.Function) {
		if fn != nil && fn.Synthetic == "" && fn.Syntax() != nil && fn.Pkg == pkg && !slices.Contains(out, fn) {
			out = append(out, fn)
		}
	}
	for _, m := range pkg.Members {
		switch m := m.(type) {
		case *ssa.Function:
			keep(m)
		case *ssa.Type:
			named, ok := m.Type().(*types.Named)
			if !ok || named.TypeParams().Len() > 0 {
				continue
			}
			// Value methods come from the value method set; the pointer
			// set adds pointer methods, its value entries are wrappers.
			for _, t := range []types.Type{named, types.NewPointer(named)} {
				mset := pkg.Prog.MethodSets.MethodSet(t)
				for i := 0; i < mset.Len(); i++ {
					keep(pkg.Prog.MethodValue(mset.At(i)))
				}
			}
		}
	}
	slices.SortFunc(out, func(a, b *ssa.Function) int { return cmp.Compare(a.Pos(), b.Pos()) })
	return out
}

type builder struct {
	fset       *token.FileSet
	pkgName    string
	program    *static.Program
	complexity map[token.Position]int
	frames     map[*ssa.Function]goal.Frame
	nextBranch int
}

func (b *builder) frame(fn *ssa.Function) goal.Frame {
	class := b.pkgName
	if recv := fn.Signature.Recv(); recv != nil {
		class = typeName(recv.Type())
	}
	return goal.Frame{Class: class, Method: fn.Name()}
}

func typeName(t types.Type) string {
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	if n, ok := t.(*types.Named); ok {
		return n.Obj().Name()
	}
	return t.String()
}

func (b *builder) addMethod(fn *ssa.Function) error {
	f := b.frames[fn]
	decl := b.fset.Position(fn.Syntax().Pos())
	public := token.IsExported(fn.Name())
	if fn.Signature.Recv() != nil {
		public = public && token.IsExported(f.Class)
	}

	lines := make(map[int]bool)
	for _, g := range withAnon(fn) {
		for _, blk := range g.Blocks {
			for _, instr := range blk.Instrs {
				if l := b.line(instr); l > 0 {
					lines[l] = true
				}
			}
		}
	}
	sorted := make([]int, 0, len(lines))
	for l := range lines {
		sorted = append(sorted, l)
	}
	slices.Sort(sorted)

	return b.program.AddMethod(static.Method{
		Class:      f.Class,
		Name:       f.Method,
		Public:     public,
		File:       decl.Filename,
		Line:       decl.Line,
		Lines:      sorted,
		Complexity: b.complexity[token.Position{Filename: decl.Filename, Line: decl.Line}],
	})
}

// addBody records the predicates, control dependencies, and call
// edges of fn and its closures.
func (b *builder) addBody(fn *ssa.Function) error {
	f := b.frames[fn]
	for _, g := range withAnon(fn) {
		ids := make(map[int]int)
		for _, blk := range g.Blocks {
			if len(blk.Instrs) == 0 {
				continue
			}
			if _, ok := blk.Instrs[len(blk.Instrs)-1].(*ssa.If); ok {
				b.nextBranch++
				ids[blk.Index] = b.nextBranch
			}
		}

		deps := controlDeps(g)
		conds := func(blk int) []static.Condition {
			var out []static.Condition
			for _, e := range deps[blk] {
				if id, ok := ids[e.block]; ok {
					c := static.Condition{BranchID: id, Value: e.succ == 0}
					if !slices.Contains(out, c) {
						out = append(out, c)
					}
				}
			}
			return out
		}

		lineDeps := make(map[int][]static.Condition)
		free := make(map[int]bool)
		for _, blk := range g.Blocks {
			bd := conds(blk.Index)
			for _, instr := range blk.Instrs {
				l := b.line(instr)
				if l <= 0 {
					continue
				}
				if len(bd) == 0 {
					free[l] = true
				}
				for _, c := range bd {
					if !slices.Contains(lineDeps[l], c) {
						lineDeps[l] = append(lineDeps[l], c)
					}
				}
				if call, ok := instr.(ssa.CallInstruction); ok {
					if callee, ok := b.frames[call.Common().StaticCallee()]; ok {
						b.program.AddCall(f, callee)
					}
				}
			}
			id, ok := ids[blk.Index]
			if !ok {
				continue
			}
			own := slices.DeleteFunc(slices.Clone(bd), func(c static.Condition) bool { return c.BranchID == id })
			err := b.program.AddBranch(static.Branch{
				ID:     id,
				Class:  f.Class,
				Method: f.Method,
				Line:   b.line(blk.Instrs[len(blk.Instrs)-1]),
				Deps:   own,
			})
			if err != nil {
				return err
			}
		}
		for l, ds := range lineDeps {
			if !free[l] {
				b.program.SetLineDeps(f.Class, f.Method, l, ds)
			}
		}
	}
	return nil
}

// line returns the source line of an instruction, 0 when it has no
// position. The line of an if is the line of its condition when the
// condition is computed in the same block, else the last positioned
// instruction before it.
func (b *builder) line(instr ssa.Instruction) int {
	pos := instr.Pos()
	if ifInstr, ok := instr.(*ssa.If); ok {
		pos = token.NoPos
		if c, ok := ifInstr.Cond.(ssa.Instruction); ok && c.Block() == instr.Block() {
			pos = c.Pos()
		}
		if !pos.IsValid() {
			for _, prev := range instr.Block().Instrs {
				if prev.Pos().IsValid() {
					pos = prev.Pos()
				}
			}
		}
		if !pos.IsValid() && len(instr.Block().Succs) > 0 {
			for _, next := range instr.Block().Succs[0].Instrs {
				if next.Pos().IsValid() {
					pos = next.Pos()
					break
				}
			}
		}
	}
	if !pos.IsValid() {
		return 0
	}
	return b.fset.Position(pos).Line
}

// withAnon returns fn followed by its closures, depth first.
func withAnon(fn *ssa.Function) []*ssa.Function {
	out := []*ssa.Function{fn}
	for _, anon := range fn.AnonFuncs {
		out = append(out, withAnon(anon)...)
	}
	return out
}

// complexities maps the position of every function declaration to its
// cyclomatic complexity.
func complexities(pkg *packages.Package) map[token.Position]int {
	var stats gocyclo.Stats
	for _, f := range pkg.Syntax {
		stats = gocyclo.AnalyzeASTFile(f, pkg.Fset, stats)
	}
	out := make(map[token.Position]int, len(stats))
	for _, s := range stats {
		out[token.Position{Filename: s.Pos.Filename, Line: s.Pos.Line}] = s.Complexity
	}
	return out
}
