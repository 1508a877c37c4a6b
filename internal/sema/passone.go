package sema

import (
	"aura/internal/ast"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// passOne registers top-level signatures so bodies checked in pass two can
// reference definitions in any order. Types (traits, aliases, records,
// enums) land first, then callables, so a cell's parameter annotations can
// name a record declared below it.
func (c *checker) passOne(stmts []ast.StmtID) {
	c.registerBuiltins()
	for _, id := range stmts {
		st := c.stmt(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtTraitDef:
			c.table.Declare(c.fileScope, symbols.Symbol{
				Name: st.Name, Kind: symbols.SymbolTrait, Span: st.Span,
				Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
			})
		case ast.StmtTypeAlias:
			c.registerAlias(id, st)
		case ast.StmtRecordDef:
			rec := c.table.Declare(c.fileScope, symbols.Symbol{
				Name: st.Name, Kind: symbols.SymbolRecord, Span: st.Span,
				Decl:   symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
				Fields: st.Fields,
			})
			if rs := c.table.Symbols.Get(rec); rs != nil {
				for _, p := range st.TypeParams {
					rs.TypeParams = append(rs.TypeParams, p.Name)
				}
			}
		case ast.StmtEnumDef:
			c.registerEnum(id, st)
		case ast.StmtImport:
			c.registerImport(id, st)
		}
	}
	for _, id := range stmts {
		st := c.stmt(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtCellDef:
			c.registerCell(id, st, symbols.SymbolCell, 0)
		case ast.StmtExternCell:
			flags := symbols.SymbolFlags(0)
			if st.Trusted {
				flags |= symbols.SymbolFlagTrusted
			}
			c.registerCell(id, st, symbols.SymbolExternCell, flags)
		case ast.StmtLayout:
			c.table.Declare(c.fileScope, symbols.Symbol{
				Name: st.Name, Kind: symbols.SymbolLayout, Span: st.Span,
				Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
			})
		case ast.StmtRender:
			c.table.Declare(c.fileScope, symbols.Symbol{
				Name: st.Name, Kind: symbols.SymbolRender, Span: st.Span,
				Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
			})
		}
	}
}

func (c *checker) registerAlias(id ast.StmtID, st *ast.Stmt) {
	sym := symbols.Symbol{
		Name: st.Name, Kind: symbols.SymbolTypeAlias, Span: st.Span,
		Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
	}
	if len(st.TypeParams) == 0 {
		// monomorphic alias: resolved eagerly to its target type
		sym.Type = c.resolveType(st.AliasOf, nil)
	} else {
		sym.TypeParams = make([]source.StringID, len(st.TypeParams))
		for i, p := range st.TypeParams {
			sym.TypeParams[i] = p.Name
		}
	}
	c.table.Declare(c.fileScope, sym)
}

func (c *checker) registerEnum(id ast.StmtID, st *ast.Stmt) {
	enumSym := c.table.Declare(c.fileScope, symbols.Symbol{
		Name: st.Name, Kind: symbols.SymbolEnum, Span: st.Span,
		Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
	})
	if es := c.table.Symbols.Get(enumSym); es != nil {
		es.TypeParams = make([]source.StringID, len(st.TypeParams))
		for i, p := range st.TypeParams {
			es.TypeParams[i] = p.Name
		}
	}
	for _, v := range st.Variants {
		c.table.Declare(c.fileScope, symbols.Symbol{
			Name: v.Name, Kind: symbols.SymbolEnumVariant, Span: v.Span,
			Decl:   symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
			Owner:  enumSym,
			Fields: v.Fields,
		})
	}
}

func (c *checker) registerImport(id ast.StmtID, st *ast.Stmt) {
	if len(st.PathSegments) == 0 {
		return
	}
	last := st.PathSegments[len(st.PathSegments)-1]
	path := ""
	for i, seg := range st.PathSegments {
		if i > 0 {
			path += "/"
		}
		path += c.builder.String(seg)
	}
	c.table.Declare(c.fileScope, symbols.Symbol{
		Name: last, Kind: symbols.SymbolImport, Span: st.Span,
		Flags:      symbols.SymbolFlagImported,
		Decl:       symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
		ModulePath: path,
	})
}

func (c *checker) registerCell(id ast.StmtID, st *ast.Stmt, kind symbols.SymbolKind, flags symbols.SymbolFlags) {
	sig := &symbols.Signature{ReturnType: c.result.Builtins.Unit}
	if st.ReturnType.IsValid() {
		sig.ReturnType = c.resolveType(st.ReturnType, nil)
	}
	for _, p := range st.Params {
		pflags := symbols.SymbolFlags(0)
		if p.Mutable {
			pflags |= symbols.SymbolFlagMutable
		}
		pid := c.table.Symbols.New(symbols.Symbol{
			Name: p.Name, Kind: symbols.SymbolParam, Span: p.Span,
			Flags: pflags,
			Type:  c.resolveType(p.Type, nil),
		})
		sig.Params = append(sig.Params, pid)
	}
	sym := c.table.Declare(c.fileScope, symbols.Symbol{
		Name: st.Name, Kind: kind, Span: st.Span, Flags: flags,
		Decl:      symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
		Signature: sig,
	})
	c.result.BindingTypes[sym] = sig.ReturnType
}

// builtinSig describes one builtin callable's fixed signature.
type builtinSig struct {
	name   string
	params []types.TypeID
	ret    types.TypeID
}

// registerBuiltins installs the fixed builtin surface into the table's
// shared builtin root: tensor and vector accessors plus the open-theory
// ai namespace's one known call. Unknown hw.*/ai.* names stay unresolved
// here and default to u32 at call sites. Registration happens once per
// table; later files resolve the same symbols through the scope chain.
func (c *checker) registerBuiltins() {
	root := c.table.BuiltinRoot()
	if _, done := c.table.LookupIn(root, c.builder.Intern("tensor.new")); done {
		return
	}
	b := c.result.Builtins
	u32 := b.U32
	unit := b.Unit
	anyTensor := c.types.Intern(types.Type{Kind: types.KindTensor, Elem: b.Unknown})
	vector := c.types.Intern(types.Type{Kind: types.KindNamed, Name: c.builder.Intern("Vector")})

	sigs := []builtinSig{
		{"tensor.new", []types.TypeID{u32}, anyTensor},
		{"tensor.len", []types.TypeID{anyTensor}, u32},
		{"tensor.get", []types.TypeID{anyTensor, u32}, u32},
		{"tensor.set", []types.TypeID{anyTensor, u32, u32}, unit},
		{"vector.new", nil, vector},
		{"vector.get", []types.TypeID{vector, u32}, u32},
		{"vector.set", []types.TypeID{vector, u32, u32}, unit},
		{"ai.infer", []types.TypeID{anyTensor, b.Model}, anyTensor},
	}
	for _, s := range sigs {
		sig := &symbols.Signature{ReturnType: s.ret}
		for i, pt := range s.params {
			pid := c.table.Symbols.New(symbols.Symbol{
				Name: c.builder.Intern(builtinParamName(i)),
				Kind: symbols.SymbolParam,
				Type: pt,
			})
			sig.Params = append(sig.Params, pid)
		}
		c.table.Declare(root, symbols.Symbol{
			Name:      c.builder.Intern(s.name),
			Kind:      symbols.SymbolCell,
			Flags:     symbols.SymbolFlagBuiltin | symbols.SymbolFlagTrusted,
			Signature: sig,
		})
	}
}

func builtinParamName(i int) string {
	names := [...]string{"a", "b", "c", "d"}
	if i < len(names) {
		return names[i]
	}
	return "arg"
}
