package verify

import (
	"aura/internal/ast"

	"aura/internal/sema"
	"aura/internal/symstate"
	"aura/internal/types"
)

// Lowered is the normalize phase's product: the closed Int/Bool sort
// assignment for every typed expression. The executor's Value sum is
// finite and known, so classification is a table lookup over sema's
// types, not dispatch.
type Lowered struct {
	Sorts map[ast.ExprID]symstate.Sort
}

// Normalize runs the lightweight sort-inference pass between semantic
// analysis and symbolic execution; the LSP orchestrator surfaces it as
// the "normalize" phase.
func Normalize(res *sema.Result, in *types.Interner) Lowered {
	out := Lowered{Sorts: make(map[ast.ExprID]symstate.Sort, len(res.ExprTypes))}
	for id, typ := range res.ExprTypes {
		switch in.Get(typ).Kind {
		case types.KindBool:
			out.Sorts[id] = symstate.SortBool
		case types.KindU32, types.KindConstrainedRange:
			out.Sorts[id] = symstate.SortU32
		}
	}
	return out
}
