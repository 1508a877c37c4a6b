package avm

import (
	"fmt"
	"sort"
	"strings"
)

// ValueKind tags the closed runtime value set.
type ValueKind uint8

const (
	KindUnit ValueKind = iota
	KindInt
	KindBool
	KindStr
	KindStyle
	KindUi
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindStyle:
		return "style"
	case KindUi:
		return "ui"
	default:
		return "unit"
	}
}

// Value is a tagged runtime value.
type Value struct {
	Kind  ValueKind
	Int   uint64
	Bool  bool
	Str   string
	Style map[string]Value
	Ui    *UiNode
}

// UiNode is one node of the rebuilt UI tree submitted to the plugin each
// frame.
type UiNode struct {
	Kind       string
	Text       string
	Props      map[string]Value
	CallbackID int // -1 when the node has no click callback
	InputID    int // -1 when the node does not accept text input
	Children   []*UiNode
}

func unit() Value            { return Value{Kind: KindUnit} }
func intVal(v uint64) Value  { return Value{Kind: KindInt, Int: v} }
func boolVal(v bool) Value   { return Value{Kind: KindBool, Bool: v} }
func strVal(s string) Value  { return Value{Kind: KindStr, Str: s} }
func uiVal(n *UiNode) Value  { return Value{Kind: KindUi, Ui: n} }

// Render prints a value the way the debug protocol and the {ident}
// interpolation show it.
func (v Value) Render() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindStr:
		return v.Str
	case KindStyle:
		keys := make([]string, 0, len(v.Style))
		for k := range v.Style {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", k, v.Style[k].Render())
		}
		b.WriteString("}")
		return b.String()
	case KindUi:
		if v.Ui != nil {
			return "<ui:" + v.Ui.Kind + ">"
		}
		return "<ui>"
	default:
		return "unit"
	}
}
