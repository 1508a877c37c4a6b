package avm

import (
	"context"

	"aura/internal/ast"
)

// TextInputEvent reports edited text for an input node.
type TextInputEvent struct {
	InputID int
	Text    string
}

// Feedback is what the UI plugin reports back after presenting a frame.
type Feedback struct {
	CloseRequested  bool
	ClickedCallback int // -1 when nothing was clicked
	TextInputs      []TextInputEvent
}

// UIPlugin presents rebuilt UI trees and reports interaction feedback,
// one frame at a time.
type UIPlugin interface {
	SubmitFrame(root *UiNode) (Feedback, error)
	Close()
}

func (i *Interp) currentUI() *UiNode {
	if len(i.uiStack) == 0 {
		return nil
	}
	return i.uiStack[len(i.uiStack)-1]
}

func (i *Interp) attachUI(n *UiNode) {
	if parent := i.currentUI(); parent != nil && n != nil {
		parent.Children = append(parent.Children, n)
	}
}

// execUIBlock runs a layout/render block. Without an active plugin the
// tree is built once and discarded (a headless check run); with one, the
// callback-driven frame loop takes over.
func (i *Interp) execUIBlock(ctx context.Context, st *ast.Stmt) error {
	if i.ui == nil {
		_, err := i.buildFrame(ctx, st)
		return err
	}
	defer i.ui.Close()

	frames := 0
	for {
		if i.maxFrames > 0 && frames >= i.maxFrames {
			return nil
		}
		frames++

		root, err := i.buildFrame(ctx, st)
		if err != nil {
			return err
		}
		fb, err := i.ui.SubmitFrame(root)
		if err != nil {
			return err
		}
		if fb.CloseRequested {
			return nil
		}
		for _, te := range fb.TextInputs {
			i.applyTextInput(root, te)
		}
		if fb.ClickedCallback >= 0 && fb.ClickedCallback < len(i.callbacks) {
			if err := i.execBody(ctx, i.callbacks[fb.ClickedCallback].body); err != nil {
				return err
			}
		}
		if i.debug != nil && i.debug.Terminated() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// buildFrame resets the callback table and rebuilds the UI tree by
// re-executing the block.
func (i *Interp) buildFrame(ctx context.Context, st *ast.Stmt) (*UiNode, error) {
	i.callbacks = i.callbacks[:0]
	root := &UiNode{Kind: st.Kind.String(), CallbackID: -1, InputID: -1}
	if st.Name != 0 {
		root.Text = i.b.String(st.Name)
	}
	i.uiStack = append(i.uiStack, root)
	i.pushScope()
	var err error
	for _, id := range st.Body {
		if err = i.execStmt(ctx, id); err != nil {
			break
		}
	}
	i.popScope()
	i.uiStack = i.uiStack[:len(i.uiStack)-1]
	return root, err
}

// buildUINode constructs one widget node: the first string argument
// becomes the node text, named args become props, a trailing block either
// registers a click callback (button-like leaves) or nests children.
func (i *Interp) buildUINode(ctx context.Context, ex *ast.Expr, name string, args []Value) (Value, error) {
	n := &UiNode{Kind: name, CallbackID: -1, InputID: -1}
	for _, v := range args {
		if v.Kind == KindStr && n.Text == "" {
			n.Text = v.Str
		}
	}
	for _, a := range ex.Args {
		if a.Name == 0 {
			continue
		}
		v, err := i.evalExpr(ctx, a.Value)
		if err != nil {
			return unit(), err
		}
		if n.Props == nil {
			n.Props = make(map[string]Value)
		}
		n.Props[i.b.String(a.Name)] = v
	}

	switch name {
	case "button":
		if len(ex.TrailingBlock) > 0 {
			n.CallbackID = len(i.callbacks)
			i.callbacks = append(i.callbacks, callbackEntry{body: ex.TrailingBlock})
		}
	case "input":
		n.InputID = len(i.callbacks)
		i.callbacks = append(i.callbacks, callbackEntry{body: ex.TrailingBlock})
	default:
		if len(ex.TrailingBlock) > 0 {
			i.uiStack = append(i.uiStack, n)
			i.pushScope()
			for _, id := range ex.TrailingBlock {
				if err := i.execStmt(ctx, id); err != nil {
					i.popScope()
					i.uiStack = i.uiStack[:len(i.uiStack)-1]
					return unit(), err
				}
			}
			i.popScope()
			i.uiStack = i.uiStack[:len(i.uiStack)-1]
		}
	}
	return uiVal(n), nil
}

// applyTextInput stores edited text into the node's bound name, when the
// input declared one via a `bind` prop.
func (i *Interp) applyTextInput(root *UiNode, te TextInputEvent) {
	node := findInput(root, te.InputID)
	if node == nil {
		return
	}
	if bind, ok := node.Props["bind"]; ok && bind.Kind == KindStr {
		if s, found := i.lookup(bind.Str); found && s.mutable {
			s.val = strVal(te.Text)
		}
	}
}

func findInput(n *UiNode, inputID int) *UiNode {
	if n == nil {
		return nil
	}
	if n.InputID == inputID {
		return n
	}
	for _, c := range n.Children {
		if found := findInput(c, inputID); found != nil {
			return found
		}
	}
	return nil
}
