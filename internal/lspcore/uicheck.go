package lspcore

import (
	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/project"
	"aura/internal/proofcache"
	"aura/internal/source"
)

// uiChecks runs the whole-program UI pass: checks that no single
// definition can make on its own (duplicate layout/render names, more
// than one layout root). The result caches under the ui_merkle — file
// content hash folded with the import dep-hash — since any of those
// inputs can change the outcome.
func (o *Orchestrator) uiChecks(params StreamParams, b *ast.Builder, fileID ast.FileID, base, fileHash project.Digest) []diag.Diagnostic {
	uiKey := proofcache.UIMerkle(fileHash, depHash(o.opts.WorkspaceRoot, params.Text))
	if o.opts.Cache != nil {
		if ds, ok := o.opts.Cache.UIDiagnostics(base, uiKey); ok {
			return ds
		}
	}

	diags := runUIChecks(b, fileID)

	// cache entries are only written for passing runs
	if o.opts.Cache != nil && len(diags) == 0 {
		o.opts.Cache.PutUIDiagnostics(base, uiKey, diags)
	}
	return diags
}

func runUIChecks(b *ast.Builder, fileID ast.FileID) []diag.Diagnostic {
	file := b.Files.Get(fileID)
	if file == nil {
		return nil
	}
	var diags []diag.Diagnostic
	seen := make(map[source.StringID]source.Span)
	layouts := 0
	var extraLayout source.Span
	for _, id := range file.Stmts {
		st := b.Stmts.Get(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtLayout, ast.StmtRender:
			if prev, dup := seen[st.Name]; dup {
				diags = append(diags, diag.Diagnostic{
					Severity: diag.SevError,
					Code:     diag.SemaError,
					Message:  "duplicate UI definition '" + b.String(st.Name) + "'",
					Primary:  st.Span,
					Notes:    []diag.Note{{Span: prev, Msg: "first defined here"}},
					Data:     diag.Data{StableCode: diag.SemaError.ID()},
				})
			}
			seen[st.Name] = st.Span
			if st.Kind == ast.StmtLayout {
				layouts++
				if layouts > 1 {
					extraLayout = st.Span
				}
			}
		}
	}
	if layouts > 1 {
		diags = append(diags, diag.Diagnostic{
			Severity: diag.SevWarning,
			Code:     diag.SemaError,
			Message:  "multiple layout roots; only the first drives the UI loop",
			Primary:  extraLayout,
			Data:     diag.Data{StableCode: diag.SemaError.ID()},
		})
	}
	return diags
}
