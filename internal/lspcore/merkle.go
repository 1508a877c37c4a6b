package lspcore

import (
	"os"
	"path/filepath"
	"strings"

	"aura/internal/ast"
	"aura/internal/project"
	"aura/internal/proofcache"
)

// defSlice describes one checkable top-level definition: its statement,
// kind, name, and byte range within the document.
type defSlice struct {
	Stmt  ast.StmtID
	Kind  proofcache.DefKind
	Name  string
	Start uint32
	End   uint32
}

// collectDefs walks the top-level statements, carving each checkable
// definition's source slice. Loose statements aggregate into a trailing
// pseudo-definition so the script scope participates in caching too.
func collectDefs(b *ast.Builder, fileID ast.FileID) []defSlice {
	file := b.Files.Get(fileID)
	if file == nil {
		return nil
	}
	var defs []defSlice
	script := defSlice{Kind: proofcache.DefFlow, Name: "(top-level)"}
	haveScript := false
	for _, id := range file.Stmts {
		st := b.Stmts.Get(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtCellDef:
			defs = append(defs, defSlice{Stmt: id, Kind: proofcache.DefCell, Name: b.String(st.Name), Start: st.Span.Start, End: st.Span.End})
		case ast.StmtFlowBlock:
			defs = append(defs, defSlice{Stmt: id, Kind: proofcache.DefFlow, Name: "(flow)", Start: st.Span.Start, End: st.Span.End})
		case ast.StmtLayout:
			defs = append(defs, defSlice{Stmt: id, Kind: proofcache.DefLayout, Name: b.String(st.Name), Start: st.Span.Start, End: st.Span.End})
		case ast.StmtRender:
			defs = append(defs, defSlice{Stmt: id, Kind: proofcache.DefRender, Name: b.String(st.Name), Start: st.Span.Start, End: st.Span.End})
		case ast.StmtImport, ast.StmtTypeAlias, ast.StmtTraitDef,
			ast.StmtRecordDef, ast.StmtEnumDef, ast.StmtExternCell:
			// declarations don't verify on their own
		default:
			if !haveScript {
				script.Start = st.Span.Start
				haveScript = true
			}
			script.End = st.Span.End
		}
	}
	if haveScript {
		defs = append(defs, script)
	}
	return defs
}

// sliceText extracts a definition's source text, clamped to the document.
func sliceText(text string, d defSlice) string {
	start, end := int(d.Start), int(d.End)
	if start > len(text) {
		start = len(text)
	}
	if end > len(text) {
		end = len(text)
	}
	if end < start {
		end = start
	}
	return text[start:end]
}

// normalizeSlice strips line comments and trailing whitespace before
// hashing, so a comment-only edit inside a definition keeps its
// stmt_merkle stable and its cached verdict reusable.
func normalizeSlice(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// callGraph builds the intra-file call graph over top-level callables by
// boundary-aware name scans of each definition's slice, then closes it
// transitively: deps[i] holds every definition index reachable from i.
func callGraph(text string, defs []defSlice) [][]int {
	direct := make([][]int, len(defs))
	for i, d := range defs {
		slice := sliceText(text, d)
		for j, other := range defs {
			if i == j || other.Name == "" || strings.HasPrefix(other.Name, "(") {
				continue
			}
			if containsIdent(slice, other.Name) {
				direct[i] = append(direct[i], j)
			}
		}
	}
	deps := make([][]int, len(defs))
	for i := range defs {
		seen := make(map[int]bool)
		var visit func(int)
		visit = func(n int) {
			for _, m := range direct[n] {
				if !seen[m] {
					seen[m] = true
					visit(m)
				}
			}
		}
		visit(i)
		for m := range seen {
			if m != i {
				deps[i] = append(deps[i], m)
			}
		}
	}
	return deps
}

// containsIdent reports a boundary-aware occurrence of name in s.
func containsIdent(s, name string) bool {
	return identOccurrence(s, name, 0) >= 0
}

// identOccurrence finds the first boundary-aware occurrence of name in s
// at or after from; -1 if none.
func identOccurrence(s, name string, from int) int {
	for i := from; i+len(name) <= len(s); {
		rel := strings.Index(s[i:], name)
		if rel < 0 {
			return -1
		}
		pos := i + rel
		before := pos == 0 || !isIdentByte(s[pos-1])
		afterIdx := pos + len(name)
		after := afterIdx >= len(s) || !isIdentByte(s[afterIdx])
		if before && after {
			return pos
		}
		i = pos + 1
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// depHash folds the import set: each `import a/b` line resolves to a
// workspace-relative `a/b.aura` whose content hash joins the digest.
// Resolution is best-effort; an unreadable import contributes its path
// alone so the hash still changes when the import set does.
func depHash(root, text string) project.Digest {
	var acc project.Digest
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, "import ")
		if !ok {
			continue
		}
		path := strings.TrimSpace(rest)
		acc = project.Combine(acc, project.HashString(path))
		rel := filepath.FromSlash(path) + ".aura"
		if data, err := os.ReadFile(filepath.Join(root, rel)); err == nil {
			acc = project.Combine(acc, project.HashBytes(data))
		}
	}
	return acc
}

// stmtMerkles computes every definition's stable hash: its own
// normalized slice, content hashes of transitive callees, and the file's
// import dep-hash.
func stmtMerkles(text string, defs []defSlice, importDeps project.Digest) []project.Digest {
	contents := make([]project.Digest, len(defs))
	for i, d := range defs {
		contents[i] = project.HashString("kind=" + d.Kind.String() + "\n" + normalizeSlice(sliceText(text, d)))
	}
	deps := callGraph(text, defs)
	out := make([]project.Digest, len(defs))
	for i, d := range defs {
		called := make([]project.Digest, 0, len(deps[i]))
		for _, j := range deps[i] {
			called = append(called, contents[j])
		}
		out[i] = proofcache.StmtMerkle(proofcache.StmtMerkleInput{
			Kind:         d.Kind,
			Content:      normalizeSlice(sliceText(text, d)),
			ImportDeps:   []project.Digest{importDeps},
			CalledHashes: called,
		})
	}
	return out
}
