// Package proofcache implements the Merkle-hashed per-definition proof
// cache: every top-level checkable definition (cell, flow, layout,
// render) gets a stable stmt_merkle folding in its own text, the content
// of everything it transitively calls, and its import set, so an edit to
// an unrelated definition never invalidates a cached verdict. The on-disk
// store uses atomic temp-file-then-rename writes protected by a mutex,
// keyed by a content hash; the wire format is the fixed JSON schema the
// orchestrator commits to as a stable artifact (proof-cache-v1.json).
package proofcache

import (
	"fmt"
	"sort"

	"aura/internal/project"
)

// DefKind identifies which checkable top-level form a stmt_merkle covers.
type DefKind uint8

const (
	DefCell DefKind = iota
	DefFlow
	DefLayout
	DefRender
)

func (k DefKind) String() string {
	switch k {
	case DefCell:
		return "cell"
	case DefFlow:
		return "flow"
	case DefLayout:
		return "layout"
	case DefRender:
		return "render"
	default:
		return "unknown"
	}
}

// BaseKey partitions the cache by everything that can invalidate every
// entry at once: file identity, manifest contents, the plug-in set, and
// solver configuration.
func BaseKey(fileHash, manifestHash, pluginsHash, solverHash project.Digest) project.Digest {
	return project.HashString(fmt.Sprintf("base-key-v1\nfile=%x\nmanifest=%x\nplugins=%x\nsolver=%x",
		fileHash, manifestHash, pluginsHash, solverHash))
}

// StmtMerkleInput gathers the pieces a stmt_merkle folds together.
type StmtMerkleInput struct {
	Kind         DefKind
	Content      string          // the definition's own source slice
	ImportDeps   []project.Digest // dep-hash of every imported module
	CalledHashes []project.Digest // content hash of every transitively-called top-level def, intra-file
}

// StmtMerkle computes the stable per-definition digest: stable iff the
// definition's text and the text of every definition it transitively
// calls (plus the import set) are unchanged.
func StmtMerkle(in StmtMerkleInput) project.Digest {
	imports := append([]project.Digest(nil), in.ImportDeps...)
	sort.Slice(imports, func(i, j int) bool { return lessDigest(imports[i], imports[j]) })
	deps := append([]project.Digest(nil), in.CalledHashes...)
	sort.Slice(deps, func(i, j int) bool { return lessDigest(deps[i], deps[j]) })

	importHash := combineAll(imports)
	depHash := combineAll(deps)

	return project.HashString(fmt.Sprintf("stmt-merkle-v1\nkind=%s\ncontent=%s\nimports=%x\ndep=%x",
		in.Kind, in.Content, importHash, depHash))
}

func combineAll(digests []project.Digest) project.Digest {
	var acc project.Digest
	for _, d := range digests {
		acc = project.Combine(acc, d)
	}
	return acc
}

func lessDigest(a, b project.Digest) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// UIMerkle hashes the whole-program UI-check inputs: the file's content
// hash plus its dependency hash.
func UIMerkle(fileHash, depHash project.Digest) project.Digest {
	return project.Combine(fileHash, depHash)
}
