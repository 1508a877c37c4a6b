package proofcache

import (
	"path/filepath"
	"testing"

	"aura/internal/diag"
	"aura/internal/project"
	"aura/internal/source"
)

func TestStmtMerkleDeterministicAndContentSensitive(t *testing.T) {
	base := StmtMerkleInput{
		Kind:    DefCell,
		Content: "cell add(a, b) { return a + b }",
	}
	m1 := StmtMerkle(base)
	m2 := StmtMerkle(base)
	if m1 != m2 {
		t.Fatal("expected identical StmtMerkleInput to hash identically")
	}

	changed := base
	changed.Content = "cell add(a, b) { return a + b } // unrelated comment"
	if StmtMerkle(changed) == m1 {
		t.Fatal("expected content change to change the hash")
	}
}

func TestStmtMerkleFoldsCalledHashes(t *testing.T) {
	dep := project.HashString("helper body")
	in := StmtMerkleInput{Kind: DefCell, Content: "cell f() { helper() }", CalledHashes: []project.Digest{dep}}
	withDep := StmtMerkle(in)

	in.CalledHashes = nil
	withoutDep := StmtMerkle(in)
	if withDep == withoutDep {
		t.Fatal("expected call-graph dependency to affect stmt_merkle")
	}
}

func TestStorePutAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	base := project.HashString("base")
	stmt := project.HashString("stmt")
	diags := []diag.Diagnostic{{Severity: diag.SevError, Code: diag.VerifyError, Primary: source.Span{}}}

	s.PutStmtDiagnostics(base, stmt, diags)
	got, ok := s.StmtDiagnostics(base, stmt)
	if !ok || len(got) != 1 {
		t.Fatalf("expected cached stmt diagnostics, got ok=%v got=%v", ok, got)
	}

	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got2, ok := reopened.StmtDiagnostics(base, stmt)
	if !ok || len(got2) != 1 {
		t.Fatalf("expected persisted diagnostics to survive reload, got ok=%v got=%v", ok, got2)
	}
	_ = filepath.Join(dir, "proof-cache-v1.json")
}

func TestStoreClearDropsOnlyRequestedBase(t *testing.T) {
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	baseA := project.HashString("a")
	baseB := project.HashString("b")
	s.PutFull(baseA, project.HashString("fileA"), FullVerdict{Verified: true})
	s.PutFull(baseB, project.HashString("fileB"), FullVerdict{Verified: true})

	s.Clear(&baseA)
	if _, ok := s.FullHit(baseA, project.HashString("fileA")); ok {
		t.Fatal("expected base A to be cleared")
	}
	if _, ok := s.FullHit(baseB, project.HashString("fileB")); !ok {
		t.Fatal("expected base B to survive a targeted clear")
	}
}
