package diag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aura/internal/source"
)

func TestBagLimitTruncates(t *testing.T) {
	b := NewBag(2)
	require.True(t, b.Add(Diagnostic{Severity: SevError, Code: SemaError}))
	require.True(t, b.Add(Diagnostic{Severity: SevWarning, Code: SemaError}))
	require.False(t, b.Add(Diagnostic{Severity: SevError, Code: SemaError}))
	require.Equal(t, 2, b.Len())
	require.True(t, b.HasErrors())
}

func TestDedupCollapsesCrossPhaseRepeats(t *testing.T) {
	span := source.Span{File: 1, Start: 10, End: 15}
	b := NewBag(8)
	b.Add(Diagnostic{Severity: SevError, Code: SemaError, Message: "use-after-consume: 't'", Primary: span})
	b.Add(Diagnostic{Severity: SevError, Code: SemaError, Message: "use-after-consume: 't'", Primary: span})
	b.Add(Diagnostic{Severity: SevError, Code: VerifyError, Message: "use-after-consume: 't'", Primary: span})
	b.Dedup()
	// same code collapses; a different stable code stays distinct in the bag
	require.Equal(t, 2, b.Len())
}

func TestDedupReporterCollapsesAcrossCodes(t *testing.T) {
	span := source.Span{File: 1, Start: 10, End: 15}
	bag := NewBag(8)
	r := NewDedupReporter(BagReporter{Bag: bag})
	r.Report(SemaError, SevError, span, "use-after-consume: 't'", nil, nil)
	r.Report(VerifyError, SevError, span, "use-after-consume: 't'", nil, nil)

	// the analyzer's and the verifier cross-check's reports of one defect
	// collapse; the first phase's code wins
	require.Equal(t, 1, bag.Len())
	require.Equal(t, SemaError, bag.Items()[0].Code)
	require.Equal(t, 1, r.Suppressed())
}

func TestBagReporterStampsStableCode(t *testing.T) {
	bag := NewBag(4)
	BagReporter{Bag: bag}.Report(VerifyError, SevError, source.Span{}, "assertion may fail", nil, nil)
	require.Equal(t, "AUR-V-0003", bag.Items()[0].Data.StableCode)
}

func TestBagSortIsDeterministic(t *testing.T) {
	b := NewBag(8)
	b.Add(Diagnostic{Severity: SevWarning, Code: SemaError, Primary: source.Span{File: 1, Start: 20}})
	b.Add(Diagnostic{Severity: SevError, Code: VerifyError, Primary: source.Span{File: 1, Start: 5}})
	b.Add(Diagnostic{Severity: SevError, Code: SemaError, Primary: source.Span{File: 1, Start: 20}})
	b.Sort()
	items := b.Items()
	require.Equal(t, uint32(5), items[0].Primary.Start)
	require.Equal(t, SevError, items[1].Severity, "higher severity sorts first at equal spans")
}
