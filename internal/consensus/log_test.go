package consensus

import "testing"

func TestLogAppendAndTermAt(t *testing.T) {
	l := NewLog()
	idx := l.Append(1, []byte("a"))
	if idx != 1 {
		t.Fatalf("expected first index 1, got %d", idx)
	}
	term, ok := l.TermAt(1)
	if !ok || term != 1 {
		t.Fatalf("expected term 1 at index 1, got %d ok=%v", term, ok)
	}
}

func TestLogTruncateAfter(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"))
	l.Append(1, []byte("b"))
	l.Append(2, []byte("c"))
	l.TruncateAfter(1)
	if l.LastIndex() != 1 {
		t.Fatalf("expected last index 1 after truncation, got %d", l.LastIndex())
	}
}

func TestLogUpToDateHigherTermWins(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"))
	if !l.UpToDate(2, 0) {
		t.Fatal("candidate with higher term should be up to date regardless of index")
	}
	if l.UpToDate(0, 100) {
		t.Fatal("candidate with lower term should not be up to date even with longer log")
	}
}

func TestLogUpToDateSameTermLongerLogWins(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"))
	l.Append(1, []byte("b"))
	if l.UpToDate(1, 1) {
		t.Fatal("candidate with shorter log at same term should not be up to date")
	}
	if !l.UpToDate(1, 2) {
		t.Fatal("candidate with equal-length log at same term should be up to date")
	}
}

func TestLogMarkCommitted(t *testing.T) {
	l := NewLog()
	l.Append(1, []byte("a"))
	l.Append(1, []byte("b"))
	l.MarkCommitted(1)
	e1, _ := l.EntryAt(1)
	e2, _ := l.EntryAt(2)
	if !e1.Committed {
		t.Fatal("entry 1 should be committed")
	}
	if e2.Committed {
		t.Fatal("entry 2 should not be committed")
	}
}
