package consensus

import "github.com/clustercore/cluster/pkg/types"

// Log is the in-memory replicated log. Index 0 is reserved as a sentinel
// so the first real entry has index 1; LastIndex/LastTerm on an empty log
// report 0.
type Log struct {
	entries []types.LogEntry // entries[i] has Index == i+1
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// LastIndex returns the index of the final entry, or 0 if empty.
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the final entry, or 0 if empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// TermAt returns the term of the entry at index, and whether it exists.
func (l *Log) TermAt(index uint64) (uint64, bool) {
	if index == 0 || index > uint64(len(l.entries)) {
		return 0, false
	}
	return l.entries[index-1].Term, true
}

// EntryAt returns the entry at index, and whether it exists.
func (l *Log) EntryAt(index uint64) (types.LogEntry, bool) {
	if index == 0 || index > uint64(len(l.entries)) {
		return types.LogEntry{}, false
	}
	return l.entries[index-1], true
}

// Append adds a new entry to the end of the log and returns its index.
func (l *Log) Append(term uint64, payload []byte) uint64 {
	index := l.LastIndex() + 1
	l.entries = append(l.entries, types.LogEntry{Term: term, Index: index, Payload: payload})
	return index
}

// TruncateAfter removes every entry with index > index, used when a
// follower's log conflicts with the leader's and must be rewound.
func (l *Log) TruncateAfter(index uint64) {
	if index >= uint64(len(l.entries)) {
		return
	}
	l.entries = l.entries[:index]
}

// EntriesFrom returns a copy of every entry with Index >= from.
func (l *Log) EntriesFrom(from uint64) []types.LogEntry {
	if from == 0 {
		from = 1
	}
	if from > uint64(len(l.entries)) {
		return nil
	}
	out := make([]types.LogEntry, len(l.entries)-int(from)+1)
	copy(out, l.entries[from-1:])
	return out
}

// MarkCommitted sets Committed on every entry up to and including index.
func (l *Log) MarkCommitted(index uint64) {
	for i := range l.entries {
		if l.entries[i].Index <= index {
			l.entries[i].Committed = true
		}
	}
}

// UpToDate reports whether a candidate whose log ends at
// (candidateLastTerm, candidateLastIndex) is at least as up-to-date as
// this log, per the Raft election-restriction rule: higher last term
// wins outright; equal terms fall back to longer log wins.
func (l *Log) UpToDate(candidateLastTerm, candidateLastIndex uint64) bool {
	myTerm := l.LastTerm()
	if candidateLastTerm != myTerm {
		return candidateLastTerm > myTerm
	}
	return candidateLastIndex >= l.LastIndex()
}
