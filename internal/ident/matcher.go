package ident

import (
	"fmt"
	"strings"
)

// Logger is the minimal structured logging surface the matcher needs.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AmbiguousMatchError reports a namespace slot with several equally plausible
// values. It is non-fatal: the matcher keeps the first-seen candidate and
// logs the conflict.
type AmbiguousMatchError struct {
	Namespace  Namespace
	Candidates []string
	Chosen     string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ident: ambiguous %s: candidates [%s], kept %q",
		e.Namespace, strings.Join(e.Candidates, ", "), e.Chosen)
}

type nodeKey struct {
	ns    Namespace
	value string
}

// Matcher accumulates identifier records and partitions their values. State
// is local to one invocation; a rerun starts from a fresh matcher and
// regenerates the whole mapping table.
type Matcher struct {
	log Logger

	uf       *unionFind
	nodes    map[nodeKey]int
	nodeList []nodeKey

	records     []Record
	seen        map[Record]struct{}
	recordNodes [][]int

	// cooc counts direct co-occurrences per unordered node pair. It backs
	// both slot compatibility checks and the most-frequent tie-break.
	cooc map[[2]int]int

	dropped    int
	duplicates int
}

// MatcherOption customizes a Matcher.
type MatcherOption func(*Matcher)

// WithLogger replaces the no-op default logger.
func WithLogger(l Logger) MatcherOption {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMatcher returns an empty matcher.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		log:   noopLogger{},
		uf:    newUnionFind(),
		nodes: make(map[nodeKey]int),
		seen:  make(map[Record]struct{}),
		cooc:  make(map[[2]int]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add consumes one observed record. Records with every slot absent are
// dropped (logged, non-fatal) and full duplicates are ignored; all present
// values of a kept record are unioned into one partition.
func (m *Matcher) Add(rec Record) {
	if rec.Empty() {
		m.dropped++
		m.log.Warn("dropped record with no identifier values")
		return
	}
	if _, dup := m.seen[rec]; dup {
		m.duplicates++
		return
	}
	m.seen[rec] = struct{}{}
	m.records = append(m.records, rec)

	ids := make([]int, 0, numNamespaces)
	for ns, v := range rec.Values {
		if v == "" {
			continue
		}
		ids = append(ids, m.intern(nodeKey{ns: Namespace(ns), value: v}))
	}
	for i := 1; i < len(ids); i++ {
		m.uf.union(ids[0], ids[i])
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			m.cooc[pairKey(ids[i], ids[j])]++
		}
	}
	m.recordNodes = append(m.recordNodes, ids)
}

// AddAll consumes records in order.
func (m *Matcher) AddAll(recs []Record) {
	for _, rec := range recs {
		m.Add(rec)
	}
}

func (m *Matcher) intern(key nodeKey) int {
	if id, ok := m.nodes[key]; ok {
		return id
	}
	id := m.uf.add()
	m.nodes[key] = id
	m.nodeList = append(m.nodeList, key)
	return id
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// Rows emits the cross-reference rows: one per distinct directly-observed
// combination, in first-seen order, with the remaining namespace slots
// filled from partition members that directly co-occurred with at least one
// of the combination's own values. Slots with several candidates take the
// most frequent co-occurrer; ties keep the first-seen value and log an
// ambiguity warning. Unobserved combinations are never synthesized.
func (m *Matcher) Rows() []MappingRow {
	members := m.partitionMembers()

	rows := make([]MappingRow, 0, len(m.records))
	emitted := make(map[MappingRow]struct{}, len(m.records))
	for i, rec := range m.records {
		row := m.fillRecord(rec, m.recordNodes[i], members)
		if _, dup := emitted[row]; dup {
			continue
		}
		emitted[row] = struct{}{}
		rows = append(rows, row)
	}
	m.log.Info("matcher emitted mapping rows",
		"records", len(m.records),
		"rows", len(rows),
		"dropped", m.dropped,
		"duplicates", m.duplicates)
	return rows
}

// partitionMembers maps each set root to its member node ids in first-seen
// order, keeping candidate iteration deterministic.
func (m *Matcher) partitionMembers() map[int][]int {
	members := make(map[int][]int)
	for id := range m.nodeList {
		root := m.uf.find(id)
		members[root] = append(members[root], id)
	}
	return members
}

func (m *Matcher) fillRecord(rec Record, ids []int, members map[int][]int) MappingRow {
	row := MappingRow{Values: rec.Values}
	if len(ids) == 0 {
		return row
	}
	partition := members[m.uf.find(ids[0])]
	for ns := Namespace(0); ns < numNamespaces; ns++ {
		if row.Values[ns] != "" {
			continue
		}
		if v, ok := m.resolveSlot(ns, ids, partition); ok {
			row.Values[ns] = v
		}
	}
	return row
}

// resolveSlot picks a value for an unpopulated namespace slot. Candidates
// are partition members of that namespace that directly co-occurred with at
// least one of the record's own values; a slot with no candidate stays null.
func (m *Matcher) resolveSlot(ns Namespace, ids []int, partition []int) (string, bool) {
	var candidates []int
	var scores []int
	for _, member := range partition {
		key := m.nodeList[member]
		if key.ns != ns {
			continue
		}
		score := 0
		for _, own := range ids {
			score += m.cooc[pairKey(member, own)]
		}
		if score == 0 {
			continue
		}
		candidates = append(candidates, member)
		scores = append(scores, score)
	}
	if len(candidates) == 0 {
		return "", false
	}

	best := 0
	tied := false
	for i := 1; i < len(candidates); i++ {
		switch {
		case scores[i] > scores[best]:
			best = i
			tied = false
		case scores[i] == scores[best]:
			tied = true
		}
	}
	chosen := m.nodeList[candidates[best]].value
	if tied {
		names := make([]string, 0, len(candidates))
		for i, c := range candidates {
			if scores[i] == scores[best] {
				names = append(names, m.nodeList[c].value)
			}
		}
		if len(names) > 1 {
			ambErr := &AmbiguousMatchError{Namespace: ns, Candidates: names, Chosen: chosen}
			m.log.Warn("ambiguous match", "namespace", ns.String(), "detail", ambErr.Error())
		}
	}
	return chosen, true
}
