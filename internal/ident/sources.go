package ident

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"biokb/internal/tsv"
)

// IDConflictError reports a source extract that contradicts itself, such as
// a duplicated primary accession. Extract conflicts are fatal: the input is
// corrupt and rerunning will not help.
type IDConflictError struct {
	Source string
	Detail string
}

func (e *IDConflictError) Error() string {
	return fmt.Sprintf("ident: %s extract conflict: %s", e.Source, e.Detail)
}

// ParseUniprot reads the UniProt ID extract and feeds its records into m.
// Extract layout per line: accession, locus tags, ORF names, KEGG
// accessions, RefSeq protein id. ORF names fold into the locus tag set, the
// protein id loses its version suffix, and locus tags pair with KEGG
// accessions by tag containment. One record is emitted per pairing so the
// matcher only ever sees directly co-occurring values.
func (m *Matcher) ParseUniprot(r io.Reader) error {
	seen := make(map[string]struct{})
	return eachLine(r, "uniprot", 5, func(lineNo int, fields []string) error {
		accession := scalarField(fields[0])
		if accession == "" {
			return &IDConflictError{Source: "uniprot", Detail: fmt.Sprintf("line %d: missing accession", lineNo)}
		}
		if _, dup := seen[accession]; dup {
			return &IDConflictError{Source: "uniprot", Detail: fmt.Sprintf("duplicate accession %s", accession)}
		}
		seen[accession] = struct{}{}

		locusTags := tsv.SplitList(fields[1])
		for _, orf := range tsv.SplitList(fields[2]) {
			if !contains(locusTags, orf) {
				locusTags = append(locusTags, orf)
			}
		}
		keggAccessions := tsv.SplitList(fields[3])
		proteinID := stripVersion(scalarField(fields[4]))

		pairs := pairLocusKegg(locusTags, keggAccessions)
		if len(pairs) == 0 {
			pairs = []locusKeggPair{{}}
		}
		for _, p := range pairs {
			var rec Record
			rec.Values[NamespaceUniprot] = accession
			rec.Values[NamespaceLocusTag] = p.locusTag
			rec.Values[NamespaceKegg] = p.kegg
			rec.Values[NamespaceRefseqProtein] = proteinID
			m.Add(rec)
		}
		return nil
	})
}

// ParseRefseq reads the RefSeq annotation ID extract. Layout per line:
// RefSeq locus tag, locus tags, RefSeq protein id. One record per locus tag,
// or a single tag-less record when the annotation names none.
func (m *Matcher) ParseRefseq(r io.Reader) error {
	seen := make(map[string]struct{})
	return eachLine(r, "refseq", 3, func(lineNo int, fields []string) error {
		refseqLT := scalarField(fields[0])
		if refseqLT == "" {
			return &IDConflictError{Source: "refseq", Detail: fmt.Sprintf("line %d: missing locus tag", lineNo)}
		}
		if _, dup := seen[refseqLT]; dup {
			return &IDConflictError{Source: "refseq", Detail: fmt.Sprintf("duplicate locus tag %s", refseqLT)}
		}
		seen[refseqLT] = struct{}{}

		proteinID := stripVersion(scalarField(fields[2]))
		locusTags := tsv.SplitList(fields[1])
		if len(locusTags) == 0 {
			locusTags = []string{""}
		}
		for _, lt := range locusTags {
			var rec Record
			rec.Values[NamespaceRefseqLocusTag] = refseqLT
			rec.Values[NamespaceLocusTag] = lt
			rec.Values[NamespaceRefseqProtein] = proteinID
			m.Add(rec)
		}
		return nil
	})
}

// ParseKegg reads the KEGG ID extract. Layout per line: the KEGG accession
// in org:tag form. The tag after the colon is the plain locus tag, so each
// accession contributes one accession/locus-tag co-occurrence.
func (m *Matcher) ParseKegg(r io.Reader) error {
	return eachLine(r, "kegg", 1, func(lineNo int, fields []string) error {
		accession := scalarField(fields[0])
		if accession == "" {
			return &IDConflictError{Source: "kegg", Detail: fmt.Sprintf("line %d: missing accession", lineNo)}
		}
		var rec Record
		rec.Values[NamespaceKegg] = accession
		if _, tag, ok := strings.Cut(accession, ":"); ok && tag != "" {
			rec.Values[NamespaceLocusTag] = tag
		}
		m.Add(rec)
		return nil
	})
}

type locusKeggPair struct {
	locusTag string
	kegg     string
}

// pairLocusKegg pairs each locus tag with the first KEGG accession that
// contains it, then appends still-unpaired accessions on their own. KEGG
// accessions embed the locus tag (sml:Smlt1234 carries Smlt1234), so
// containment is the pairing test.
func pairLocusKegg(locusTags, keggAccessions []string) []locusKeggPair {
	pairs := make([]locusKeggPair, 0, len(locusTags)+len(keggAccessions))
	paired := make(map[string]struct{}, len(keggAccessions))
	for _, lt := range locusTags {
		pair := locusKeggPair{locusTag: lt}
		for _, kegg := range keggAccessions {
			if strings.Contains(kegg, lt) {
				pair.kegg = kegg
				paired[kegg] = struct{}{}
				break
			}
		}
		pairs = append(pairs, pair)
	}
	for _, kegg := range keggAccessions {
		if _, ok := paired[kegg]; !ok {
			pairs = append(pairs, locusKeggPair{kegg: kegg})
		}
	}
	return pairs
}

// eachLine scans r line by line, splits on tabs and hands non-blank lines to
// fn. Lines with the wrong field count are a conflict: the extract layout is
// fixed.
func eachLine(r io.Reader, source string, fieldCount int, fn func(lineNo int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != fieldCount {
			return &IDConflictError{
				Source: source,
				Detail: fmt.Sprintf("line %d: %d fields, want %d", lineNo, len(fields), fieldCount),
			}
		}
		if err := fn(lineNo, fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s extract: %w", source, err)
	}
	return nil
}

func scalarField(s string) string {
	s = strings.TrimSpace(s)
	if s == tsv.Null {
		return ""
	}
	return s
}

func stripVersion(id string) string {
	base, _, _ := strings.Cut(id, ".")
	return base
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
