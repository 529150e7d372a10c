package ident

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseUniprotFoldsORFNamesAndStripsVersions(t *testing.T) {
	m := NewMatcher()
	input := "U1\tNULL\tSMLT_ORF1\tNULL\tWP_001.2\n"
	if err := m.ParseUniprot(strings.NewReader(input)); err != nil {
		t.Fatalf("ParseUniprot: %v", err)
	}

	got := m.Rows()
	want := []MappingRow{mappingRow("U1", "", "SMLT_ORF1", "", "WP_001")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestParseUniprotPairsLocusTagsWithKeggAccessions(t *testing.T) {
	m := NewMatcher()
	input := "U1\tSmlt1234;Smlt5678\tNULL\tsml:Smlt1234;sml:Smlt5678;sml:Smlt9101\tNULL\n"
	if err := m.ParseUniprot(strings.NewReader(input)); err != nil {
		t.Fatalf("ParseUniprot: %v", err)
	}
	if len(m.records) != 3 {
		t.Fatalf("records = %d, want 3", len(m.records))
	}

	pairs := make(map[string]string)
	for _, rec := range m.records {
		pairs[rec.Values[NamespaceLocusTag]] = rec.Values[NamespaceKegg]
	}
	want := map[string]string{
		"Smlt1234": "sml:Smlt1234",
		"Smlt5678": "sml:Smlt5678",
		"":         "sml:Smlt9101",
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairings = %v, want %v", pairs, want)
	}
}

func TestParseUniprotRejectsDuplicateAccessions(t *testing.T) {
	m := NewMatcher()
	input := "U1\tNULL\tNULL\tNULL\tNULL\nU1\tNULL\tNULL\tNULL\tNULL\n"
	err := m.ParseUniprot(strings.NewReader(input))
	var conflict *IDConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want IDConflictError", err)
	}
	if conflict.Source != "uniprot" {
		t.Fatalf("conflict source = %q, want uniprot", conflict.Source)
	}
}

func TestParseRefseqEmitsOneRecordPerLocusTag(t *testing.T) {
	m := NewMatcher()
	input := "RS1\tSmlt1;Smlt2\tWP_9.1\nRS2\tNULL\tNULL\n"
	if err := m.ParseRefseq(strings.NewReader(input)); err != nil {
		t.Fatalf("ParseRefseq: %v", err)
	}

	want := []Record{
		record("", "RS1", "Smlt1", "", "WP_9"),
		record("", "RS1", "Smlt2", "", "WP_9"),
		record("", "RS2", "", "", ""),
	}
	if !reflect.DeepEqual(m.records, want) {
		t.Fatalf("records = %v, want %v", m.records, want)
	}
}

func TestParseKeggDerivesLocusTag(t *testing.T) {
	m := NewMatcher()
	if err := m.ParseKegg(strings.NewReader("sml:Smlt1234\n")); err != nil {
		t.Fatalf("ParseKegg: %v", err)
	}

	want := []Record{record("", "", "Smlt1234", "sml:Smlt1234", "")}
	if !reflect.DeepEqual(m.records, want) {
		t.Fatalf("records = %v, want %v", m.records, want)
	}
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	m := NewMatcher()
	err := m.ParseRefseq(strings.NewReader("RS1\tSmlt1\n"))
	var conflict *IDConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want IDConflictError", err)
	}
}

func TestMatchAcrossAllThreeExtracts(t *testing.T) {
	m := NewMatcher()
	uniprot := "U1\tSmlt1\tNULL\tsml:Smlt1\tWP_1.1\n"
	refseq := "RS1\tSmlt1\tWP_1.1\n"
	kegg := "sml:Smlt1\n"
	if err := m.ParseUniprot(strings.NewReader(uniprot)); err != nil {
		t.Fatalf("ParseUniprot: %v", err)
	}
	if err := m.ParseRefseq(strings.NewReader(refseq)); err != nil {
		t.Fatalf("ParseRefseq: %v", err)
	}
	if err := m.ParseKegg(strings.NewReader(kegg)); err != nil {
		t.Fatalf("ParseKegg: %v", err)
	}

	got := m.Rows()
	want := []MappingRow{mappingRow("U1", "RS1", "Smlt1", "sml:Smlt1", "WP_1")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}
