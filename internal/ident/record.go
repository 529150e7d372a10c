// Package ident reconciles partially-overlapping identifier sets from the
// UniProt, RefSeq and KEGG extracts into cross-reference rows for the
// id_mapper table. Values that ever co-occurred on a source line are aliases
// of one biological entity; the matcher partitions all observed values with
// a union-find and emits one row per directly-observed combination, guarding
// against false transitive joins.
package ident

import (
	"strings"

	"biokb/internal/store"
)

// Namespace identifies one independent identifier system.
type Namespace int

const (
	// NamespaceUniprot is the UniProt primary accession number.
	NamespaceUniprot Namespace = iota
	// NamespaceRefseqLocusTag is the locus tag assigned by the RefSeq annotation.
	NamespaceRefseqLocusTag
	// NamespaceLocusTag is the plain genomic locus tag (ORF names fold in here).
	NamespaceLocusTag
	// NamespaceKegg is the KEGG accession (org:tag form).
	NamespaceKegg
	// NamespaceRefseqProtein is the version-stripped RefSeq protein id.
	NamespaceRefseqProtein

	numNamespaces
)

var namespaceColumns = [numNamespaces]string{
	"uniprot_accession",
	"refseq_locus_tag",
	"locus_tag",
	"kegg_accession",
	"refseq_protein_id",
}

// Column returns the id_mapper column the namespace maps to.
func (n Namespace) Column() string { return namespaceColumns[n] }

func (n Namespace) String() string { return namespaceColumns[n] }

// Record is one observed tuple of co-occurring identifier values from a
// single source line. Empty slots mean the namespace was absent. Records are
// value types so full duplicates deduplicate naturally.
type Record struct {
	Values [numNamespaces]string
}

// Empty reports whether every slot is absent.
func (r Record) Empty() bool {
	return r.Values == [numNamespaces]string{}
}

// MappingRow is one emitted row of the id_mapper cross-reference table: at
// most one value per namespace slot.
type MappingRow struct {
	Values [numNamespaces]string
}

// Row converts the mapping row into engine row form for upserting.
func (m MappingRow) Row() store.Row {
	row := make(store.Row, numNamespaces)
	for ns, v := range m.Values {
		if v != "" {
			row[Namespace(ns).Column()] = v
		}
	}
	return row
}

// TSV renders the row in extract form: tab-separated, NULL for empty slots.
func (m MappingRow) TSV() string {
	fields := make([]string, numNamespaces)
	for i, v := range m.Values {
		if v == "" {
			fields[i] = "NULL"
			continue
		}
		fields[i] = v
	}
	return strings.Join(fields, "\t")
}
