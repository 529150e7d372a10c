package schema

// Tables is the built-in registry for the knowledge base. Column order
// matches the TSV extracts produced by the fetch scripts; columns that the
// loader fills from fixed invocation values (condition names, replicate
// numbers) are declared after the body columns.
var Tables = Registry{
	// Identifier cross-reference table built by the matcher. The composite
	// natural key spans every namespace slot; any subset may be null and
	// uniqueness holds over the full tuple.
	"id_mapper": {
		Name:        "id_mapper",
		NullableKey: true,
		Columns: []Column{
			{Name: "uniprot_accession", Key: true},
			{Name: "refseq_locus_tag", Key: true},
			{Name: "locus_tag", Key: true},
			{Name: "kegg_accession", Key: true},
			{Name: "refseq_protein_id", Key: true},
		},
	},

	// One uniprot extract line carries the protein row plus its keyword,
	// GO term and EC number lists; the lists fan out into the association
	// tables during the load.
	"uniprot": {
		Name: "uniprot",
		Columns: []Column{
			{Name: "uniprot_accession", Key: true},
			{Name: "locus_tag", Array: true},
			{Name: "orf_name", Array: true},
			{Name: "kegg_accession", Array: true},
			{Name: "refseq_protein_id"},
			{Name: "embl_protein_id"},
			{Name: "keywords", Array: true},
			{Name: "protein_name"},
			{Name: "protein_existence"},
			{Name: "sequence"},
			{Name: "go_term", Array: true},
			{Name: "ec_number", Array: true},
			{Name: "post_translational_modification", Kind: JSON},
		},
		FanOuts: []FanOut{
			{Source: "keywords", Table: "uniprot_keyword", Column: "keyword"},
			{Source: "go_term", Table: "uniprot_go_term", Column: "go_term"},
			{Source: "ec_number", Table: "uniprot_ec_number", Column: "ec_number"},
		},
	},

	"uniprot_keyword": {
		Name: "uniprot_keyword",
		Columns: []Column{
			{Name: "uniprot_accession", Key: true},
			{Name: "keyword", Key: true},
		},
		Refs: []Reference{
			{Column: "uniprot_accession", ParentTable: "uniprot", ParentColumn: "uniprot_accession"},
		},
	},

	"uniprot_go_term": {
		Name: "uniprot_go_term",
		Columns: []Column{
			{Name: "uniprot_accession", Key: true},
			{Name: "go_term", Key: true},
		},
		Refs: []Reference{
			{Column: "uniprot_accession", ParentTable: "uniprot", ParentColumn: "uniprot_accession"},
		},
	},

	"uniprot_ec_number": {
		Name: "uniprot_ec_number",
		Columns: []Column{
			{Name: "uniprot_accession", Key: true},
			{Name: "ec_number", Key: true},
		},
		Refs: []Reference{
			{Column: "uniprot_accession", ParentTable: "uniprot", ParentColumn: "uniprot_accession"},
		},
	},

	"refseq": {
		Name: "refseq",
		Columns: []Column{
			{Name: "refseq_locus_tag", Key: true},
			{Name: "locus_tag", Array: true},
			{Name: "refseq_protein_id", Array: true},
			{Name: "strand_location"},
			{Name: "start_position", Kind: Int},
			{Name: "end_position", Kind: Int},
			{Name: "protein_sequence"},
		},
	},

	"kegg": {
		Name: "kegg",
		Columns: []Column{
			{Name: "kegg_accession", Key: true},
			{Name: "kegg_pathway", Array: true},
			{Name: "kegg_orthology", Array: true},
		},
	},

	"kegg_relations": {
		Name: "kegg_relations",
		Columns: []Column{
			{Name: "source_accession", Key: true},
			{Name: "target_accession", Key: true},
			{Name: "pathway_id", Key: true},
			{Name: "relation_type"},
			{Name: "relation_subtype", Array: true},
			{Name: "relation_value", Array: true},
		},
		Refs: []Reference{
			{Column: "source_accession", ParentTable: "kegg", ParentColumn: "kegg_accession"},
			{Column: "target_accession", ParentTable: "kegg", ParentColumn: "kegg_accession"},
		},
	},

	"string_interactions": {
		Name: "string_interactions",
		Columns: []Column{
			{Name: "protein_a", Key: true},
			{Name: "protein_b", Key: true},
			{Name: "neighborhood", Kind: Int},
			{Name: "neighborhood_transferred", Kind: Int},
			{Name: "fusion", Kind: Int},
			{Name: "phylogenetic_cooccurrence", Kind: Int},
			{Name: "homology", Kind: Int},
			{Name: "coexpression", Kind: Int},
			{Name: "coexpression_transferred", Kind: Int},
			{Name: "experimental", Kind: Int},
			{Name: "experimental_transferred", Kind: Int},
			{Name: "database_score", Kind: Int},
			{Name: "database_transferred", Kind: Int},
			{Name: "textmining", Kind: Int},
			{Name: "textmining_transferred", Kind: Int},
			{Name: "combined_score", Kind: Int},
		},
	},

	"experimental_condition": {
		Name: "experimental_condition",
		Columns: []Column{
			{Name: "name", Key: true},
			{Name: "description"},
			{Name: "experimental_condition_type"},
		},
	},

	// Differential expression between two conditions; the condition pair is
	// fixed per invocation and attached to every row of the body.
	"transcriptomics": {
		Name: "transcriptomics",
		Columns: []Column{
			{Name: "experimental_id", Key: true},
			{Name: "log2_fold_change", Kind: Float},
			{Name: "p_value", Kind: Float},
			{Name: "adjusted_p_value", Kind: Float},
			{Name: "condition_a", Key: true},
			{Name: "condition_b", Key: true},
		},
		Refs: []Reference{
			{Column: "condition_a", ParentTable: "experimental_condition", ParentColumn: "name"},
			{Column: "condition_b", ParentTable: "experimental_condition", ParentColumn: "name"},
		},
	},

	"transcriptomics_counts": {
		Name: "transcriptomics_counts",
		Columns: []Column{
			{Name: "experimental_id", Key: true},
			{Name: "read_count", Kind: Float},
			{Name: "normalized_count", Kind: Float},
			{Name: "experimental_condition_name", Key: true},
			{Name: "replicate", Kind: Int, Key: true},
		},
		Refs: []Reference{
			{Column: "experimental_condition_name", ParentTable: "experimental_condition", ParentColumn: "name"},
		},
	},

	// Protein-level quantification per condition and replicate; the
	// condition and replicate are fixed per invocation.
	"proteomics_quantification": {
		Name: "proteomics_quantification",
		Columns: []Column{
			{Name: "experimental_id", Key: true},
			{Name: "experimental_condition_name", Key: true},
			{Name: "replicate", Kind: Int, Key: true},
			{Name: "protein_sequence"},
			{Name: "sum_pep", Kind: Float},
			{Name: "combined_q_value", Kind: Float},
			{Name: "abundance", Kind: Float},
			{Name: "abundance_normalized", Kind: Float},
			{Name: "abundance_count", Kind: Float},
		},
		Refs: []Reference{
			{Column: "experimental_condition_name", ParentTable: "experimental_condition", ParentColumn: "name"},
		},
	},

	// Modifications detected on peptide spectrum matches; the condition is
	// fixed per invocation.
	"proteomics_peptide_modifications": {
		Name: "proteomics_peptide_modifications",
		Columns: []Column{
			{Name: "experimental_id", Key: true},
			{Name: "experimental_condition_name", Key: true},
			{Name: "modification_type", Key: true},
			{Name: "modification_position", Key: true},
			{Name: "peptide_sequence"},
			{Name: "start_position_complete_protein", Kind: Int},
			{Name: "end_position_complete_protein", Kind: Int},
			{Name: "psm_ambiguity"},
			{Name: "pep", Kind: Float},
			{Name: "q_value", Kind: Float},
			{Name: "search_engine_confidence"},
		},
		Refs: []Reference{
			{Column: "experimental_condition_name", ParentTable: "experimental_condition", ParentColumn: "name"},
		},
	},
}

