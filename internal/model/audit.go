package model

type MissingDoc struct {
	Type        EntityType `json:"type"`
	SourcePath  string     `json:"source_path"`
	ExpectedDoc string     `json:"expected_doc"`
}

type MissingSource struct {
	Type           EntityType `json:"type"`
	DocPath        string     `json:"doc_path"`
	ExpectedSource string     `json:"expected_source"`
}

type AuditReport struct {
	SourcesWithoutDocs []MissingDoc    `json:"sources_without_docs"`
	DocsWithoutSources []MissingSource `json:"docs_without_sources"`
	Conflicts          []Conflict      `json:"conflicts"`
}

func (r AuditReport) IssueCount() int {
	return len(r.SourcesWithoutDocs) + len(r.DocsWithoutSources) + len(r.Conflicts)
}

func (r AuditReport) Clean() bool {
	return r.IssueCount() == 0
}
