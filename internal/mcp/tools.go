package mcp

// MemoryCreateInput defines the input schema for the memory_create tool.
type MemoryCreateInput struct {
	ProjectID  string   `json:"project_id" jsonschema:"the project this memory belongs to"`
	SessionID  string   `json:"session_id,omitempty" jsonschema:"the active session to link this memory to, if any"`
	Content    string   `json:"content" jsonschema:"the memory content to store"`
	Summary    string   `json:"summary,omitempty" jsonschema:"a short summary of the content"`
	Sector     string   `json:"sector,omitempty" jsonschema:"episodic, semantic, procedural, emotional, or reflective; auto-classified when omitted"`
	Tier       string   `json:"tier,omitempty" jsonschema:"session, project, or global; defaults to session"`
	Importance float64  `json:"importance,omitempty" jsonschema:"0-1 importance weight; defaults to 0.5"`
	Tags       []string `json:"tags,omitempty" jsonschema:"free-form tags"`
	Files      []string `json:"files,omitempty" jsonschema:"file paths this memory references"`
	Categories []string `json:"categories,omitempty" jsonschema:"project-defined categories"`
	MemoryType string   `json:"memory_type,omitempty" jsonschema:"preference, codebase, decision, gotcha, pattern, turn_summary, or task_completion"`
}

// MemoryOutput is the wire representation of a stored memory.
type MemoryOutput struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Content     string   `json:"content"`
	Summary     string   `json:"summary,omitempty"`
	Sector      string   `json:"sector"`
	Tier        string   `json:"tier"`
	Importance  float64  `json:"importance"`
	Salience    float64  `json:"salience"`
	AccessCount int      `json:"access_count"`
	Tags        []string `json:"tags,omitempty"`
	Concepts    []string `json:"concepts,omitempty"`
	Files       []string `json:"files,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	MemoryType  string   `json:"memory_type,omitempty"`
	IsSuperseded bool    `json:"is_superseded,omitempty"`
	SupersededBy string  `json:"superseded_by,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// MemorySearchInput defines the input schema for the memory_search tool.
type MemorySearchInput struct {
	ProjectID         string  `json:"project_id" jsonschema:"the project to search memories within"`
	Query             string  `json:"query" jsonschema:"the search query"`
	SessionID         string  `json:"session_id,omitempty" jsonschema:"restrict results to memories linked to this session"`
	Sector            string  `json:"sector,omitempty" jsonschema:"restrict to one sector"`
	Tier              string  `json:"tier,omitempty" jsonschema:"restrict to one tier"`
	MemoryType        string  `json:"memory_type,omitempty" jsonschema:"restrict to one memory type"`
	Mode              string  `json:"mode,omitempty" jsonschema:"hybrid, semantic, or keyword; defaults to hybrid"`
	MinSalience       float64 `json:"min_salience,omitempty" jsonschema:"minimum salience, 0-1"`
	IncludeSuperseded bool    `json:"include_superseded,omitempty" jsonschema:"include memories that have been superseded"`
	Limit             int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// MemorySearchOutput is the result of a memory_search call.
type MemorySearchOutput struct {
	Results []MemorySearchResult `json:"results"`
}

// MemorySearchResult is one ranked memory plus its match provenance.
type MemorySearchResult struct {
	Memory             MemoryOutput `json:"memory"`
	Score              float64      `json:"score"`
	MatchType          string       `json:"match_type"`
	RelatedMemoryCount int          `json:"related_memory_count"`
}

// MemoryGetInput defines the input schema for the memory_get tool.
type MemoryGetInput struct {
	ID string `json:"id" jsonschema:"the memory id"`
}

// MemoryReinforceInput defines the input schema for memory_reinforce / memory_deemphasize.
type MemoryReinforceInput struct {
	ID     string  `json:"id" jsonschema:"the memory id"`
	Amount float64 `json:"amount,omitempty" jsonschema:"amount to reinforce or deemphasize by, 0-1"`
}

// MemoryDeleteInput defines the input schema for the memory_delete tool.
type MemoryDeleteInput struct {
	ID   string `json:"id" jsonschema:"the memory id"`
	Hard bool   `json:"hard,omitempty" jsonschema:"permanently delete instead of soft-deleting"`
}

// MemorySupersedeInput defines the input schema for the memory_supersede tool.
type MemorySupersedeInput struct {
	OldID string `json:"old_id" jsonschema:"the memory being superseded"`
	NewID string `json:"new_id" jsonschema:"the memory that supersedes it"`
}

// SessionStartInput defines the input schema for the session_start tool.
type SessionStartInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project to start a session for"`
	Context   string `json:"context,omitempty" jsonschema:"free-form context blob, e.g. serialized working state"`
}

// SessionEndInput defines the input schema for the session_end tool.
type SessionEndInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to end"`
	Summary   string `json:"summary,omitempty" jsonschema:"a summary of what happened in the session"`
}

// SessionOutput is the wire representation of a session.
type SessionOutput struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project to search"`
	Query     string `json:"query" jsonschema:"the code search query to execute"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchDocsInput defines the input schema for the search_docs tool.
type SearchDocsInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project to search"`
	Query     string `json:"query" jsonschema:"the documentation search query to execute"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// CodeSearchOutput is the result of a search_code or search_docs call.
type CodeSearchOutput struct {
	Results []CodeSearchResult `json:"results"`
}

// CodeSearchResult is one ranked document chunk.
type CodeSearchResult struct {
	Path     string  `json:"path"`
	Language string  `json:"language,omitempty"`
	Content  string  `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Score    float64 `json:"score"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project to report index status for"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo   `json:"project"`
	Stats      IndexStats    `json:"stats"`
	Embeddings EmbeddingInfo `json:"embeddings"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the code index.
type IndexStats struct {
	IndexedFiles    int    `json:"indexed_files"`
	LastIndexed     string `json:"last_indexed,omitempty"`
	VectorRatio     float64 `json:"vector_ratio"`
	OrphanedVectors int    `json:"orphaned_vectors"`
	LiveVectors     int    `json:"live_vectors"`
}

// EmbeddingInfo contains information about the active embedding model.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}
