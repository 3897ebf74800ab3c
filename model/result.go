package model

// RetrievalResult is one ranked hit of an index query
type RetrievalResult struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"` // 1 - cosine distance, rounded to 4 decimals
}

// RetrievalResponse is the rendered answer to one student query
type RetrievalResponse struct {
	Context     string          `json:"context"`
	Sources     []ChunkMetadata `json:"sources"`
	Scores      []float64       `json:"scores"`
	ChunksFound int             `json:"chunks_found"`
	Query       string          `json:"query"`
	Grade       int             `json:"grade"`
}

// IngestReport summarizes a bulk ingestion run
type IngestReport struct {
	ChunksIngested int    `json:"chunks_ingested"`
	FilesProcessed int    `json:"files_processed"`
	Message        string `json:"message"`
}

const (
	StatusReady = "ready"
	StatusEmpty = "empty"
)

// Status describes the index and its durable configuration
type Status struct {
	TotalChunks    int    `json:"total_chunks"`
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	EmbeddingModel string `json:"embedding_model"`
	CollectionName string `json:"collection_name"`
	IndexPath      string `json:"index_path"`
}
