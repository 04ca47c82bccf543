package models

import "time"

// SearchResult is a single ranked hit joined with its entry content.
type SearchResult struct {
	ID        string  `json:"kb_id"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Category  string  `json:"category,omitempty"`
	Source    string  `json:"source"`
	SourceURL string  `json:"source_url,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	// Mode is the embedding mode ("primary" or "fallback") used for the query.
	Mode string `json:"mode,omitempty"`
}

// Grounding is the retrieval context handed to the answer generator.
type Grounding struct {
	Query      string          `json:"query"`
	Results    []*SearchResult `json:"results"`
	Confidence float64         `json:"confidence"`
}

// SearchLog records one logged search for a chat session.
type SearchLog struct {
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	Limit      int       `json:"limit"`
	Threshold  float64   `json:"threshold"`
	ResultIDs  []string  `json:"result_ids"`
	Scores     []float64 `json:"scores"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoreStats summarizes the knowledge store.
type StoreStats struct {
	Active     int64            `json:"active"`
	Inactive   int64            `json:"inactive"`
	ByCategory map[string]int64 `json:"by_category"`
	BySource   map[string]int64 `json:"by_source"`
}

// IndexStats summarizes the live vector index.
type IndexStats struct {
	Status     string `json:"status"`
	Size       int    `json:"size"`
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model"`
	Backend    string `json:"backend"`
	Tombstones int    `json:"tombstones"`
}

// Stats is the combined knowledge base status.
type Stats struct {
	Store         StoreStats `json:"store"`
	Index         IndexStats `json:"index"`
	EmbeddingMode string     `json:"embedding_mode"`
	Model         string     `json:"embedding_model"`
	Dimensions    int        `json:"embedding_dimensions"`
}
