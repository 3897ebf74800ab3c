package model

import (
	"time"

	"github.com/google/uuid"
)

// Language tags a chunk or a query.
type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageMalayalam Language = "ml"
	LanguageManglish  Language = "mng"
	LanguageAuto      Language = "auto"
)

// Valid reports whether l is one of the known language tags.
func (l Language) Valid() bool {
	switch l {
	case LanguageEnglish, LanguageMalayalam, LanguageManglish, LanguageAuto:
		return true
	}
	return false
}

// Chunk is one retrievable passage of curriculum text in exactly one language.
type Chunk struct {
	ID        uuid.UUID     `json:"id"`
	Text      string        `json:"text"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
	// Results
	Distance float64 `json:"distance,omitempty"`
}

// ChunkMetadata is the structured metadata stored next to every chunk.
type ChunkMetadata struct {
	Grade        int      `json:"grade"`
	Subject      string   `json:"subject"`
	ChapterNo    int      `json:"chapter_no"`
	ChapterTitle string   `json:"chapter_title"`
	Topic        string   `json:"topic"`
	Language     Language `json:"language"`
	Difficulty   string   `json:"difficulty"`
	Keywords     string   `json:"keywords"`
}
