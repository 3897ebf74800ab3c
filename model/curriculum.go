package model

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord marks a source record that is missing required fields.
var ErrInvalidRecord = errors.New("invalid syllabus record")

// DefaultDifficulty is used for topics without a difficulty tag.
const DefaultDifficulty = "medium"

// SubjectRecord is one subject of one grade as found in the syllabus corpus.
type SubjectRecord struct {
	Grade    int       `json:"grade"`
	Subject  string    `json:"subject"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter holds bilingual titles and the topics of a chapter.
type Chapter struct {
	ChapterNo int     `json:"chapter_no"`
	TitleEN   string  `json:"title_en"`
	TitleML   string  `json:"title_ml"`
	Topics    []Topic `json:"topics"`
}

// Topic is the unit that is expanded into at most one chunk per language.
type Topic struct {
	TitleEN    string   `json:"title_en"`
	TitleML    string   `json:"title_ml"`
	ContentEN  string   `json:"content_en"`
	ContentML  string   `json:"content_ml"`
	Keywords   []string `json:"keywords"`
	KeywordsEN []string `json:"keywords_en,omitempty"`
	KeywordsML []string `json:"keywords_ml,omitempty"`
	Difficulty string   `json:"difficulty"`
}

// Validate checks the fields every record must carry.
func (r *SubjectRecord) Validate() error {
	if r.Grade < 1 || r.Grade > 12 {
		return fmt.Errorf("%w: grade %d outside 1..12", ErrInvalidRecord, r.Grade)
	}
	if r.Subject == "" {
		return fmt.Errorf("%w: subject is missing", ErrInvalidRecord)
	}
	return nil
}

// ChapterTitle returns the chapter title for the language, Malayalam falling back to English.
func (c *Chapter) ChapterTitle(lang Language) string {
	if lang == LanguageMalayalam && c.TitleML != "" {
		return c.TitleML
	}
	return c.TitleEN
}

// Title returns the topic title for the language.
func (t *Topic) Title(lang Language) string {
	if lang == LanguageMalayalam {
		return t.TitleML
	}
	return t.TitleEN
}

// Content returns the untrimmed body for the language.
func (t *Topic) Content(lang Language) string {
	if lang == LanguageMalayalam {
		return t.ContentML
	}
	return t.ContentEN
}

// KeywordList returns the language specific keyword list if present, else the shared one.
func (t *Topic) KeywordList(lang Language) []string {
	switch {
	case lang == LanguageMalayalam && len(t.KeywordsML) > 0:
		return t.KeywordsML
	case lang == LanguageEnglish && len(t.KeywordsEN) > 0:
		return t.KeywordsEN
	}
	return t.Keywords
}

// DifficultyOrDefault returns the difficulty tag or DefaultDifficulty.
func (t *Topic) DifficultyOrDefault() string {
	if t.Difficulty == "" {
		return DefaultDifficulty
	}
	return t.Difficulty
}
