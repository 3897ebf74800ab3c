package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectRecordValidate(t *testing.T) {
	t.Run("Valid record", func(t *testing.T) {
		record := SubjectRecord{Grade: 7, Subject: "Science"}

		assert.NoError(t, record.Validate())
	})

	t.Run("Missing grade", func(t *testing.T) {
		record := SubjectRecord{Subject: "Science"}

		err := record.Validate()

		assert.True(t, errors.Is(err, ErrInvalidRecord))
		assert.Contains(t, err.Error(), "grade")
	})

	t.Run("Grade above 12", func(t *testing.T) {
		record := SubjectRecord{Grade: 13, Subject: "Science"}

		assert.Error(t, record.Validate())
	})

	t.Run("Missing subject", func(t *testing.T) {
		record := SubjectRecord{Grade: 7}

		err := record.Validate()

		assert.True(t, errors.Is(err, ErrInvalidRecord))
		assert.Contains(t, err.Error(), "subject")
	})
}

func TestTopicLanguageFields(t *testing.T) {
	topic := Topic{
		TitleEN:    "Conduction of Heat",
		TitleML:    "താപചാലനം",
		ContentEN:  "Heat flows from hot to cold.",
		ContentML:  "ചൂട് ഒഴുകുന്നു.",
		Keywords:   []string{"heat", "conduction"},
		KeywordsML: []string{"താപം"},
	}

	t.Run("Title and content per language", func(t *testing.T) {
		assert.Equal(t, "Conduction of Heat", topic.Title(LanguageEnglish))
		assert.Equal(t, "താപചാലനം", topic.Title(LanguageMalayalam))
		assert.Equal(t, "ചൂട് ഒഴുകുന്നു.", topic.Content(LanguageMalayalam))
	})

	t.Run("Language specific keywords override shared list", func(t *testing.T) {
		assert.Equal(t, []string{"heat", "conduction"}, topic.KeywordList(LanguageEnglish))
		assert.Equal(t, []string{"താപം"}, topic.KeywordList(LanguageMalayalam))
	})

	t.Run("Difficulty defaults to medium", func(t *testing.T) {
		assert.Equal(t, "medium", topic.DifficultyOrDefault())
	})

	t.Run("Malayalam chapter title falls back to English", func(t *testing.T) {
		chapter := Chapter{TitleEN: "Heat"}

		assert.Equal(t, "Heat", chapter.ChapterTitle(LanguageMalayalam))
	})
}
