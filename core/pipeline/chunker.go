package pipeline

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/syllabus/model"
)

type chunkLabels struct {
	grade    string
	subject  string
	chapter  string
	topic    string
	keywords string
}

var labels = map[model.Language]chunkLabels{
	model.LanguageEnglish: {
		grade:    "Grade",
		subject:  "Subject",
		chapter:  "Chapter",
		topic:    "Topic",
		keywords: "Keywords",
	},
	model.LanguageMalayalam: {
		grade:    "ക്ലാസ്",
		subject:  "വിഷയം",
		chapter:  "അധ്യായം",
		topic:    "വിഷയം",
		keywords: "കീവേഡുകൾ",
	},
}

// ChunkLanguages are the languages every topic is expanded into, in output order.
var ChunkLanguages = []model.Language{model.LanguageEnglish, model.LanguageMalayalam}

// FormatChunkText renders the passage of one topic in one language:
//
//	Grade: 7 | Subject: Science
//	Chapter: Heat
//	Topic: Conduction of Heat
//
//	<trimmed content>
//
//	Keywords: heat, conduction
//
// The keyword block is omitted when the topic has no keywords.
func FormatChunkText(lang model.Language, grade int, subject string, chapter *model.Chapter, topic *model.Topic) string {
	l, ok := labels[lang]
	if !ok {
		l = labels[model.LanguageEnglish]
	}

	var b strings.Builder
	b.WriteString(l.grade + ": " + strconv.Itoa(grade) + " | " + l.subject + ": " + subject + "\n")
	b.WriteString(l.chapter + ": " + chapter.ChapterTitle(lang) + "\n")
	b.WriteString(l.topic + ": " + topic.Title(lang) + "\n")
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(topic.Content(lang)))

	if keywords := topic.KeywordList(lang); len(keywords) > 0 {
		b.WriteString("\n\n" + l.keywords + ": " + strings.Join(keywords, ", "))
	}

	return b.String()
}

// BuildChunks expands every topic of the record into one chunk per language
// whose trimmed content is not empty. Every chunk gets a fresh random id.
func BuildChunks(record *model.SubjectRecord) []*model.Chunk {
	chunks := []*model.Chunk{}

	for c := range record.Chapters {
		chapter := &record.Chapters[c]
		for t := range chapter.Topics {
			topic := &chapter.Topics[t]
			for _, lang := range ChunkLanguages {
				if strings.TrimSpace(topic.Content(lang)) == "" {
					continue
				}
				chunks = append(chunks, &model.Chunk{
					ID:       uuid.New(),
					Text:     FormatChunkText(lang, record.Grade, record.Subject, chapter, topic),
					Metadata: chunkMetadata(lang, record, chapter, topic),
				})
			}
		}
	}

	return chunks
}

func chunkMetadata(lang model.Language, record *model.SubjectRecord, chapter *model.Chapter, topic *model.Topic) model.ChunkMetadata {
	title := topic.Title(lang)
	if title == "" {
		title = topic.TitleEN
	}

	return model.ChunkMetadata{
		Grade:        record.Grade,
		Subject:      record.Subject,
		ChapterNo:    chapter.ChapterNo,
		ChapterTitle: chapter.TitleEN,
		Topic:        title,
		Language:     lang,
		Difficulty:   topic.DifficultyOrDefault(),
		Keywords:     strings.Join(topic.KeywordList(lang), ", "),
	}
}
