package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/siherrmann/syllabus"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

const sampleRecord = `{
  "grade": 7,
  "subject": "Science",
  "chapters": [
    {
      "chapter_no": 1,
      "title_en": "Heat",
      "title_ml": "താപം",
      "topics": [
        {
          "title_en": "Conduction of Heat",
          "title_ml": "താപചാലനം",
          "content_en": "Heat is transferred through a substance from a region of higher temperature to a region of lower temperature. Metals are good conductors of heat.",
          "content_ml": "ഒരു പദാർത്ഥത്തിലൂടെ ഉയർന്ന താപനിലയുള്ള ഭാഗത്തു നിന്ന് താഴ്ന്ന താപനിലയുള്ള ഭാഗത്തേക്ക് താപം പ്രസരിക്കുന്നതാണ് താപചാലനം.",
          "keywords": ["heat", "conduction", "temperature"],
          "difficulty": "easy"
        },
        {
          "title_en": "Convection",
          "title_ml": "സംവഹനം",
          "content_en": "In liquids and gases heat is carried by the movement of the heated particles themselves.",
          "keywords": ["convection", "fluids"]
        }
      ]
    }
  ]
}`

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	for key, value := range map[string]string{
		"DB_HOST":     "localhost",
		"DB_PORT":     dbPort,
		"DB_DATABASE": "database",
		"DB_USERNAME": "user",
		"DB_PASSWORD": "password",
	} {
		os.Setenv(key, value)
	}

	// Write the sample syllabus record
	dataDir, err := os.MkdirTemp("", "syllabus-data")
	if err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	defer os.RemoveAll(dataDir)
	if err := os.WriteFile(filepath.Join(dataDir, "grade7_science.json"), []byte(sampleRecord), 0600); err != nil {
		log.Fatalf("Failed to write sample record: %v", err)
	}

	config := model.DefaultConfiguration()
	config.Index.Backend = model.BackendPostgres
	config.SyllabusDataPath = dataDir

	s, err := syllabus.Open(ctx, config, helper.NewPrettyLogger(os.Stdout, slog.LevelInfo))
	if err != nil {
		log.Fatalf("Failed to open syllabus index: %v", err)
	}
	defer s.Close()

	fmt.Println("Ingesting syllabus...")
	report, err := s.Reingest(ctx)
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Println(report.Message)

	for _, query := range []struct {
		text  string
		grade int
		lang  model.Language
	}{
		{"What is conduction of heat?", 7, model.LanguageEnglish},
		{"താപചാലനം എന്നാൽ എന്ത്?", 7, model.LanguageMalayalam},
		{"how does heat move in water", 8, model.LanguageEnglish},
	} {
		response, err := s.Retrieve(ctx, query.text, query.grade, query.lang, 3)
		if err != nil {
			log.Fatalf("Failed to retrieve: %v", err)
		}

		fmt.Printf("\nQuery (class %d, %s): %s\n", query.grade, query.lang, query.text)
		fmt.Printf("Found %d chunks\n\n%s\n", response.ChunksFound, response.Context)
	}

	status, err := s.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to get status: %v", err)
	}
	fmt.Printf("\nIndex %s holds %d chunks (%s)\n", status.CollectionName, status.TotalChunks, status.Status)

	fmt.Println("\nBasic example completed successfully!")
}
