package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

// DocumentWriter is the write side of the index.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, chunks []*model.Chunk) (int, error)
}

// Ingestor reads subject records from a directory of *.json files and writes their chunks.
type Ingestor struct {
	writer   DocumentWriter
	dataPath string
	logger   *slog.Logger
}

// NewIngestor creates an ingestor writing into writer.
func NewIngestor(writer DocumentWriter, dataPath string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		writer:   writer,
		dataPath: dataPath,
		logger:   logger,
	}
}

// DataPath returns the directory the ingestor reads from.
func (i *Ingestor) DataPath() string {
	return i.dataPath
}

// ParseSubjectRecord decodes and validates one subject record.
func ParseSubjectRecord(data []byte) (*model.SubjectRecord, error) {
	record := &model.SubjectRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, helper.NewError("decode record", fmt.Errorf("%w: %v", model.ErrInvalidRecord, err))
	}
	if err := record.Validate(); err != nil {
		return nil, helper.NewError("validate record", err)
	}
	return record, nil
}

// IngestRecord writes the chunks of one record and returns how many were written.
// A record without any non-empty content writes nothing. On a write error the count
// holds the chunks stored before the failure.
func (i *Ingestor) IngestRecord(ctx context.Context, record *model.SubjectRecord) (int, error) {
	if err := record.Validate(); err != nil {
		return 0, helper.NewError("validate record", err)
	}

	chunks := BuildChunks(record)
	if len(chunks) == 0 {
		return 0, nil
	}

	n, err := i.writer.AddDocuments(ctx, chunks)
	if err != nil {
		return n, helper.NewError("add documents", err)
	}
	return n, nil
}

// IngestFile reads, parses and writes one record file.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, helper.NewError("read file", err)
	}

	record, err := ParseSubjectRecord(data)
	if err != nil {
		return 0, helper.NewError(filepath.Base(path), err)
	}

	n, err := i.IngestRecord(ctx, record)
	if err != nil {
		return n, helper.NewError(filepath.Base(path), err)
	}
	return n, nil
}

// IngestAll ingests every *.json file of the data directory in lexicographic order.
// A failing file is logged and skipped, chunks it stored before failing still count.
// It returns the total chunk count and the number of files processed without error.
// Only a canceled context aborts the run.
func (i *Ingestor) IngestAll(ctx context.Context) (int, int, error) {
	files, err := filepath.Glob(filepath.Join(i.dataPath, "*.json"))
	if err != nil {
		return 0, 0, helper.NewError("glob", err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		i.logger.Warn("No syllabus JSON files found", "path", i.dataPath)
		return 0, 0, nil
	}

	total, processed := 0, 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return total, processed, helper.NewError("ingest all", err)
		}

		n, err := i.IngestFile(ctx, file)
		if err != nil {
			total += n
			i.logger.Error("Failed to ingest syllabus file", "file", filepath.Base(file), "chunks", n, "error", err)
			continue
		}

		total += n
		processed++
		i.logger.Info("Ingested syllabus file", "file", filepath.Base(file), "chunks", n)
	}

	i.logger.Info("Ingestion complete", "chunks", total, "files", processed)

	return total, processed, nil
}
