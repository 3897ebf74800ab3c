package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/siherrmann/syllabus"
	"github.com/siherrmann/syllabus/database"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

const usage = `Usage: syllabus [-verbose] [-metrics] <command> [options]

Commands:
  status                          show chunk count and index configuration
  ingest                          ingest the syllabus directory if the index is empty
  reingest                        clear the index and ingest the syllabus directory
  clear                           delete every chunk of the index
  index -type hnsw|ivfflat [-m M] [-ef-construction EF] [-lists L]
                                  rebuild the pgvector index (postgres backend)
  query -grade N [-lang L] [-top-k K] <text>
                                  retrieve syllabus context for a student query

Configuration is read from the environment and an optional .env file.
`

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable debug logging")
	metrics := flag.Bool("metrics", false, "write index metrics to stderr after the command")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := helper.NewPrettyLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var metricsOut io.Writer
	if *metrics {
		metricsOut = os.Stderr
	}

	if err := run(ctx, args[0], args[1:], logger, metricsOut); err != nil {
		logger.Error("Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

var commands = []string{"status", "ingest", "reingest", "clear", "index", "query"}

func run(ctx context.Context, command string, args []string, logger *slog.Logger, metricsOut io.Writer) error {
	if !slices.Contains(commands, command) {
		return fmt.Errorf("unknown command %q", command)
	}

	config, err := model.NewConfigurationFromEnv()
	if err != nil {
		return err
	}

	var queryArgs *queryOptions
	var indexArgs *database.VectorIndexOptions
	switch command {
	case "query":
		queryArgs, err = parseQuery(args, config.Retrieval.TopK)
	case "index":
		indexArgs, err = parseIndex(args)
	}
	if err != nil {
		return err
	}

	s, err := syllabus.Open(ctx, *config, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if metricsOut != nil {
		defer writeMetrics(metricsOut, s.Metrics, logger)
	}

	switch command {
	case "status":
		status, err := s.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)
	case "ingest":
		report, err := s.EnsureIngested(ctx)
		if err != nil {
			return err
		}
		if report == nil {
			return printJSON(map[string]string{"message": "Vector store already holds chunks, use reingest to rebuild it."})
		}
		return printJSON(report)
	case "reingest":
		report, err := s.Reingest(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	case "clear":
		if err := s.Clear(ctx); err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"message": "Vector store cleared", "chunks": 0})
	case "index":
		if err := s.TuneVectorIndex(ctx, *indexArgs); err != nil {
			return err
		}
		return printJSON(map[string]string{"message": "Vector index rebuilt", "type": indexArgs.Type})
	case "query":
		response, err := s.Retrieve(ctx, queryArgs.text, queryArgs.grade, queryArgs.language, queryArgs.topK)
		if err != nil {
			return err
		}
		return printJSON(response)
	}

	return fmt.Errorf("unknown command %q", command)
}

type queryOptions struct {
	text     string
	grade    int
	language model.Language
	topK     int
}

func parseQuery(args []string, defaultTopK int) (*queryOptions, error) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	grade := fs.Int("grade", 0, "student grade (1-12)")
	lang := fs.String("lang", string(model.LanguageEnglish), "query language: en, ml, mng or auto")
	topK := fs.Int("top-k", defaultTopK, "number of chunks to return (1-10)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	options := &queryOptions{
		text:     strings.TrimSpace(strings.Join(fs.Args(), " ")),
		grade:    *grade,
		language: model.Language(*lang),
		topK:     *topK,
	}

	switch {
	case options.text == "":
		return nil, fmt.Errorf("query text is empty")
	case options.grade < 1 || options.grade > 12:
		return nil, fmt.Errorf("grade must be between 1 and 12, got %d", options.grade)
	case !options.language.Valid():
		return nil, fmt.Errorf("unknown language %q", *lang)
	case options.topK < 1 || options.topK > 10:
		return nil, fmt.Errorf("top-k must be between 1 and 10, got %d", options.topK)
	}

	return options, nil
}

func parseIndex(args []string) (*database.VectorIndexOptions, error) {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	indexType := fs.String("type", database.VectorIndexHNSW, "index type: hnsw or ivfflat")
	m := fs.Int("m", 0, "hnsw: max connections per layer")
	efConstruction := fs.Int("ef-construction", 0, "hnsw: candidate list size while building")
	lists := fs.Int("lists", 0, "ivfflat: number of inverted lists")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	switch *indexType {
	case database.VectorIndexHNSW:
		if *lists != 0 {
			return nil, fmt.Errorf("-lists only applies to ivfflat")
		}
	case database.VectorIndexIVFFlat:
		if *m != 0 || *efConstruction != 0 {
			return nil, fmt.Errorf("-m and -ef-construction only apply to hnsw")
		}
	default:
		return nil, fmt.Errorf("unknown index type %q", *indexType)
	}

	return &database.VectorIndexOptions{
		Type:           *indexType,
		M:              *m,
		EfConstruction: *efConstruction,
		Lists:          *lists,
	}, nil
}

func writeMetrics(out io.Writer, gatherer prometheus.Gatherer, logger *slog.Logger) {
	families, err := gatherer.Gather()
	if err != nil {
		logger.Error("Gathering metrics failed", "error", err)
		return
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
			logger.Error("Writing metrics failed", "error", err)
			return
		}
	}
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}
