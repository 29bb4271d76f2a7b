package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/pipeline"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document to ingest, - reads a PDF from stdin")
	dryRun := flag.Bool("dry-run", false, "Extract and chunk the document and print the chunks without storing them")
	query := flag.String("query", "", "Question to answer from the stored document")
	summary := flag.Bool("summary", false, "Print a summary of the stored document")
	clearStore := flag.Bool("clear", false, "Clear the vector store")
	stream := flag.Bool("stream", false, "Stream the answer while it is generated")
	export := flag.Bool("export", false, "Write an encrypted copy of the vector store (chromem backend)")
	importPath := flag.String("import", "", "Replace the vector store with an export file (chromem backend)")
	flag.Parse()

	if *filePath == "" && *query == "" && !*summary && !*clearStore && !*export && *importPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *dryRun {
		if *filePath == "" || *filePath == "-" {
			log.Fatal().Msg("-dry-run needs a document path in -file")
		}
		previewChunks(*filePath, cfg)
		return
	}

	controller, err := pipeline.New(ctx, cfg, pipeline.Deps{})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pipeline")
	}
	defer controller.Close()

	if *clearStore {
		if !controller.ClearStore(ctx) {
			log.Fatal().Msg("Error clearing vector store")
		}
	}

	if *importPath != "" {
		if err := controller.ImportStore(ctx, *importPath); err != nil {
			log.Fatal().Err(err).Msg("Error importing vector store")
		}
		log.Info().Str("file", *importPath).Msg("Vector store imported")
	}

	if *filePath != "" {
		ingest(ctx, controller, *filePath)
	}

	if *summary {
		log.Info().Msg("Summary: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", controller.GenerateSummary(ctx))
	}

	if *query != "" {
		answer(ctx, os.Stdout, controller, *query, *stream)
	}

	if *export {
		path, err := controller.ExportStore(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error exporting vector store")
		}
		log.Info().Str("file", path).Msg("Vector store exported")
	}
}

func ingest(ctx context.Context, controller *pipeline.Controller, path string) {
	var (
		ok  bool
		msg string
	)
	if path == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Error reading document from stdin")
		}
		ok, msg = controller.Process(ctx, content)
	} else {
		ok, msg = controller.ProcessFile(ctx, path)
	}
	if !ok {
		log.Fatal().Str("reason", msg).Msg("Error processing document")
	}
	log.Info().Str("file", path).Msg("Document stored")
}

// answer prints the question, the answer and the context it was drawn from.
// In stream mode the answer is written as it is generated; messages produced
// without generation are printed once the call returns.
func answer(ctx context.Context, out io.Writer, controller *pipeline.Controller, query string, stream bool) {
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(out, "%s\n\n", query)

	if !stream {
		response := controller.Ask(ctx, query)

		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", response.Source)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", response.Content)
		return
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	streamed := false
	response := controller.AskStream(ctx, query, func(_ context.Context, chunk []byte) error {
		streamed = true
		_, err := out.Write(chunk)
		return err
	})
	if !streamed {
		fmt.Fprint(out, response.Content)
	}
	fmt.Fprint(out, "\n\n")

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(out, "%s\n\n", response.Source)
}

// previewChunks prints the window chunks of a document without embedding
// anything.
func previewChunks(path string, cfg *config.Config) {
	pages, err := parser.ExtractPages(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	text := parser.Collect(pages, "")
	chunks := chunker.NewWindow(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap).Segment(text)

	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(chunks)
}
