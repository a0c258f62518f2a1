package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/export"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/history"
	"pdf-rag/internal/indexer"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/search"
	"pdf-rag/internal/server"
	"pdf-rag/internal/summarizer"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the PDF file to index")
	query := flag.String("query", "", "Question to be answered")
	dryRun := flag.Bool("dry-run", false, "Dry run, print the extracted chunks without indexing")
	tablesOut := flag.String("tables-out", "", "Write the extracted tables of -file to this xlsx file")
	chat := flag.Bool("chat", false, "Start an interactive question session")
	serve := flag.Bool("serve", false, "Start the web UI")
	addr := flag.String("addr", "", "Address for -serve, overrides server.addr")
	skipDuplicates := flag.Bool("skip-duplicates", true, "Skip files whose name is already indexed")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, using debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	switch {
	case *filePath != "" && (*dryRun || *tablesOut != ""):
		extractOnly(ctx, cfg, *filePath, *dryRun, *tablesOut)
	case *filePath != "":
		storeFile(ctx, cfg, *filePath, *skipDuplicates)
	case *query != "":
		performRAG(ctx, cfg, *query)
	case *chat:
		chatSession(ctx, cfg)
	case *serve:
		if *addr != "" {
			cfg.Server.Addr = *addr
		}
		startServer(ctx, cfg, *skipDuplicates)
	default:
		log.Fatal().Msg("Please provide a document file using the -file flag, a query using the -query flag, -chat or -serve")
	}
}

type app struct {
	indexer *indexer.Indexer
	rag     *rag.RAG
	close   func()
}

// newApp wires the collaborators for the configured backends.
func newApp(cfg *config.Config, skipDuplicates bool) *app {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	client, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM")
	}

	index, closeIndex, err := newIndex(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing search index")
	}

	ix := indexer.New(
		index,
		summarizer.New(client, cfg.Summarizer),
		parser.NewPDFExtractor(cfg.Layout),
		cfg.Search.IndexName,
		indexer.WithBatchSize(cfg.RAG.BatchSize),
		indexer.WithDuplicateCheck(skipDuplicates),
	)

	return &app{
		indexer: ix,
		rag:     rag.NewRAG(index, client, cfg.RAG),
		close:   closeIndex,
	}
}

func newIndex(cfg *config.Config) (search.Index, func(), error) {
	switch cfg.Search.Backend {
	case config.BackendChromem:
		embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
		if err != nil {
			return nil, nil, err
		}
		if err := helper.CreateFolder(cfg.Search.DBPath); err != nil {
			return nil, nil, err
		}
		vdb, err := chromemdb.NewVectorDBManager(&cfg.Search, embedding.EmbeddingFunc(embedder))
		if err != nil {
			return nil, nil, err
		}
		if !cfg.Search.InMemory || cfg.Search.EncryptionKey == "" {
			return vdb, func() {}, nil
		}
		if err := vdb.Import(); err != nil {
			return nil, nil, err
		}
		return vdb, func() {
			if err := vdb.Export(); err != nil {
				log.Error().Err(err).Msg("Error exporting collection")
			}
		}, nil

	case config.BackendPostgres:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		return db.NewStore(bunDB), func() { _ = bunDB.Close() }, nil

	default:
		return search.NewAzureClient(&cfg.Search), func() {}, nil
	}
}

func extractOnly(ctx context.Context, cfg *config.Config, filePath string, dryRun bool, tablesOut string) {
	chunks, err := parser.NewPDFExtractor(cfg.Layout).ExtractPDFContent(ctx, filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}

	if dryRun {
		log.Info().Int("chunks", len(chunks)).Msg("Parsed content")
		helper.PrettyPrint(chunks)
	}
	if tablesOut != "" {
		if _, err := export.TablesToXLSX(chunks, tablesOut); err != nil {
			log.Fatal().Err(err).Msg("Error exporting tables")
		}
	}
}

func storeFile(ctx context.Context, cfg *config.Config, filePath string, skipDuplicates bool) {
	a := newApp(cfg, skipDuplicates)
	defer a.close()

	report, err := a.indexer.Process(ctx, filePath)
	if errors.Is(err, indexer.ErrDuplicate) {
		log.Info().Str("file", report.FileName).Msg("File already exists in the index. Skipping upload.")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error processing document")
	}

	log.Info().
		Str("file", report.FileName).
		Int("documents", report.Total).
		Int("failed", len(report.Failed)).
		Int("without_summary", len(report.SummaryFailures)).
		Msg("Ready for user query")
}

func performRAG(ctx context.Context, cfg *config.Config, query string) {
	a := newApp(cfg, true)
	defer a.close()

	printAnswer(a.rag.Query(ctx, query))
}

func printAnswer(answer models.Answer) {
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.SourceInfo())

	if answer.Failed() {
		log.Error().Err(answer.Err).Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	} else {
		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	}
	fmt.Printf("%s\n\n", answer.Content)
}

func chatSession(ctx context.Context, cfg *config.Config) {
	a := newApp(cfg, true)
	defer a.close()

	store := history.NewStore()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Ask a question, 'history' to list the conversation, 'exit' to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case "history":
			for _, e := range store.Entries() {
				fmt.Printf("Q: %s\nA: %s\nSource: %s\n\n", e.Question, e.Answer, e.Source)
			}
			continue
		}

		answer := a.rag.Query(ctx, line)
		store.Append(history.EntryFromAnswer(answer))
		printAnswer(answer)
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}

func startServer(ctx context.Context, cfg *config.Config, skipDuplicates bool) {
	a := newApp(cfg, skipDuplicates)
	defer a.close()

	if err := helper.CreateFolder(cfg.UploadsDir); err != nil {
		log.Fatal().Err(err).Msg("Error creating folder")
	}

	srv := server.New(a.indexer, a.rag, cfg.UploadsDir, cfg.Server)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Error running server")
	}
}
