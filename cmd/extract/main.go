// Command extract prints the candidate fields recognized in a PDF, so keyword
// data can be tuned without running the server.
//
//	go run ./cmd/extract [-keywords recognizer.yaml] processo.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"meu_perito_go/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	keywords := flag.String("keywords", os.Getenv("RECOGNIZER_KEYWORDS_PATH"), "recognizer keyword YAML file")
	timeout := flag.Duration("timeout", 30*time.Second, "extraction timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: extract [-keywords file.yaml] <document.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	document, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("cannot read document")
	}

	cfg, err := services.LoadRecognizerConfig(*keywords)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid keyword file")
	}
	recognizer, err := services.NewRecognizer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid keyword data")
	}

	kv := services.NewMemoryKV()
	locations := services.NewLocationRegistry(kv)
	svc, err := services.NewDocketService(services.DocketServiceDeps{
		Store:      services.NewDocketStore(kv, locations, logger),
		Locations:  locations,
		Extractor:  services.NewPDFTextExtractor(logger),
		Recognizer: recognizer,
		Authorizer: services.AllowAll{},
		Logger:     logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cannot build docket service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := svc.ValidateUpload(path, document); err != nil {
		log.Fatal().Err(err).Msg("document rejected")
	}
	fields, err := svc.ExtractCandidateFields(ctx, document)
	if err != nil {
		log.Fatal().Err(err).Str("code", services.ErrorCode(err)).Msg("extraction failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fields); err != nil {
		log.Fatal().Err(err).Msg("cannot encode result")
	}
}
