// Command toolkit runs the PII anonymization demonstration suite.
//
// It serves the anonymizer web front-end (document upload, JSON API), the
// relationship-manager productivity dashboard and the summarization page on
// one port, and a token-protected management API (status, metrics, runtime
// pattern registration) on a second port.
//
// Detection combines ordered regex patterns with an optional NER model
// service; model responses are cached (in memory, or on disk via
// DETECTION_CACHE_PATH) and every run's audit trail is persisted to SQLite.
//
// Usage:
//
//	# Serve on the default ports
//	./toolkit
//
//	# Custom ports
//	WEB_PORT=9090 MANAGEMENT_PORT=9091 ./toolkit
//
//	# One-shot: anonymize a single file and print the audit report
//	./toolkit -file customer.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"pii-toolkit/internal/anonymize"
	"pii-toolkit/internal/auditstore"
	"pii-toolkit/internal/config"
	"pii-toolkit/internal/detect"
	"pii-toolkit/internal/document"
	"pii-toolkit/internal/logger"
	"pii-toolkit/internal/management"
	"pii-toolkit/internal/metrics"
	"pii-toolkit/internal/productivity"
	"pii-toolkit/internal/summarize"
	"pii-toolkit/internal/webui"
)

func main() {
	filePath := flag.String("file", "", "anonymize a single file and exit")
	flag.Parse()

	cfg := config.Load()
	met := metrics.New()

	registry := management.NewPatternRegistry(cfg.PatternFile)
	engine, cleanup, err := buildEngine(cfg, registry, met)
	if err != nil {
		log.Fatalf("[TOOLKIT] Fatal: %v", err)
	}
	defer cleanup()

	if *filePath != "" {
		if err := anonymizeFile(engine, *filePath); err != nil {
			log.Fatalf("[TOOLKIT] Fatal: %v", err)
		}
		return
	}

	printBanner(cfg)

	// An empty path disables run persistence.
	var audits *auditstore.Store
	if cfg.AuditDBPath != "" {
		audits, err = auditstore.Open(cfg.AuditDBPath, logger.New("audit", cfg.LogLevel))
		if err != nil {
			log.Fatalf("[AUDIT] Fatal: %v", err)
		}
		defer audits.Close() //nolint:errcheck
	}

	// Seeded so the dashboard is not empty on first visit.
	meetings := productivity.NewRepository()
	meetings.SeedDemo()

	summarizer := summarize.New(cfg.SummarizeEndpoint, cfg.SummarizeToken, cfg.SummarizeProjectKey)

	// Start management API in background.
	// Fatal is intentional: the toolkit should not run without its control plane.
	mgmt := management.New(cfg, registry, met)
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("[MANAGEMENT] Fatal: %v", err)
		}
	}()

	web := webui.NewServer(engine, audits, summarizer, meetings,
		logger.New("webui", cfg.LogLevel), cfg.MaxUploadBytes)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.WebPort)
	log.Printf("[TOOLKIT] Listening on %s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[TOOLKIT] Fatal: %v", err)
	}
}

// buildEngine assembles the detector stack: ordered regexes plus operator
// patterns, and the cached NER model client when model detection is enabled.
func buildEngine(cfg *config.Config, registry *management.PatternRegistry, met *metrics.Metrics) (*anonymize.Engine, func(), error) {
	regexDet := detect.NewRegexDetector()
	regexDet.SetExtra(registry.Compiled)

	cleanup := func() {}
	var model detect.Detector
	if cfg.UseModelDetection {
		cache, err := detect.NewCache(cfg.DetectionCachePath, cfg.DetectionCacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("open detection cache: %w", err)
		}
		cached := detect.NewCachedDetector(
			detect.NewModelClient(cfg.ModelEndpoint, cfg.ModelConfidence), cache, met)
		cleanup = func() { cached.Close() } //nolint:errcheck
		model = cached
	}

	engine := anonymize.New(regexDet, model, cfg.AllowRegexOnly,
		logger.New("engine", cfg.LogLevel), met)
	return engine, cleanup, nil
}

// anonymizeFile runs one document through the engine and prints the result
// with its audit report.
func anonymizeFile(engine *anonymize.Engine, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return err
	}

	format := document.DetectFormat(path, data)
	res, err := engine.Anonymize(context.Background(), data, format)
	if err != nil {
		return err
	}

	fmt.Printf("%s", res.Output)
	if report := anonymize.FormatReport(res.Audit); report != "" {
		fmt.Printf("\n%s", report)
	}
	if res.Degraded {
		fmt.Println("\n(model detection unavailable; regex findings only)")
	}
	return nil
}

func printBanner(cfg *config.Config) {
	model := cfg.ModelEndpoint
	if !cfg.UseModelDetection {
		model = "(disabled — regex patterns only)"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          PII Anonymization Toolkit  (Go)             ║
╚══════════════════════════════════════════════════════╝
  Web port        : %d
  Management port : %d
  NER endpoint    : %s
  Audit database  : %s

  Open the demo:
    http://localhost:%d/

  Check status:
    curl http://localhost:%d/status
`, cfg.WebPort, cfg.ManagementPort,
		model, cfg.AuditDBPath,
		cfg.WebPort,
		cfg.ManagementPort)
}
