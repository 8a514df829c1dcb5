package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/signalsift/signalsift/internal/app"
	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/metrics"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: signalsift [-config path] <command>

Commands:
  scan       fetch sources, dedupe and score against the keyword set
  report     render a markdown report for the latest run, with trends
  keywords   list|add|remove topic keywords
  sources    list configured sources
  status     show store totals and backend health
`)
}

func main() {
	// Missing .env is fine, env vars may come from the environment.
	_ = godotenv.Load()
	logger.Init()

	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "scan":
		err = app.Scan(ctx, *cfgPath, os.Stdout)
	case "report":
		err = app.Report(ctx, *cfgPath, os.Stdout)
	case "keywords":
		err = app.Keywords(*cfgPath, flag.Args()[1:], os.Stdout)
	case "sources":
		err = app.Sources(*cfgPath, os.Stdout)
	case "status":
		err = app.Status(ctx, *cfgPath, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func startMonitoringServer() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	logger.Info("monitoring server listening", "port", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error("monitoring server", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	m := metrics.Get()
	status := "ok"
	if !m.Healthy() {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	stats := m.GetStats()
	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Get().GetStats())
}
