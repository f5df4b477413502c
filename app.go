package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/combilab/stagealign/coreg"
)

// AppOptions carries the CLI flag values into the App
type AppOptions struct {
	ConfigFile   string
	DataDir      string
	ResultsCache string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// App encapsulates the application state and dependencies
type App struct {
	Config     *coreg.Config
	Tracker    *coreg.EntryTracker
	MQTTClient *coreg.MQTTClient
	Publisher  *coreg.Publisher

	ConfigFile   string
	DataDir      string
	ResultsCache string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.ResultsCache = opts.ResultsCache
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig loads the configuration file, resolving it relative to the data
// directory when the default name is used, and initializes the tracker with
// the results cache.
func (a *App) loadConfig() error {
	resolvedConfig := a.ConfigFile
	if a.DataDir != "." && resolvedConfig == "config.yaml" {
		resolvedConfig = filepath.Join(a.DataDir, "config.yaml")
	}

	config, err := coreg.LoadConfig(resolvedConfig)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", resolvedConfig, err)
	}
	a.Config = config
	log.Printf("Loaded config from %s", resolvedConfig)

	cachePath := a.ResultsCache
	if cachePath == "" {
		cachePath = config.ResultsCache
	}
	if a.DataDir != "." && !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(a.DataDir, cachePath)
	}
	a.Tracker = coreg.NewEntryTrackerWithCache(cachePath)

	return nil
}

// processBatch runs the pipeline for one batch and stores the reconciled
// results. Returns the merge report for logging.
func (a *App) processBatch(batch *coreg.RowBatch) (coreg.MergeReport, error) {
	entry := a.Config.GetEntryByID(batch.Entry)
	if entry == nil {
		return coreg.MergeReport{}, fmt.Errorf("no entry %q in config", batch.Entry)
	}
	if batch.Unit == "" {
		batch.Unit = entry.Unit
	}

	alignment := a.Tracker.GetAlignment(entry.ID)
	if alignment == nil {
		var err error
		alignment, err = coreg.AlignmentForEntry(entry)
		if err != nil {
			// Geometry problems abort this entry only.
			log.Printf("Warning: %v; proceeding without relative coordinates", err)
		} else if alignment != nil {
			a.Tracker.SetAlignment(entry.ID, alignment)
		}
	}

	merger := coreg.MergerForEntry(entry)

	report, err := a.Tracker.Reconcile(entry.ID, func(old []*coreg.PositionedResult) ([]*coreg.PositionedResult, coreg.MergeReport, error) {
		return coreg.ProcessBatch(alignment, merger, old, batch)
	})
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	return report, nil
}

// RunProcess finds and reconciles all row batch exports in the data directory
func (a *App) RunProcess() {
	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pattern := filepath.Join(a.DataDir, "rows-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Fatalf("Error finding row batch files: %v", err)
	}

	if len(files) == 0 {
		files, _ = filepath.Glob("rows-*.json")
	}

	if len(files) == 0 {
		log.Fatal("No rows-*.json files found")
	}

	fmt.Printf("Found %d row batch export(s)\n\n", len(files))

	for _, file := range files {
		batch, err := coreg.ParseRowBatchFile(file)
		if err != nil {
			fmt.Printf("ERROR: %s: %v\n", file, err)
			continue
		}

		report, err := a.processBatch(batch)
		if err != nil {
			fmt.Printf("ERROR: %s: %v\n", file, err)
			continue
		}

		fmt.Printf("=== %s ===\n", batch.Entry)
		fmt.Printf("File: %s\n", file)
		fmt.Printf("Rows: %d, created: %d, updated: %d, skipped: %d\n\n",
			len(batch.Rows), report.Created, report.Updated, len(report.Skipped))
	}
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() {
	fmt.Println("Starting stagealign service...")

	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if a.MqttMode {
		batchHandler := func(entryID string, batch *coreg.RowBatch, err error) {
			if err != nil {
				log.Printf("Error receiving row batch for %s: %v", entryID, err)
				return
			}
			if batch.Entry == "" {
				batch.Entry = entryID
			}

			report, err := a.processBatch(batch)
			if err != nil {
				log.Printf("Error processing batch for %s: %v", entryID, err)
				return
			}

			if a.Publisher != nil {
				results := a.Tracker.GetResults(batch.Entry)
				if err := a.Publisher.PublishResults(batch.Entry, results, report); err != nil {
					log.Printf("Error publishing results for %s: %v", batch.Entry, err)
				}
			}
		}

		mqttClient, err := coreg.InitMQTT(a.Config, batchHandler)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient

		a.Publisher = coreg.NewPublisher(mqttClient.GetClient())
		if os.Getenv("MQTT_PUBLISH_PREFIX") == "" {
			a.Publisher.SetPrefix(a.Config.MQTT.PublishPrefix)
		}
		fmt.Println("MQTT results publisher initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.Tracker, a.Config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, ec := range a.Config.Entries {
			if ec.Topic != "" {
				fmt.Printf("    - %s (%s)\n", ec.Topic, ec.ID)
			}
		}
		publishPrefix := os.Getenv("MQTT_PUBLISH_PREFIX")
		if publishPrefix == "" {
			publishPrefix = a.Config.MQTT.PublishPrefix
		}
		if publishPrefix == "" {
			publishPrefix = "stagealign"
		}
		fmt.Printf("  Publishing to: %s/{entryID}/results\n", publishPrefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET /health            - Health check")
		fmt.Println("  GET /entries           - Entry IDs with reconciled results")
		fmt.Println("  GET /results?entry=ID  - Reconciled results for an entry")
		fmt.Println("  GET /alignment?entry=ID - Alignment transform for an entry")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
