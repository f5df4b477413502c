package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// appRunner abstracts the App so flag dispatch can be tested without
// touching the filesystem or the network.
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunProcess()
	RunService()
}

func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("stagealign", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file")
	dataDir := fs.String("data-dir", ".", "Directory containing row batch exports")
	processOnly := fs.Bool("process", false, "Reconcile row batch files and exit (batch mode)")
	resultsCache := fs.String("results-cache", "", "Path to results cache file (default from config)")
	mqttMode := fs.Bool("mqtt", false, "Run MQTT service mode for live row ingestion")
	httpMode := fs.Bool("http", false, "Enable HTTP server for status and results")
	httpPort := fs.Int("http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "stagealign version: %s\n", Version)

	app.ApplyOptions(AppOptions{
		ConfigFile:   *configFile,
		DataDir:      *dataDir,
		ResultsCache: *resultsCache,
		HttpPort:     *httpPort,
		MqttMode:     *mqttMode,
		HttpMode:     *httpMode,
	})

	if *processOnly {
		app.RunProcess()
		return nil
	}

	if *mqttMode || *httpMode {
		app.RunService()
		return nil
	}

	fmt.Fprintln(out, "stagealign service starting...")
	fmt.Fprintln(out, "Use --process to reconcile row batch exports and exit")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - entries, alignments and MQTT settings")
	fmt.Fprintln(out, "  .results-cache.json - reconciled result sets (cached)")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}
}
