package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"surfalign/mesh"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "", "Path to YAML configuration file (optional)")
	floatingFile = flag.String("floating", "", "Path to the floating mesh OBJ (required)")
	targetFile   = flag.String("target", "", "Path to the target mesh OBJ (required)")
	outputFile   = flag.String("output", "", "Output OBJ path (default: <floating>-registered.obj)")
	jobName      = flag.String("job", "registration", "Job name used in MQTT topics and logs")
	mode         = flag.String("mode", "", "Registration mode: pyramid, nonrigid or rigid (overrides config)")
	iterations   = flag.Int("iterations", 0, "Total driver iterations (overrides config)")
	layers       = flag.Int("layers", 0, "Pyramid layers (overrides config)")
	kappa        = flag.Float64("kappa", 0, "Inlier kappa (overrides config)")
	sigma        = flag.Float64("sigma", 0, "Smoothing sigma (overrides config)")
	allowScaling = flag.Bool("allow-scaling", false, "Allow a similarity scale in rigid mode")
	noBoundary   = flag.Bool("no-boundary-flags", false, "Do not mask open-boundary vertices")
	snapshotDir  = flag.String("snapshot-dir", "", "Write wireframe PNG snapshots to this directory")
	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker URL for progress publishing (overrides config)")
	quiet        = flag.Bool("quiet", false, "Suppress per-iteration log output")
)

func main() {
	flag.Parse()
	fmt.Printf("surfalign version: %s\n", Version)

	if *floatingFile == "" || *targetFile == "" {
		fmt.Fprintln(os.Stderr, "both -floating and -target are required")
		flag.Usage()
		os.Exit(2)
	}

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	applyOverrides(config)
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	output := *outputFile
	if output == "" {
		output = defaultOutputPath(*floatingFile)
	}

	app := &App{
		Config:       config,
		FloatingPath: *floatingFile,
		TargetPath:   *targetFile,
		OutputPath:   output,
		Job:          *jobName,
		Quiet:        *quiet,
	}
	if err := app.Run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() (*mesh.Config, error) {
	if *configFile == "" {
		return mesh.DefaultConfig(), nil
	}
	return mesh.LoadConfig(*configFile)
}

// applyOverrides layers the command-line flags over the loaded config.
func applyOverrides(config *mesh.Config) {
	if *mode != "" {
		config.Registration.Mode = *mode
	}
	if *iterations > 0 {
		config.Registration.NumIterations = *iterations
	}
	if *layers > 0 {
		config.Registration.NumPyramidLayers = *layers
	}
	if *kappa > 0 {
		config.Registration.InlierKappa = *kappa
	}
	if *sigma > 0 {
		config.Registration.TransformSigma = *sigma
	}
	if *allowScaling {
		config.Registration.AllowScaling = true
	}
	if *noBoundary {
		config.Registration.FlagBoundaries = false
	}
	if *snapshotDir != "" {
		config.Snapshot.Dir = *snapshotDir
	}
	if *mqttBroker != "" {
		config.MQTT.Broker = *mqttBroker
	}
}
