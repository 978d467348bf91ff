package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"surfalign/mesh"
)

// App wires one registration run: mesh loading, boundary masking, the
// selected driver with its progress hooks, and result output.
type App struct {
	Config *mesh.Config

	FloatingPath string
	TargetPath   string
	OutputPath   string

	// Job names the run in MQTT topics and log lines.
	Job string

	Quiet bool

	publisher *mesh.Publisher
	mqtt      *mesh.MQTTClient
	renderer  *mesh.SnapshotRenderer
}

// Run executes the registration end to end and writes the deformed floating
// mesh to OutputPath.
func (a *App) Run() error {
	floating, target, err := mesh.ReadOBJFiles(a.FloatingPath, a.TargetPath)
	if err != nil {
		return err
	}
	a.logf("Loaded floating mesh %s (%d vertices, %d faces)", a.FloatingPath, floating.NumVertices(), floating.NumFaces())
	a.logf("Loaded target mesh %s (%d vertices, %d faces)", a.TargetPath, target.NumVertices(), target.NumFaces())

	if a.Config.Registration.FlagBoundaries {
		for name, m := range map[string]*mesh.Mesh{"floating": floating, "target": target} {
			flagged, err := mesh.FlagBoundary(m)
			if err != nil {
				return err
			}
			if flagged > 0 {
				a.logf("Flagged %d boundary vertices on %s mesh", flagged, name)
			}
		}
	}

	if err := a.setupMQTT(); err != nil {
		return err
	}
	defer a.mqtt.Disconnect()

	hook, err := a.buildIterationHook(target)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := a.runRegistration(floating, target, hook)
	if a.publisher != nil {
		if perr := a.publisher.PublishResult(a.Job, result, err); perr != nil {
			log.Printf("Error publishing result: %v", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	a.logf("Registration finished: %d iterations, residual %.6g, took %s",
		result.Iterations, result.Residual, time.Since(start).Round(time.Millisecond))

	if err := mesh.WriteOBJFile(a.OutputPath, floating); err != nil {
		return err
	}
	a.logf("Wrote deformed mesh to %s", a.OutputPath)
	return nil
}

// runRegistration dispatches to the configured driver. The rigid driver's
// result is reduced to the shared iteration/residual shape.
func (a *App) runRegistration(floating, target *mesh.Mesh, hook func(mesh.IterationInfo)) (*mesh.RegistrationResult, error) {
	settings := a.Config.Registration
	switch settings.Mode {
	case "rigid":
		cfg := settings.RigidConfig()
		cfg.OnIteration = hook
		rigid, err := mesh.RigidRegistration(floating, target, cfg)
		if err != nil {
			return nil, err
		}
		return &mesh.RegistrationResult{Iterations: rigid.Iterations, Residual: rigid.Residual}, nil
	case "nonrigid":
		cfg := settings.NonrigidConfig()
		cfg.OnIteration = hook
		return mesh.NonrigidRegistration(floating, target, cfg)
	case "pyramid":
		cfg := settings.PyramidConfig()
		cfg.Nonrigid.OnIteration = hook
		return mesh.PyramidRegistration(floating, target, cfg)
	default:
		return nil, fmt.Errorf("unknown registration mode %q", settings.Mode)
	}
}

// setupMQTT connects to the broker when one is configured and prepares the
// progress publisher.
func (a *App) setupMQTT() error {
	client, err := mesh.InitMQTT(a.Config.MQTT)
	if err != nil {
		return fmt.Errorf("MQTT setup failed: %w", err)
	}
	a.mqtt = client
	if client != nil {
		a.publisher = mesh.NewPublisher(client.GetClient(), a.Config.MQTT.TopicPrefix)
	}
	return nil
}

// buildIterationHook chains the configured progress consumers: log lines,
// MQTT progress messages and wireframe snapshots.
func (a *App) buildIterationHook(target *mesh.Mesh) (func(mesh.IterationInfo), error) {
	var hooks []func(mesh.IterationInfo)

	if !a.Quiet {
		hooks = append(hooks, func(info mesh.IterationInfo) {
			log.Printf("%s level=%d iteration=%d residual=%.6g", info.Stage, info.Level, info.Iteration, info.Residual)
		})
	}
	if a.publisher != nil {
		hooks = append(hooks, a.publisher.ProgressHook(a.Job))
	}
	if snap := a.Config.Snapshot; snap.Dir != "" {
		if err := os.MkdirAll(snap.Dir, 0755); err != nil {
			return nil, fmt.Errorf("creating snapshot dir: %w", err)
		}
		a.renderer = mesh.NewSnapshotRenderer(float64(snap.Width), float64(snap.Height))
		hooks = append(hooks, a.renderer.SnapshotHook(snap.Dir, snap.Every, target))
	}

	if len(hooks) == 0 {
		return nil, nil
	}
	return func(info mesh.IterationInfo) {
		for _, h := range hooks {
			h(info)
		}
	}, nil
}

func (a *App) logf(format string, args ...interface{}) {
	if !a.Quiet {
		log.Printf(format, args...)
	}
}

// defaultOutputPath derives <floating>-registered.obj next to the input.
func defaultOutputPath(floatingPath string) string {
	dir := filepath.Dir(floatingPath)
	base := filepath.Base(floatingPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, base[:len(base)-len(ext)]+"-registered"+ext)
}
