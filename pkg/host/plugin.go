// Package host adapts the scan engine to a build host's lifecycle: a scan
// before compilation, asset emission, and shutdown.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/indexer"
)

// Mode selects the build flavor.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// DiagnosticsAsset is the development-only diagnostics asset name.
const DiagnosticsAsset = "static/component-registry-diagnostics.json"

// AssetEmitter receives build assets by output-relative name.
type AssetEmitter interface {
	EmitAsset(name string, data []byte) error
}

// Config configures a Plugin.
type Config struct {
	Mode Mode

	// BuildID is stamped on production registries. Empty generates one.
	BuildID string

	// OutputPath is the configured registry path used to name assets.
	// Empty uses the store's output path.
	OutputPath string

	// Watch starts the file watcher after the first development scan.
	Watch bool

	// Debounce for the watcher. Zero selects the watcher default.
	Debounce time.Duration

	Logger *slog.Logger
}

// Plugin drives an Orchestrator from host hooks.
//
// **Lifecycle:**
//  1. BeforeCompile - scan (every call in production, first call in development)
//  2. EmitAssets - publish the registry and its companions
//  3. Shutdown - stop the watch loop and persist
type Plugin struct {
	orch   *indexer.Orchestrator
	config Config
	logger *slog.Logger

	// newSource builds the change source for watch mode. Replaced in tests.
	newSource func() (indexer.ChangeSource, error)
	now       func() time.Time

	mu       sync.Mutex
	scanned  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	shutdown bool
}

// New creates a Plugin over orch.
func New(orch *indexer.Orchestrator, config Config) *Plugin {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Mode == "" {
		config.Mode = ModeDevelopment
	}

	p := &Plugin{
		orch:   orch,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	p.newSource = p.startWatcher
	return p
}

// Mode returns the configured mode.
func (p *Plugin) Mode() Mode {
	return p.config.Mode
}

// BeforeCompile runs the scan for this build. Scan failures are logged and
// swallowed so the build always proceeds; only a cancelled ctx is returned.
func (p *Plugin) BeforeCompile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return fmt.Errorf("plugin shut down")
	}

	switch p.config.Mode {
	case ModeProduction:
		return p.productionScan(ctx)
	default:
		return p.developmentScan(ctx)
	}
}

func (p *Plugin) productionScan(ctx context.Context) error {
	p.logger.Info("starting production component scan")
	start := p.now()

	buildID := p.config.BuildID
	if buildID == "" {
		buildID = GenerateBuildID()
	}
	buildTime := p.now()
	stamp := func(doc *catalog.RegistryDocument) {
		doc.BuildID = buildID
		doc.BuildTime = &buildTime
		doc.Environment = string(ModeProduction)
	}

	if _, err := p.orch.FullScanWith(ctx, stamp); err != nil {
		if isCancellation(err) {
			return err
		}
		p.logger.Error("production component scan failed, continuing with fallback registry", "error", err)
	}

	p.logger.Info("production component scan completed",
		"build_id", buildID,
		"duration_ms", p.now().Sub(start).Milliseconds())
	return nil
}

func (p *Plugin) developmentScan(ctx context.Context) error {
	if p.scanned {
		return nil
	}

	p.logger.Info("starting component scan")
	if _, err := p.orch.FullScan(ctx); err != nil {
		if isCancellation(err) {
			return err
		}
		p.logger.Error("component scan failed", "error", err)
	}
	p.scanned = true

	if !p.config.Watch || p.cancel != nil {
		return nil
	}

	src, err := p.newSource()
	if err != nil {
		p.logger.Error("failed to start file watcher, continuing without watch", "error", err)
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.cancel = cancel
	p.loopDone = done
	go func() {
		defer close(done)
		if err := p.orch.Run(loopCtx, src); err != nil {
			p.logger.Warn("watch loop ended with error", "error", err)
		}
	}()
	return nil
}

func (p *Plugin) startWatcher() (indexer.ChangeSource, error) {
	opts := p.orch.Engine().Options
	w, err := indexer.NewWatcher(indexer.WatchOptions{
		Roots:       opts.Roots,
		ProjectRoot: opts.ProjectRoot,
		Exclude:     opts.Exclude,
		Debounce:    p.config.Debounce,
	}, p.logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}

// Watching reports whether the watch loop is running.
func (p *Plugin) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil && !p.shutdown
}

// EmitAssets publishes the registry at its output-relative name. Production
// adds a .backup.json copy; development adds the diagnostics asset. Nothing
// is emitted before the first scan.
func (p *Plugin) EmitAssets(em AssetEmitter) error {
	store := p.orch.Engine().Store
	doc := store.Snapshot()
	if doc == nil {
		p.logger.Warn("no registry data available to emit")
		return nil
	}

	data, err := store.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize registry: %w", err)
	}

	outputPath := p.config.OutputPath
	if outputPath == "" {
		outputPath = store.OutputPath()
	}
	name := AssetName(outputPath)
	var errs []error
	if err := em.EmitAsset(name, data); err != nil {
		errs = append(errs, fmt.Errorf("emit %s: %w", name, err))
	}

	switch p.config.Mode {
	case ModeProduction:
		backup := BackupAssetName(name)
		if err := em.EmitAsset(backup, data); err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", backup, err))
		}
	default:
		report, err := json.MarshalIndent(doc.Report(p.now()), "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to serialize diagnostics: %w", err))
		} else if err := em.EmitAsset(DiagnosticsAsset, report); err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", DiagnosticsAsset, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Error("failed to emit registry assets", "error", err)
		return err
	}
	p.logger.Info("emitted registry",
		"asset", name,
		"components", len(doc.Components),
		"mode", string(p.config.Mode))
	return nil
}

// Shutdown stops the watch loop, which persists on exit. Without a loop
// it persists directly. Safe to call more than once.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	cancel, done := p.cancel, p.loopDone
	p.mu.Unlock()

	if cancel == nil {
		return p.orch.Shutdown(ctx, nil)
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AssetName strips a leading "./public/" or "public/" from outputPath.
func AssetName(outputPath string) string {
	name := strings.ReplaceAll(outputPath, "\\", "/")
	for _, prefix := range []string{"./public/", "public/"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return strings.TrimPrefix(name, "./")
}

// BackupAssetName derives the backup asset name for a registry asset.
func BackupAssetName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return strings.TrimSuffix(name, ".json") + ".backup.json"
	}
	return name + ".backup.json"
}

// GenerateBuildID returns 8 random hex characters.
func GenerateBuildID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
