// Package app implements the gateway facade in front of a mutable semantic
// search index. It serializes index mutations behind a single lock, stages
// documents in a buffer until an explicit flush, routes every index operation
// to either a local index or a cluster of remote shards, and dispatches named
// pipelines and workflows.
//
// Request-handling front ends hold one Application per process and never
// touch the index directly.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/semindex/config"
	"github.com/c360/semindex/document"
	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
	"github.com/c360/semindex/index/cluster"
	"github.com/c360/semindex/index/memory"
	"github.com/c360/semindex/metric"
	"github.com/c360/semindex/pipeline"
	"github.com/c360/semindex/pkg/worker"
	"github.com/c360/semindex/workflow"
)

const (
	// DefaultLimit applies when a search limit is absent or zero
	DefaultLimit = 10

	// MaxLimit caps every search limit
	MaxLimit = 250

	schedulerStopTimeout = time.Minute
)

// Limit clamps a search limit to [1, MaxLimit], substituting DefaultLimit
// for a zero value.
func Limit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// scheduleJob pairs a workflow with its schedule for the scheduler pool.
type scheduleJob struct {
	workflow *workflow.Workflow
	schedule workflow.Schedule
}

// Application is the gateway. All methods are safe for concurrent use; index
// mutations serialize on a single per-instance lock while reads proceed
// without locking.
type Application struct {
	settings *config.Settings
	logger   *slog.Logger
	metrics  *metric.Registry

	// capability is nil when neither an index nor a cluster is configured
	capability index.Capability
	clustered  bool

	// mu guards buffer and every mutating capability call
	mu     sync.Mutex
	buffer *document.Buffer

	registry *pipeline.Registry

	// pipeMu guards pipelines; entries are added lazily after construction
	pipeMu    sync.RWMutex
	pipelines map[string]pipeline.Pipeline

	workflows map[string]*workflow.Workflow

	poolMu    sync.Mutex
	pool      *worker.Pool[scheduleJob]
	schedStop context.CancelFunc
}

// Option configures optional Application collaborators.
type Option func(*Application)

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) {
		app.logger = logger
	}
}

// WithMetrics attaches a metrics registry; the scheduler pool and front ends
// register their collectors with it.
func WithMetrics(registry *metric.Registry) Option {
	return func(app *Application) {
		app.metrics = registry
	}
}

// New constructs the gateway from settings. Pipeline and workflow registries
// are built here and immutable afterwards; configuration errors are fatal.
func New(settings *config.Settings, opts ...Option) (*Application, error) {
	if settings == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Application", "New", "validate settings")
	}

	app := &Application{
		settings:  settings,
		pipelines: make(map[string]pipeline.Pipeline),
		workflows: make(map[string]*workflow.Workflow),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slog.Default()
	}

	if err := app.buildCapability(); err != nil {
		return nil, err
	}
	if err := app.buildPipelines(); err != nil {
		return nil, err
	}
	if err := app.buildWorkflows(); err != nil {
		return nil, err
	}

	return app, nil
}

// buildCapability constructs the index capability: a cluster router when
// shards are configured, otherwise a local index when embeddings or an
// existing persisted index are configured, otherwise nothing.
func (app *Application) buildCapability() error {
	settings := app.settings

	if settings.Cluster != nil {
		router, err := cluster.New(cluster.Config{
			Shards:  settings.Cluster.Shards,
			Timeout: settings.Cluster.Timeout.Std(),
			Logger:  app.logger,
		})
		if err != nil {
			return err
		}
		app.capability = router
		app.clustered = true
		app.logger.Info("cluster router configured", "shards", len(settings.Cluster.Shards))
		return nil
	}

	if settings.Embeddings == nil && settings.Path == "" {
		return nil
	}

	local := memory.New(memory.Config{
		Embedder: newEmbedder(settings.Embeddings, app.logger),
		Scoring:  settings.Embeddings != nil && settings.Embeddings.Scoring != "",
	})
	if settings.Path != "" && memory.Exists(settings.Path) {
		if err := local.Load(settings.Path); err != nil {
			return errors.Wrap(err, "Application", "New", "load index")
		}
		app.logger.Info("index loaded", "path", settings.Path, "documents", local.Count())
	}
	app.capability = local
	return nil
}

// newEmbedder builds the embedder the local index scores with.
func newEmbedder(cfg *config.EmbeddingsConfig, logger *slog.Logger) embedding.Embedder {
	if cfg == nil {
		return nil
	}

	switch cfg.Method {
	case "openai":
		var cache embedding.Cache
		if cfg.CacheSize > 0 {
			if lru, err := embedding.NewLRUCache(cfg.CacheSize); err == nil {
				cache = lru
			}
		}
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKeyEnv:  cfg.APIKeyEnv,
			Dimensions: cfg.Dimensions,
			Cache:      cache,
			Logger:     logger,
		})
	default:
		return embedding.NewBM25Embedder(embedding.BM25Config{Dimensions: cfg.Dimensions})
	}
}

// buildPipelines instantiates every configured pipeline. Config keys
// without a registered factory are ignored, since the inline pipeline map
// also captures unrelated top-level settings. The labels pipeline is built
// first so that similarity can share its model when it has none of its own.
func (app *Application) buildPipelines() error {
	deps := pipeline.Dependencies{Index: app.capability, Logger: app.logger}
	registry := app.registryRef()

	names := make([]string, 0, len(app.settings.Pipelines))
	for name := range app.settings.Pipelines {
		if name != "labels" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := app.settings.Pipelines["labels"]; ok {
		names = append([]string{"labels"}, names...)
	}

	for _, name := range names {
		cfg := app.settings.Pipelines[name]
		if !registry.Known(name) {
			app.logger.Debug("ignoring unknown config section", "name", name)
			continue
		}

		if name == "similarity" && !hasModel(cfg) {
			if labels, ok := app.pipelines["labels"].(*pipeline.Labels); ok {
				app.pipelines[name] = pipeline.NewSimilarity(labels.Embedder())
				app.logger.Debug("pipeline created", "name", name, "model", "labels")
				continue
			}
		}

		instance, err := registry.Create(name, cfg, deps)
		if err != nil {
			return errors.Wrap(err, "Application", "New",
				fmt.Sprintf("create pipeline %s", name))
		}
		app.pipelines[name] = instance
		app.logger.Debug("pipeline created", "name", name)
	}
	return nil
}

// hasModel reports whether a pipeline config selects its own model.
func hasModel(cfg map[string]any) bool {
	if _, ok := cfg["method"]; ok {
		return true
	}
	_, ok := cfg["model"]
	return ok
}

func (app *Application) registryRef() *pipeline.Registry {
	if app.registry == nil {
		app.registry = pipeline.NewRegistry()
	}
	return app.registry
}

// buildWorkflows resolves task descriptors into executable workflows and
// submits scheduled workflows to the scheduler pool.
func (app *Application) buildWorkflows() error {
	for name, cfg := range app.settings.Workflow {
		tasks := make([]workflow.Task, len(cfg.Tasks))
		for i, taskCfg := range cfg.Tasks {
			task, err := app.resolveTask(taskCfg)
			if err != nil {
				return errors.Wrap(err, "Application", "New",
					fmt.Sprintf("resolve workflow %s task %d", name, i))
			}
			tasks[i] = task
		}

		wf, err := workflow.New(name, tasks, app.logger)
		if err != nil {
			return err
		}
		app.workflows[name] = wf

		if cfg.Schedule != nil {
			app.scheduleWorkflow(wf, workflow.Schedule{
				Every:      cfg.Schedule.Every.Std(),
				Iterations: cfg.Schedule.Iterations,
				Elements:   cfg.Schedule.Elements,
			})
		}
	}
	return nil
}

// scheduleWorkflow lazily creates the shared scheduler pool and submits the
// workflow's recurring entry point to it. Submission never blocks.
func (app *Application) scheduleWorkflow(wf *workflow.Workflow, schedule workflow.Schedule) {
	app.poolMu.Lock()
	defer app.poolMu.Unlock()

	if app.pool == nil {
		var opts []worker.Option[scheduleJob]
		if app.metrics != nil {
			opts = append(opts, worker.WithMetricsRegistry[scheduleJob](app.metrics, "semindex_scheduler"))
		}
		app.pool = worker.NewPool(0, 0, func(ctx context.Context, job scheduleJob) error {
			return job.workflow.RunSchedule(ctx, job.schedule)
		}, opts...)

		ctx, cancel := context.WithCancel(context.Background())
		app.schedStop = cancel
		if err := app.pool.Start(ctx); err != nil {
			app.logger.Error("scheduler pool start failed", "error", err)
		}
	}

	if err := app.pool.Submit(scheduleJob{workflow: wf, schedule: schedule}); err != nil {
		app.logger.Error("schedule submit failed", "workflow", wf.Name(), "error", err)
	}
}

// Search finds the documents most similar to query. Without an index it
// returns no results.
func (app *Application) Search(ctx context.Context, query string, limit int) ([]index.Result, error) {
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.Search(ctx, query, Limit(limit))
}

// BatchSearch runs Search for each query.
func (app *Application) BatchSearch(ctx context.Context, queries []string, limit int) ([][]index.Result, error) {
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.BatchSearch(ctx, queries, Limit(limit))
}

// Add stages documents for the next Index or Upsert call and returns the
// input unchanged. Elements may be structured records, bare text strings or
// (id, text) pairs; documents without an id receive one continuing from the
// current index size plus the buffered count. On a non-writable gateway or
// without an index this is a no-op passthrough. With a cluster the whole
// batch is delegated and nothing is buffered locally.
func (app *Application) Add(ctx context.Context, documents []any) ([]any, error) {
	if !app.settings.Writable || app.capability == nil {
		return documents, nil
	}

	if app.clustered {
		batch, err := toDocuments(documents, -1)
		if err != nil {
			return nil, err
		}
		if err := app.capability.Add(ctx, batch); err != nil {
			return nil, err
		}
		return documents, nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.buffer == nil {
		app.buffer = document.NewBuffer()
	}

	next := int64(app.capability.Count() + app.buffer.Count())
	batch, err := toDocuments(documents, next)
	if err != nil {
		return nil, err
	}
	app.buffer.Add(batch)
	return documents, nil
}

// Index builds the index from the buffered documents, persists it when a
// path is configured and releases the buffer. The buffer survives a failed
// build or save so the flush can be retried. With a cluster the flush is
// delegated whole.
func (app *Application) Index(ctx context.Context) error {
	if !app.settings.Writable {
		return nil
	}
	if app.clustered {
		return app.capability.Index(ctx, nil)
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.capability == nil || app.buffer == nil {
		return nil
	}

	documents := app.buffer.Documents()
	if app.capability.NeedsScoring() {
		if err := app.capability.Score(ctx, documents); err != nil {
			return err
		}
	}
	if err := app.capability.Index(ctx, documents); err != nil {
		return err
	}
	if app.settings.Path != "" {
		if err := app.capability.Save(app.settings.Path); err != nil {
			return err
		}
	}

	app.buffer.Close()
	app.buffer = nil
	return nil
}

// Upsert incrementally merges the buffered documents into the index,
// replacing entries with matching ids. Persistence and buffer handling match
// Index.
func (app *Application) Upsert(ctx context.Context) error {
	if !app.settings.Writable {
		return nil
	}
	if app.clustered {
		return app.capability.Upsert(ctx, nil)
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.capability == nil || app.buffer == nil {
		return nil
	}

	if err := app.capability.Upsert(ctx, app.buffer.Documents()); err != nil {
		return err
	}
	if app.settings.Path != "" {
		if err := app.capability.Save(app.settings.Path); err != nil {
			return err
		}
	}

	app.buffer.Close()
	app.buffer = nil
	return nil
}

// Delete removes documents by id and returns the ids actually deleted. On a
// non-writable gateway or without an index it returns no result.
func (app *Application) Delete(ctx context.Context, ids []any) ([]any, error) {
	if !app.settings.Writable || app.capability == nil {
		return nil, nil
	}
	if app.clustered {
		return app.capability.Delete(ctx, ids)
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	return app.capability.Delete(ctx, ids)
}

// Count returns the total number of indexed documents. The second return is
// false when no index is configured.
func (app *Application) Count() (int, bool) {
	if app.capability == nil {
		return 0, false
	}
	return app.capability.Count(), true
}

// Similarity scores texts against query, best first, with result ids as
// positions into texts. A configured similarity pipeline takes precedence
// over the index.
func (app *Application) Similarity(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	if p, ok := app.lookupPipeline("similarity"); ok {
		raw, err := p.Run(ctx, query, texts)
		if err != nil {
			return nil, err
		}
		return NormalizeResults(raw)
	}
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.Similarity(ctx, query, texts)
}

// BatchSimilarity runs Similarity for each query.
func (app *Application) BatchSimilarity(ctx context.Context, queries []string, texts []string) ([][]index.Result, error) {
	if p, ok := app.lookupPipeline("similarity"); ok {
		raw, err := p.Run(ctx, queries, texts)
		if err != nil {
			return nil, err
		}
		return NormalizeBatchResults(raw)
	}
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.BatchSimilarity(ctx, queries, texts)
}

// Transform embeds a single text into a vector.
func (app *Application) Transform(ctx context.Context, text string) ([]float64, error) {
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.Transform(ctx, text)
}

// BatchTransform embeds each text into a vector.
func (app *Application) BatchTransform(ctx context.Context, texts []string) ([][]float64, error) {
	if app.capability == nil {
		return nil, nil
	}
	return app.capability.BatchTransform(ctx, texts)
}

// Extract answers extraction questions over texts. An extractor pipeline is
// constructed on first use when none is configured.
func (app *Application) Extract(ctx context.Context, queue []pipeline.Question, texts []string) ([]pipeline.Answer, error) {
	extractor, err := app.pipelineInstance("extractor")
	if err != nil {
		return nil, err
	}

	raw, err := extractor.Run(ctx, queue, texts)
	if err != nil {
		return nil, err
	}
	answers, ok := raw.([]pipeline.Answer)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("extractor returned %T", raw),
			"Application", "Extract", "convert answers")
	}
	return answers, nil
}

// Label applies zero-shot classification of text against candidate labels.
// Text may be a single string or a string list; the result shape follows the
// input shape. Without a labels pipeline it returns no result.
func (app *Application) Label(ctx context.Context, text any, labels []string) (any, error) {
	p, ok := app.lookupPipeline("labels")
	if !ok {
		return nil, nil
	}
	return p.Run(ctx, text, labels)
}

// lookupPipeline returns a configured pipeline by name.
func (app *Application) lookupPipeline(name string) (pipeline.Pipeline, bool) {
	app.pipeMu.RLock()
	defer app.pipeMu.RUnlock()
	p, ok := app.pipelines[name]
	return p, ok
}

// pipelineInstance returns the configured pipeline by name, constructing it
// anonymously on first use when the registry knows the name.
func (app *Application) pipelineInstance(name string) (pipeline.Pipeline, error) {
	if p, ok := app.lookupPipeline(name); ok {
		return p, nil
	}

	app.pipeMu.Lock()
	defer app.pipeMu.Unlock()

	if p, ok := app.pipelines[name]; ok {
		return p, nil
	}
	instance, err := app.registryRef().Create(name, app.settings.Pipeline(name),
		pipeline.Dependencies{Index: app.capability, Logger: app.logger})
	if err != nil {
		return nil, err
	}
	app.pipelines[name] = instance
	return instance, nil
}

// Pipeline invokes a configured pipeline by name with positional arguments.
// Unregistered names return no result.
func (app *Application) Pipeline(ctx context.Context, name string, args ...any) (any, error) {
	p, ok := app.lookupPipeline(name)
	if !ok {
		return nil, nil
	}
	return p.Run(ctx, args...)
}

// Workflow executes a named workflow over elements and returns the
// transformed elements.
func (app *Application) Workflow(ctx context.Context, name string, elements []any) ([]any, error) {
	wf, ok := app.workflows[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrWorkflowNotFound, name),
			"Application", "Workflow", "lookup workflow")
	}
	return wf.Run(ctx, normalizeElements(elements))
}

// Workflows returns the configured workflow names.
func (app *Application) Workflows() []string {
	names := make([]string, 0, len(app.workflows))
	for name := range app.workflows {
		names = append(names, name)
	}
	return names
}

// Writable reports whether mutations are enabled.
func (app *Application) Writable() bool {
	return app.settings.Writable
}

// Wait drains the scheduler: running and queued scheduled workflows finish
// their current run, then the pool is discarded. Without a scheduler it
// returns immediately.
func (app *Application) Wait() {
	app.poolMu.Lock()
	defer app.poolMu.Unlock()

	if app.pool == nil {
		return
	}
	app.schedStop()
	if err := app.pool.Stop(schedulerStopTimeout); err != nil {
		app.logger.Warn("scheduler stop", "error", err)
	}
	app.pool = nil
	app.schedStop = nil
}

// Close shuts the gateway down: the scheduler drains and the staging buffer
// is released.
func (app *Application) Close() {
	app.Wait()

	app.mu.Lock()
	defer app.mu.Unlock()
	if app.buffer != nil {
		app.buffer.Close()
		app.buffer = nil
	}
}

// buffered returns the current buffer size.
func (app *Application) buffered() int {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.buffer == nil {
		return 0
	}
	return app.buffer.Count()
}
