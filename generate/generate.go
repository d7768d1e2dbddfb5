// Package generate runs website generations: it streams a provider's answer
// into a collector, reconciles the files and persists them with the
// generation record and its events.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/sitegen/llm"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/sitefile"
	"github.com/hazyhaar/sitegen/store"
)

var (
	// ErrGenerationActive is returned while the project already has a
	// generation running.
	ErrGenerationActive = store.ErrGenerationActive

	ErrInvalidInput = errors.New("generate: invalid input")
	ErrNoFiles      = errors.New("generate: the provider produced no files")
)

// Modes.
const (
	ModeGenerate = "generate"
	ModeModify   = "modify"
)

// Thumbnailer renders a screenshot of a site.
type Thumbnailer interface {
	Capture(ctx context.Context, files []sitefile.FileRecord) ([]byte, error)
}

// Config wires a Service.
type Config struct {
	Store     *store.Store
	Providers *llm.Registry
	Events    *observability.EventLogger // optional
	Metrics   *observability.Metrics     // optional
	Enhancer  *llm.Enhancer              // optional
	Thumbnail Thumbnailer                // optional

	Timeout          time.Duration // per generation, default 3m
	MaxConcurrent    int64         // running generations across projects, default 4
	MaxPromptLength  int           // in characters, default 4000
	ContextBudget    int           // bytes of current files sent on modify
	ThumbnailTimeout time.Duration // default 30s

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxPromptLength <= 0 {
		c.MaxPromptLength = 4000
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = llm.DefaultContextBudget
	}
	if c.ThumbnailTimeout <= 0 {
		c.ThumbnailTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Request starts a generation or a modification.
type Request struct {
	UserID    string
	ProjectID string
	Prompt    string
	Provider  string // registry default when empty
	Enhance   bool   // generate only
	OnEvent   func(Event)
}

// Event kinds streamed to OnEvent.
const (
	EventStatus = "status"
	EventDelta  = "delta"
	EventFile   = "file"
	EventDone   = "done"
	EventError  = "error"
)

// Event reports progress. OnEvent is called from the generating goroutine.
type Event struct {
	Kind   string  `json:"kind"`
	Status string  `json:"status,omitempty"`
	Delta  string  `json:"delta,omitempty"`
	File   string  `json:"file,omitempty"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Result describes a finished generation.
type Result struct {
	GenerationID string                `json:"generation_id"`
	ProjectID    string                `json:"project_id"`
	Mode         string                `json:"mode"`
	Status       string                `json:"status"` // completed or partial
	Prompt       string                `json:"prompt"`
	Enhanced     bool                  `json:"enhanced"`
	Provider     string                `json:"provider"`
	Model        string                `json:"model,omitempty"`
	Files        []sitefile.FileRecord `json:"files"`
	Changed      []string              `json:"changed"`
	Report       sitefile.Report       `json:"report"`
	DurationMs   int64                 `json:"duration_ms"`
}

// Service runs generations.
type Service struct {
	cfg Config
	sem *semaphore.Weighted

	mu     sync.Mutex
	active map[string]struct{}

	bg sync.WaitGroup
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Providers == nil {
		return nil, fmt.Errorf("generate: store and providers are required")
	}
	cfg.defaults()
	return &Service{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		active: make(map[string]struct{}),
	}, nil
}

// Close waits for background thumbnail captures.
func (s *Service) Close() {
	s.bg.Wait()
}

// Generate replaces the project's files with a new site built from
// req.Prompt.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, ModeGenerate, req)
}

// Modify asks the provider to change the project. Files it emits replace
// the stored ones with the same path; the others are kept.
func (s *Service) Modify(ctx context.Context, req Request) (*Result, error) {
	req.Enhance = false
	return s.run(ctx, ModeModify, req)
}

// Running reports whether projectID has a generation in progress in this
// process.
func (s *Service) Running(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[projectID]
	return ok
}

// Exclusive runs fn while holding the project's generation slot: no
// generation starts on the project until fn returns. It returns
// ErrGenerationActive without calling fn while one is running.
func (s *Service) Exclusive(projectID string, fn func() error) error {
	if !s.acquire(projectID) {
		return ErrGenerationActive
	}
	defer s.release(projectID)
	return fn()
}

// SaveFile runs a manually edited file through the pipeline and stores it
// in place of the file with the same path.
func (s *Service) SaveFile(ctx context.Context, projectID string, rec sitefile.FileRecord) (sitefile.FileRecord, sitefile.Report, error) {
	var (
		records []sitefile.FileRecord
		report  sitefile.Report
	)
	err := s.Exclusive(projectID, func() error {
		records, report = sitefile.ReconcileReport([]sitefile.FileRecord{rec})
		if len(records) == 0 {
			return fmt.Errorf("%w: file path is required", ErrInvalidInput)
		}
		return s.cfg.Store.UpsertFiles(ctx, projectID, records)
	})
	if err != nil {
		return sitefile.FileRecord{}, report, err
	}
	return records[0], report, nil
}

func (s *Service) validate(req *Request) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(req.Prompt); n > s.cfg.MaxPromptLength {
		return fmt.Errorf("%w: prompt is %d characters, max %d", ErrInvalidInput, n, s.cfg.MaxPromptLength)
	}
	if req.UserID == "" || req.ProjectID == "" {
		return fmt.Errorf("%w: user and project are required", ErrInvalidInput)
	}
	if !s.cfg.Providers.Has(req.Provider) {
		return fmt.Errorf("%w: %w %q", ErrInvalidInput, llm.ErrUnknownProvider, req.Provider)
	}
	return nil
}

func (s *Service) acquire(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[projectID]; busy {
		return false
	}
	s.active[projectID] = struct{}{}
	return true
}

func (s *Service) release(projectID string) {
	s.mu.Lock()
	delete(s.active, projectID)
	s.mu.Unlock()
}

func (s *Service) emit(req Request, e Event) {
	if req.OnEvent != nil {
		req.OnEvent(e)
	}
}

func (s *Service) logEvent(ctx context.Context, e observability.Event) {
	if s.cfg.Events != nil {
		s.cfg.Events.Log(ctx, e)
	}
}

func (s *Service) run(ctx context.Context, mode string, req Request) (*Result, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	project, err := s.cfg.Store.GetProject(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, err
	}
	provider, _ := s.cfg.Providers.Get(req.Provider)

	if !s.acquire(project.ID) {
		return nil, ErrGenerationActive
	}
	defer s.release(project.ID)

	gen := &store.Generation{
		ProjectID: project.ID,
		UserID:    req.UserID,
		Mode:      mode,
		Prompt:    req.Prompt,
		Provider:  provider.Name(),
	}
	if err := s.cfg.Store.StartGeneration(ctx, gen); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := s.cfg.Logger.With("generation_id", gen.ID, "project_id", project.ID, "mode", mode, "provider", provider.Name())

	// Bookkeeping must survive a cancelled request.
	bctx := context.WithoutCancel(ctx)
	fail := func(cause error) (*Result, error) {
		logger.WarnContext(ctx, "generation failed", "error", cause)
		if err := s.cfg.Store.FinishGeneration(bctx, gen.ID, store.GenerationFailed, 0, "", cause.Error()); err != nil {
			logger.Error("generate: finish generation", "error", err)
		}
		if err := s.cfg.Store.SetProjectStatus(bctx, project.ID, store.StatusFailed); err != nil {
			logger.Error("generate: set project status", "error", err)
		}
		s.logEvent(bctx, observability.Event{
			Kind: observability.KindGenerationFailed, UserID: req.UserID, ProjectID: project.ID,
			EntityID: gen.ID, Message: mode + " failed: " + cause.Error(),
			Details: map[string]any{"provider": provider.Name()},
		})
		s.cfg.Metrics.Duration(observability.MetricGenerationDuration, time.Since(start),
			map[string]string{"mode": mode, "status": store.GenerationFailed})
		s.emit(req, Event{Kind: EventError, Error: cause.Error()})
		return nil, cause
	}

	if err := s.cfg.Store.SetProjectStatus(ctx, project.ID, store.StatusGenerating); err != nil {
		logger.Error("generate: set project status", "error", err)
	}
	s.logEvent(ctx, observability.Event{
		Kind: observability.KindGenerationStarted, UserID: req.UserID, ProjectID: project.ID,
		EntityID: gen.ID, Message: mode + " started", Success: true,
		Details: map[string]any{"provider": provider.Name(), "prompt_chars": utf8.RuneCountInString(req.Prompt)},
	})
	s.emit(req, Event{Kind: EventStatus, Status: "queued"})

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fail(fmt.Errorf("generate: waiting for a slot: %w", err))
	}
	defer s.sem.Release(1)
	s.emit(req, Event{Kind: EventStatus, Status: "generating"})

	prompt, enhanced := req.Prompt, false
	if req.Enhance && s.cfg.Enhancer != nil {
		prompt, enhanced = s.cfg.Enhancer.Enhance(ctx, req.Prompt)
		if enhanced {
			s.emit(req, Event{Kind: EventStatus, Status: "enhanced"})
		}
	}

	var llmReq llm.Request
	if mode == ModeModify {
		current, err := s.cfg.Store.Records(ctx, project.ID)
		if err != nil {
			return fail(fmt.Errorf("generate: load files: %w", err))
		}
		llmReq = llm.UserRequest(llm.ModifySystemPrompt, llm.BuildModifyPrompt(prompt, current, s.cfg.ContextBudget))
	} else {
		llmReq = llm.UserRequest(llm.GenerateSystemPrompt, prompt)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	sc := llm.NewStreamCollector(nil, func(d sitefile.Draft) {
		s.emit(req, Event{Kind: EventFile, File: sitefile.CleanPath(d.Path)})
	})
	completion, callErr := provider.Complete(runCtx, llmReq, func(delta string) {
		sc.Feed(delta)
		s.emit(req, Event{Kind: EventDelta, Delta: delta})
	})
	if callErr == nil {
		sc.Finish()
	} else {
		sc.Abort()
	}

	status := store.GenerationCompleted
	collected := sc.Collector()
	switch {
	case callErr != nil && ctx.Err() != nil:
		return fail(fmt.Errorf("generate: cancelled: %w", ctx.Err()))
	case callErr != nil && collected.Len() == 0:
		return fail(fmt.Errorf("generate: %w", callErr))
	case callErr != nil:
		status = store.GenerationPartial
		logger.WarnContext(ctx, "generation interrupted, keeping collected files", "files", collected.Len(), "error", callErr)
	case collected.Len() == 0:
		return fail(ErrNoFiles)
	}

	records, report := sitefile.ReconcileReport(collected.Records())
	if mode == ModeModify {
		err = s.cfg.Store.UpsertFiles(bctx, project.ID, records)
	} else {
		err = s.cfg.Store.ReplaceFiles(bctx, project.ID, records)
	}
	if err != nil {
		return fail(fmt.Errorf("generate: persist files: %w", err))
	}
	files, err := s.cfg.Store.Records(bctx, project.ID)
	if err != nil {
		return fail(fmt.Errorf("generate: reload files: %w", err))
	}

	changed := make([]string, len(records))
	for i, r := range records {
		changed[i] = r.Path
	}
	res := &Result{
		GenerationID: gen.ID,
		ProjectID:    project.ID,
		Mode:         mode,
		Status:       status,
		Prompt:       prompt,
		Enhanced:     enhanced,
		Provider:     provider.Name(),
		Files:        files,
		Changed:      changed,
		Report:       report,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if completion != nil {
		res.Model = completion.Model
	}

	reportJSON, _ := json.Marshal(report)
	if err := s.cfg.Store.FinishGeneration(bctx, gen.ID, status, len(records), string(reportJSON), errString(callErr)); err != nil {
		logger.Error("generate: finish generation", "error", err)
	}
	projectStatus := store.StatusReady
	if status == store.GenerationPartial {
		projectStatus = store.StatusPartial
	}
	project.Status = projectStatus
	if mode == ModeGenerate {
		project.Prompt = prompt
	}
	project.Provider = provider.Name()
	if err := s.cfg.Store.UpdateProject(bctx, project); err != nil {
		logger.Error("generate: update project", "error", err)
	}
	if err := s.cfg.Store.SetProjectStatus(bctx, project.ID, projectStatus); err != nil {
		logger.Error("generate: set project status", "error", err)
	}

	kind := observability.KindGenerationCompleted
	if status == store.GenerationPartial {
		kind = observability.KindGenerationPartial
	}
	s.logEvent(bctx, observability.Event{
		Kind: kind, UserID: req.UserID, ProjectID: project.ID, EntityID: gen.ID, Success: true,
		Level:   levelFor(status),
		Message: fmt.Sprintf("%s %s: %d files", mode, status, len(records)),
		Details: map[string]any{
			"provider": provider.Name(), "model": res.Model, "enhanced": enhanced,
			"duplicates": report.Duplicates, "repaired": report.Repaired,
			"image_rewrites": report.ImageRewrites(), "error": errString(callErr),
		},
	})
	s.recordMetrics(mode, status, res)
	logger.InfoContext(ctx, "generation finished", "status", status, "files", len(records),
		"duration_ms", res.DurationMs, "repaired", report.Repaired, "image_rewrites", report.ImageRewrites())

	s.captureThumbnail(bctx, project.ID, files)
	s.emit(req, Event{Kind: EventDone, Result: res})
	return res, nil
}

func (s *Service) recordMetrics(mode, status string, res *Result) {
	m := s.cfg.Metrics
	labels := map[string]string{"mode": mode, "status": status, "provider": res.Provider}
	m.Record(observability.MetricGenerationDuration, float64(res.DurationMs), "ms", labels)
	m.Record(observability.MetricGenerationFiles, float64(res.Report.Output), "count", labels)
	bytes := 0
	for _, f := range res.Files {
		bytes += f.Size
	}
	m.Record(observability.MetricGenerationBytes, float64(bytes), "bytes", labels)
	m.Record(observability.MetricImageRewrites, float64(res.Report.ImageRewrites()), "count", labels)
	m.Record(observability.MetricHTMLRepairs, float64(res.Report.Repaired), "count", labels)
}

// captureThumbnail renders the site in the background. Failures are only
// logged.
func (s *Service) captureThumbnail(ctx context.Context, projectID string, files []sitefile.FileRecord) {
	if s.cfg.Thumbnail == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ThumbnailTimeout)
		defer cancel()
		png, err := s.cfg.Thumbnail.Capture(ctx, files)
		if err != nil {
			s.cfg.Logger.Warn("generate: thumbnail capture failed", "project_id", projectID, "error", err)
			return
		}
		if err := s.cfg.Store.SetProjectThumbnail(ctx, projectID, png); err != nil {
			s.cfg.Logger.Warn("generate: thumbnail store failed", "project_id", projectID, "error", err)
		}
	}()
}

// Reconcile runs the pipeline again over the stored files of a project,
// for instance after manual edits or a pipeline upgrade.
func (s *Service) Reconcile(ctx context.Context, userID, projectID string) (*sitefile.Report, error) {
	project, err := s.cfg.Store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	var report sitefile.Report
	err = s.Exclusive(project.ID, func() error {
		current, err := s.cfg.Store.Records(ctx, project.ID)
		if err != nil {
			return err
		}
		var records []sitefile.FileRecord
		records, report = sitefile.ReconcileReport(current)
		if err := s.cfg.Store.ReplaceFiles(ctx, project.ID, records); err != nil {
			return fmt.Errorf("generate: reconcile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, observability.Event{
		Kind: observability.KindFilesReconciled, UserID: userID, ProjectID: project.ID, Success: true,
		Message: fmt.Sprintf("reconciled %d files", report.Output),
		Details: map[string]any{"repaired": report.Repaired, "image_rewrites": report.ImageRewrites()},
	})
	return &report, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func levelFor(status string) string {
	if status == store.GenerationPartial {
		return "warn"
	}
	return "info"
}
