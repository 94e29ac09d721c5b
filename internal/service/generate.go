package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/genstudio/server/internal/artifact"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/comfy"
	"github.com/genstudio/server/internal/config"
	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/workflow"
)

// ErrUnknownKind rejects request kinds with no registered spec.
var ErrUnknownKind = errors.New("unknown generation kind")

// ─────────────────────────────────────────────
// Collaborator interfaces (narrow slices of the
// concrete implementations, stubbed in tests)
// ─────────────────────────────────────────────

// Engine is the remote-engine client surface the orchestrator drives.
type Engine interface {
	Submit(ctx context.Context, graph workflow.Graph) (comfy.JobHandle, error)
	AwaitCompletion(ctx context.Context, h comfy.JobHandle, timeout time.Duration) error
}

// Resolver finds a completed job's output files.
type Resolver interface {
	Resolve(ctx context.Context, promptID string, since time.Time) ([]artifact.Ref, error)
}

// Relocator moves a resolved file into the stable output directory.
type Relocator interface {
	Relocate(ref artifact.Ref) (artifact.StableRef, error)
}

// Recorder is the persistence surface: one result record per success,
// async audit logs around it.
type Recorder interface {
	CreateImageResult(ctx context.Context, rec *model.ImageResult) error
	LogGenerationStarted(promptID string, kind model.Kind, userID *string, ip string, cost float64)
	LogGenerationFinished(promptID string, status model.GenerationStatus, filename, errMsg string)
}

// Templates loads workflow templates by name.
type Templates interface {
	Load(name string) (workflow.Graph, error)
}

// ─────────────────────────────────────────────
// Generator
// ─────────────────────────────────────────────

// Caller identifies who is asking: an authenticated user id (nil for
// anonymous) plus the request IP used for the free quota.
type Caller struct {
	UserID *string
	IP     string
}

// Outcome is a successful generation's result.
type Outcome struct {
	Record   *model.ImageResult
	FreeTier bool
}

// Generator orchestrates the full job lifecycle:
//
//	patch → submit → await → resolve → relocate → persist
//
// One code path serves every request kind; the differences live in the
// KindSpec registry.
type Generator struct {
	templates Templates
	engine    Engine
	resolver  Resolver
	relocator Relocator
	store     Recorder
	billing   billing.Service
	timeout   time.Duration
}

// NewGenerator creates the orchestrator.
func NewGenerator(
	templates Templates,
	engine Engine,
	resolver Resolver,
	relocator Relocator,
	store Recorder,
	billingSvc billing.Service,
	cfg *config.Config,
) *Generator {
	return &Generator{
		templates: templates,
		engine:    engine,
		resolver:  resolver,
		relocator: relocator,
		store:     store,
		billing:   billingSvc,
		timeout:   cfg.GenerateTimeout,
	}
}

// Generate runs one generation job end to end. On any stage failure no
// result record is persisted and nothing is charged; the typed error
// carries enough detail for the web layer to render.
func (g *Generator) Generate(ctx context.Context, caller Caller, kind model.Kind, params workflow.Params) (*Outcome, error) {
	spec, ok := SpecFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	tpl, err := g.templates.Load(spec.Template)
	if err != nil {
		return nil, err
	}

	patched, err := workflow.Patch(tpl, spec.Binding, params)
	if err != nil {
		return nil, err
	}

	cost := costOf(kind, params)
	charge, err := g.billing.Authorize(ctx, caller.UserID, caller.IP, cost)
	if err != nil {
		return nil, err
	}

	submittedAt := time.Now()
	handle, err := g.engine.Submit(ctx, patched)
	if err != nil {
		return nil, err
	}

	g.store.LogGenerationStarted(handle.PromptID, kind, caller.UserID, caller.IP, charge.Amount)
	log.Info().
		Str("prompt_id", handle.PromptID).
		Str("kind", string(kind)).
		Bool("free_tier", charge.FreeTier).
		Msg("generation submitted")

	waitErr := g.engine.AwaitCompletion(ctx, handle, g.timeout)
	if waitErr != nil && !errors.Is(waitErr, comfy.ErrConnectionLost) {
		return nil, g.fail(handle.PromptID, waitErr)
	}
	if waitErr != nil {
		// The stream died but the job may have finished server-side; the
		// resolver's index query settles it.
		log.Warn().Err(waitErr).Str("prompt_id", handle.PromptID).Msg("notification stream lost, querying result index")
	}

	refs, err := g.resolver.Resolve(ctx, handle.PromptID, submittedAt)
	if err != nil {
		if waitErr != nil {
			return nil, g.fail(handle.PromptID, fmt.Errorf("%w (and no artifact resolved: %v)", waitErr, err))
		}
		return nil, g.fail(handle.PromptID, err)
	}

	stable, err := g.relocator.Relocate(refs[0])
	if err != nil {
		return nil, g.fail(handle.PromptID, err)
	}

	rec := &model.ImageResult{
		Filename:    stable.Filename,
		Kind:        kind,
		SourcePath:  refs[0].Path,
		OutputPath:  stable.Path,
		UserID:      caller.UserID,
		CostCredits: charge.Amount,
		RequestIP:   caller.IP,
	}
	if err := g.store.CreateImageResult(ctx, rec); err != nil {
		return nil, g.fail(handle.PromptID, fmt.Errorf("persist result record: %w", err))
	}

	if err := g.billing.Commit(ctx, charge, rec.ID); err != nil {
		// The artifact and record exist; an uncharged success beats a
		// failed request this late. Operators reconcile from the log.
		log.Error().Err(err).Uint("image_id", rec.ID).Msg("billing commit failed")
	}

	g.store.LogGenerationFinished(handle.PromptID, model.GenerationCompleted, stable.Filename, "")
	log.Info().Str("prompt_id", handle.PromptID).Str("filename", stable.Filename).Msg("generation completed")

	return &Outcome{Record: rec, FreeTier: charge.FreeTier}, nil
}

func (g *Generator) fail(promptID string, err error) error {
	g.store.LogGenerationFinished(promptID, model.GenerationFailed, "", err.Error())
	return err
}

// costOf prices the request from its raw form parameters.
func costOf(kind model.Kind, p workflow.Params) float64 {
	width, _ := strconv.Atoi(p.Width)
	height, _ := strconv.Atoi(p.Height)
	steps, _ := strconv.Atoi(p.Steps)
	denoise, _ := strconv.ParseFloat(p.Denoise, 64)
	return billing.ComputeCost(string(kind), width, height, steps, denoise)
}
