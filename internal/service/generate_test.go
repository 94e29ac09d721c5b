package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/genstudio/server/internal/artifact"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/comfy"
	"github.com/genstudio/server/internal/config"
	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/workflow"
)

// ─── stubs ───

type stubTemplates struct{}

func (stubTemplates) Load(name string) (workflow.Graph, error) {
	return workflow.Graph{
		"1": {ClassType: "Stub", Inputs: map[string]any{"x": 1}},
	}, nil
}

type stubEngine struct {
	handle    comfy.JobHandle
	submitErr error
	awaitErr  error
	submitted int
}

func (s *stubEngine) Submit(ctx context.Context, g workflow.Graph) (comfy.JobHandle, error) {
	s.submitted++
	return s.handle, s.submitErr
}

func (s *stubEngine) AwaitCompletion(ctx context.Context, h comfy.JobHandle, timeout time.Duration) error {
	return s.awaitErr
}

type stubResolver struct {
	refs []artifact.Ref
	err  error
}

func (s *stubResolver) Resolve(ctx context.Context, promptID string, since time.Time) ([]artifact.Ref, error) {
	return s.refs, s.err
}

type stubRelocator struct {
	stable artifact.StableRef
	err    error
}

func (s *stubRelocator) Relocate(ref artifact.Ref) (artifact.StableRef, error) {
	return s.stable, s.err
}

type logEvent struct {
	promptID string
	status   model.GenerationStatus
	errMsg   string
}

type stubRecorder struct {
	created   []*model.ImageResult
	createErr error
	finished  []logEvent
}

func (s *stubRecorder) CreateImageResult(ctx context.Context, rec *model.ImageResult) error {
	if s.createErr != nil {
		return s.createErr
	}
	rec.ID = uint(len(s.created) + 1)
	s.created = append(s.created, rec)
	return nil
}

func (s *stubRecorder) LogGenerationStarted(promptID string, kind model.Kind, userID *string, ip string, cost float64) {
}

func (s *stubRecorder) LogGenerationFinished(promptID string, status model.GenerationStatus, filename, errMsg string) {
	s.finished = append(s.finished, logEvent{promptID: promptID, status: status, errMsg: errMsg})
}

type stubBilling struct {
	authErr   error
	freeTier  bool
	committed []uint
}

func (s *stubBilling) Balance(ctx context.Context, userID string) (float64, error) { return 0, nil }
func (s *stubBilling) Grant(ctx context.Context, userID string, amount float64, remark string) error {
	return nil
}
func (s *stubBilling) FreeRemaining(ctx context.Context, userID *string, ip string) (int, error) {
	return 0, nil
}
func (s *stubBilling) Authorize(ctx context.Context, userID *string, ip string, cost float64) (*billing.Charge, error) {
	if s.authErr != nil {
		return nil, s.authErr
	}
	return &billing.Charge{UserID: userID, IP: ip, Amount: cost, FreeTier: s.freeTier}, nil
}
func (s *stubBilling) Commit(ctx context.Context, charge *billing.Charge, imageID uint) error {
	s.committed = append(s.committed, imageID)
	return nil
}
func (s *stubBilling) Transactions(ctx context.Context, userID string, limit int) ([]billing.CreditTransaction, error) {
	return nil, nil
}

type fixture struct {
	engine    *stubEngine
	resolver  *stubResolver
	relocator *stubRelocator
	recorder  *stubRecorder
	billing   *stubBilling
	gen       *Generator
}

func newFixture() *fixture {
	f := &fixture{
		engine: &stubEngine{handle: comfy.JobHandle{PromptID: "p-1", ClientID: "c-1"}},
		resolver: &stubResolver{refs: []artifact.Ref{
			{Path: "/shared/out.png", Filename: "out.png"},
		}},
		relocator: &stubRelocator{stable: artifact.StableRef{
			Path: "/stable/20240101_abcd.png", Filename: "20240101_abcd.png",
		}},
		recorder: &stubRecorder{},
		billing:  &stubBilling{freeTier: true},
	}
	f.gen = NewGenerator(stubTemplates{}, f.engine, f.resolver, f.relocator, f.recorder, f.billing,
		&config.Config{GenerateTimeout: time.Second})
	return f
}

func (f *fixture) run(t *testing.T) (*Outcome, error) {
	t.Helper()
	return f.gen.Generate(context.Background(), Caller{IP: "10.0.0.1"}, model.KindText2Image, workflow.Params{})
}

// ─── tests ───

func TestGenerateSuccess(t *testing.T) {
	f := newFixture()
	out, err := f.run(t)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(f.recorder.created) != 1 {
		t.Fatalf("created %d records, want exactly 1", len(f.recorder.created))
	}
	rec := f.recorder.created[0]
	if rec.Filename != "20240101_abcd.png" {
		t.Errorf("filename = %q", rec.Filename)
	}
	if rec.SourcePath != "/shared/out.png" || rec.OutputPath != "/stable/20240101_abcd.png" {
		t.Errorf("paths = %q -> %q", rec.SourcePath, rec.OutputPath)
	}
	if rec.Kind != model.KindText2Image {
		t.Errorf("kind = %q", rec.Kind)
	}
	if !out.FreeTier {
		t.Errorf("free tier flag lost")
	}
	if len(f.billing.committed) != 1 || f.billing.committed[0] != rec.ID {
		t.Errorf("committed = %v, want [%d]", f.billing.committed, rec.ID)
	}
}

func TestGenerateUnknownKind(t *testing.T) {
	f := newFixture()
	_, err := f.gen.Generate(context.Background(), Caller{}, model.Kind("sculpture"), workflow.Params{})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if f.engine.submitted != 0 {
		t.Errorf("job submitted for unknown kind")
	}
}

func TestGenerateQuotaDeniedBeforeSubmit(t *testing.T) {
	f := newFixture()
	f.billing.authErr = billing.ErrQuotaExceeded

	_, err := f.run(t)
	if !errors.Is(err, billing.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if f.engine.submitted != 0 {
		t.Errorf("engine work happened despite denied authorization")
	}
	if len(f.recorder.created) != 0 {
		t.Errorf("record created on failure")
	}
}

func TestGenerateSubmitRejected(t *testing.T) {
	f := newFixture()
	f.engine.submitErr = &comfy.RejectedError{Status: 400, Body: "bad node"}

	_, err := f.run(t)
	var rej *comfy.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if len(f.recorder.created) != 0 {
		t.Errorf("record created on rejected submit")
	}
	if len(f.billing.committed) != 0 {
		t.Errorf("charge committed on failure")
	}
}

func TestGenerateTimeout(t *testing.T) {
	f := newFixture()
	f.engine.awaitErr = comfy.ErrTimedOut

	_, err := f.run(t)
	if !errors.Is(err, comfy.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if len(f.recorder.created) != 0 {
		t.Errorf("record created on timeout")
	}
	if len(f.recorder.finished) != 1 || f.recorder.finished[0].status != model.GenerationFailed {
		t.Errorf("finished events = %+v, want one FAILED", f.recorder.finished)
	}
}

func TestGenerateConnectionLostButResolved(t *testing.T) {
	f := newFixture()
	f.engine.awaitErr = comfy.ErrConnectionLost

	out, err := f.run(t)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Record == nil || len(f.recorder.created) != 1 {
		t.Fatalf("lost stream with a resolvable artifact must still succeed")
	}
}

func TestGenerateConnectionLostNoArtifact(t *testing.T) {
	f := newFixture()
	f.engine.awaitErr = comfy.ErrConnectionLost
	f.resolver.refs = nil
	f.resolver.err = &artifact.NoArtifactError{PromptID: "p-1", Dir: "/shared"}

	_, err := f.run(t)
	if !errors.Is(err, comfy.ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost surfaced", err)
	}
	if len(f.recorder.created) != 0 {
		t.Errorf("record created without artifact")
	}
}

func TestGenerateNoArtifact(t *testing.T) {
	f := newFixture()
	f.resolver.refs = nil
	f.resolver.err = &artifact.NoArtifactError{PromptID: "p-1", Dir: "/shared"}

	_, err := f.run(t)
	var na *artifact.NoArtifactError
	if !errors.As(err, &na) {
		t.Fatalf("err = %v, want NoArtifactError", err)
	}
	if len(f.recorder.finished) != 1 || f.recorder.finished[0].status != model.GenerationFailed {
		t.Errorf("finished events = %+v", f.recorder.finished)
	}
}

func TestGenerateRelocateFailure(t *testing.T) {
	f := newFixture()
	f.relocator.err = &artifact.RelocateError{Src: "/shared/out.png", Dst: "/stable", Err: errors.New("disk full")}

	_, err := f.run(t)
	var re *artifact.RelocateError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RelocateError", err)
	}
	if len(f.recorder.created) != 0 {
		t.Errorf("record created on relocate failure")
	}
}

func TestGeneratePersistFailure(t *testing.T) {
	f := newFixture()
	f.recorder.createErr = errors.New("db down")

	_, err := f.run(t)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.billing.committed) != 0 {
		t.Errorf("charge committed without a persisted record")
	}
}
