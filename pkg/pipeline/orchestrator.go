package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/analysis"
	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/cache"
	"callaudit-server/pkg/diarize"
	"callaudit-server/pkg/errors"
	"callaudit-server/pkg/fingerprint"
	"callaudit-server/pkg/metrics"
	"callaudit-server/pkg/stt"
)

// Orchestrator sequences fingerprinting, cache resolution, collaborator
// invocation, and derived post-processing for every analysis stage. Each
// stage is an independently cacheable unit of work keyed by
// (stage, fingerprint).
type Orchestrator struct {
	logger *logrus.Entry

	cache     *cache.TieredCache
	providers *stt.Registry

	compliance   *analysis.ComplianceChecker
	sensitive    *analysis.SensitiveInfoDetector
	categorizer  *analysis.Categorizer
	roleAssigner *diarize.RoleAssigner

	notifiers []Notifier
}

// New creates the pipeline orchestrator.
func New(
	logger *logrus.Logger,
	tiered *cache.TieredCache,
	providers *stt.Registry,
	compliance *analysis.ComplianceChecker,
	sensitive *analysis.SensitiveInfoDetector,
	categorizer *analysis.Categorizer,
	roleAssigner *diarize.RoleAssigner,
) *Orchestrator {
	return &Orchestrator{
		logger:       logger.WithField("component", "pipeline"),
		cache:        tiered,
		providers:    providers,
		compliance:   compliance,
		sensitive:    sensitive,
		categorizer:  categorizer,
		roleAssigner: roleAssigner,
	}
}

// AddNotifier registers a stage event sink.
func (o *Orchestrator) AddNotifier(n Notifier) {
	o.notifiers = append(o.notifiers, n)
}

// Run executes one named stage over raw audio bytes and returns its
// artifact, cached or freshly computed.
func (o *Orchestrator) Run(ctx context.Context, stage artifact.Stage, audio []byte) (*artifact.Artifact, error) {
	if len(audio) == 0 {
		return nil, errors.NewInvalidInput("audio input is empty")
	}

	fp := fingerprint.Compute(audio)
	start := time.Now()
	stopTimer := metrics.ObserveStageLatency(stage.String())
	defer stopTimer()

	computed := false
	art, err := o.resolve(ctx, stage, fp, audio, &computed)
	if err != nil {
		code := "INTERNAL"
		var serr *errors.Error
		if errors.As(err, &serr) && serr.GetCode() != "" {
			code = serr.GetCode()
		}
		metrics.RecordStageError(stage.String(), code)
		metrics.RecordStageRequest(stage.String(), "error")
		return nil, err
	}

	metrics.RecordStageRequest(stage.String(), "ok")
	o.notify(StageEvent{
		Stage:       stage,
		Fingerprint: fp,
		VersionID:   art.VersionID,
		CacheHit:    !computed,
		Duration:    time.Since(start),
		Timestamp:   time.Now().UTC(),
	})

	return art, nil
}

func (o *Orchestrator) notify(event StageEvent) {
	for _, n := range o.notifiers {
		n.NotifyStage(event)
	}
}

// resolve dispatches to the per-stage compute function through the cache.
func (o *Orchestrator) resolve(ctx context.Context, stage artifact.Stage, fp fingerprint.Fingerprint, audio []byte, computed *bool) (*artifact.Artifact, error) {
	track := func(fn cache.ComputeFunc) cache.ComputeFunc {
		return func(ctx context.Context) (interface{}, error) {
			*computed = true
			return fn(ctx)
		}
	}

	switch stage {
	case artifact.StageTranscription:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			return o.computeTranscription(ctx, audio)
		}))
	case artifact.StageCompliance:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return o.compliance.Check(tr.Text), nil
		}))
	case artifact.StageProfanity:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return &ProfanityReport{Profanity: o.sensitive.DetectProfanity(tr.Text)}, nil
		}))
	case artifact.StagePII:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return &PIIReport{Detected: o.sensitive.FindPII(tr.Text)}, nil
		}))
	case artifact.StageMasked:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return &MaskedTranscript{MaskedText: o.sensitive.MaskAll(tr.Text)}, nil
		}))
	case artifact.StageSentiment:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return o.computeSentiment(ctx, tr.Text)
		}))
	case artifact.StageCategory:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return &CategoryResult{Category: o.categorizer.Categorize(tr.Text)}, nil
		}))
	case artifact.StageDiarization:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			tr, err := o.transcription(ctx, fp, audio)
			if err != nil {
				return nil, err
			}
			return o.computeDiarization(ctx, audio, tr)
		}))
	case artifact.StageAnalysis:
		return o.cache.Resolve(ctx, stage, fp, track(func(ctx context.Context) (interface{}, error) {
			return o.computeFullAnalysis(ctx, fp, audio)
		}))
	default:
		return nil, errors.NewInvalidInput("unknown stage").WithField("stage", stage.String())
	}
}

// transcription resolves the transcription stage through the cache, so the
// expensive speech-to-text call runs at most once per fingerprint no matter
// which derived stage needs it.
func (o *Orchestrator) transcription(ctx context.Context, fp fingerprint.Fingerprint, audio []byte) (*stt.Transcription, error) {
	art, err := o.cache.Resolve(ctx, artifact.StageTranscription, fp, func(ctx context.Context) (interface{}, error) {
		return o.computeTranscription(ctx, audio)
	})
	if err != nil {
		return nil, err
	}

	var tr stt.Transcription
	if err := art.Decode(&tr); err != nil {
		return nil, errors.Wrap(err, "stored transcription is not decodable")
	}
	return &tr, nil
}

func (o *Orchestrator) computeTranscription(ctx context.Context, audio []byte) (*stt.Transcription, error) {
	provider, err := o.providers.Transcriber("")
	if err != nil {
		return nil, errors.NewCollaboratorFailure("transcription", err)
	}

	tr, err := provider.Transcribe(ctx, audio)
	if err != nil {
		return nil, errors.NewCollaboratorFailure("transcription", err).WithField("provider", provider.Name())
	}
	if tr.Empty() {
		// An empty transcript is a collaborator failure, not a cacheable
		// result: the stage stays retryable.
		return nil, errors.NewCollaboratorFailure("transcription", errors.ErrEmptyTranscription).
			WithField("provider", provider.Name())
	}

	return tr, nil
}

func (o *Orchestrator) computeSentiment(ctx context.Context, text string) (*stt.Sentiment, error) {
	provider, err := o.providers.Sentiment("")
	if err != nil {
		return nil, errors.NewCollaboratorFailure("sentiment", err)
	}

	result, err := provider.Analyze(ctx, text)
	if err != nil {
		return nil, errors.NewCollaboratorFailure("sentiment", err).WithField("provider", provider.Name())
	}
	return result, nil
}

// computeDiarization runs the diarization collaborator, assigns roles from
// transcript evidence, and derives conversation metrics. Turns are sorted
// chronologically here; the metrics engine requires ordered input and does
// not sort.
func (o *Orchestrator) computeDiarization(ctx context.Context, audio []byte, tr *stt.Transcription) (*DiarizationResult, error) {
	provider, err := o.providers.Diarizer("")
	if err != nil {
		return nil, errors.NewCollaboratorFailure("diarization", err)
	}

	turns, err := provider.Diarize(ctx, audio)
	if err != nil {
		return nil, errors.NewCollaboratorFailure("diarization", err).WithField("provider", provider.Name())
	}

	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Start < turns[j].Start
	})

	spans := make([]diarize.Span, len(tr.Segments))
	for i, seg := range tr.Segments {
		spans[i] = diarize.Span{Start: seg.Start, End: seg.End, Text: seg.Text}
	}

	roleTurns, err := o.roleAssigner.AssignRoles(turns, spans)
	if err != nil {
		return nil, err
	}

	m, err := diarize.ComputeMetrics(roleTurns)
	if err != nil {
		return nil, err
	}

	return &DiarizationResult{Turns: roleTurns, Metrics: *m}, nil
}

// computeFullAnalysis composes every sub-stage into one combined artifact.
// Sub-stage failures degrade to error markers; only a failed transcription
// aborts the analysis, because nearly everything downstream depends on it.
func (o *Orchestrator) computeFullAnalysis(ctx context.Context, fp fingerprint.Fingerprint, audio []byte) (*FullAnalysis, error) {
	tr, err := o.transcription(ctx, fp, audio)
	if err != nil {
		return nil, err
	}

	result := &FullAnalysis{
		MaskedTranscript: o.sensitive.MaskAll(tr.Text),
		DetectedPII:      o.sensitive.FindPII(tr.Text),
		ComplianceMarkers: map[string][]analysis.TimeMarker{
			"disclaimers": o.compliance.TimeMarkers(tr.Segments, o.compliance.Phrases().Disclaimers),
		},
		Category: o.categorizer.Categorize(tr.Text),
		Errors:   make(map[string]string),
	}

	if sentiment, err := o.computeSentiment(ctx, tr.Text); err != nil {
		o.logger.WithError(err).Warn("Sentiment sub-stage failed, degrading analysis")
		result.Errors["sentiment"] = err.Error()
	} else {
		result.Sentiment = sentiment
	}

	if diarization, err := o.computeDiarization(ctx, audio, tr); err != nil {
		o.logger.WithError(err).Warn("Diarization sub-stage failed, degrading analysis")
		result.Errors["diarization"] = err.Error()
	} else {
		result.DiarizationMetrics = &diarization.Metrics
	}

	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	return result, nil
}
