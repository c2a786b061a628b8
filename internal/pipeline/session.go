package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/fnx/internal/fault"
	"github.com/MrWong99/fnx/internal/observe"
	"github.com/MrWong99/fnx/internal/overlay"
	"github.com/MrWong99/fnx/internal/quality"
	"github.com/MrWong99/fnx/internal/rules"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// process runs the strictly sequential chain for one recording: transcribe,
// maybe transform, filter, type, count. The recording is removed on every
// path.
func (c *Coordinator) process(ctx context.Context, path string, started time.Time, pol Policy) Result {
	defer c.removeRecording(path)

	ctx, span := observe.StartSpan(ctx, "pipeline.session")
	defer span.End()
	log := observe.Logger(ctx)

	res := Result{Started: started}
	rule, hasRule := c.activeRule(ctx)
	gated := hasRule && pol.RulesRequirePro && !c.cfg.Gate.CanUseRules()
	if hasRule {
		res.Rule = rule.Name
		res.Translate = !gated && rule.UseTranslation
		res.Transform = !gated && rule.Transforms() && c.cfg.Transformer != nil
	}
	span.SetAttributes(
		attribute.String("rule", res.Rule),
		attribute.Bool("translate", res.Translate),
		attribute.Bool("transform", res.Transform),
		attribute.Bool("pro_required", gated),
	)
	if hasRule && rule.Transforms() && !gated && c.cfg.Transformer == nil {
		log.Warn("pipeline: rule has a prompt but no language model is configured", "rule", rule.Name)
	}

	fail := func(err error) Result {
		c.cfg.Overlay.Show(overlay.Hidden)
		observe.Fail(span, err)
		logFailure(ctx, "pipeline: session failed", err)
		res.Err = err
		res.Outcome = OutcomeError
		if fault.Classify(err) == fault.KindCanceled {
			res.Outcome = OutcomeCanceled
		}
		return res
	}

	text, err := c.transcribe(ctx, path, res.Translate, &res)
	if err != nil {
		return fail(err)
	}
	if res.Transform {
		if text, err = c.transform(ctx, text, rule.Prompt, &res); err != nil {
			return fail(err)
		}
	}

	verdict := quality.Evaluate(text)
	if !verdict.OK {
		c.cfg.Overlay.Show(overlay.Hidden)
		c.cfg.Metrics.RecordRejection(ctx, string(OutcomeLowQuality))
		log.Info("pipeline: transcription discarded", "reason", string(verdict.Reason))
		res.Outcome = OutcomeLowQuality
		res.Reason = verdict.Reason
		res.Err = fault.Reject(string(verdict.Reason))
		return res
	}
	text = strings.TrimSpace(text)

	if err := c.inject(ctx, text, &res); err != nil {
		if errors.Is(err, context.Canceled) {
			return fail(err)
		}
		// Typing is best effort; the text may have landed partially.
		log.Warn("pipeline: inject incomplete", "err", err)
	}
	res.Chars = utf8.RuneCountInString(text)

	res.Outcome = OutcomeDone
	if gated {
		res.Outcome = OutcomeProRequired
		c.cfg.Metrics.RecordRejection(ctx, string(OutcomeProRequired))
		c.cfg.Overlay.Show(overlay.ProRequired)
	} else {
		c.cfg.Overlay.Show(overlay.Done)
	}

	if !gated || pol.ProRequiredCountsUsage {
		if err := c.cfg.Gate.IncrementUsage(context.WithoutCancel(ctx)); err != nil {
			log.Error("pipeline: record usage", "err", err)
		} else {
			res.Counted = true
		}
	}

	log.Info("pipeline: session complete",
		"outcome", string(res.Outcome),
		"rule", res.Rule,
		"chars", res.Chars,
		"remaining", c.cfg.Gate.RemainingToday(),
	)
	return res
}

// activeRule loads the active rule. A store failure is logged and treated
// as no rule so the user still gets a transcription.
func (c *Coordinator) activeRule(ctx context.Context) (rules.Rule, bool) {
	if c.cfg.Rules == nil {
		return rules.Rule{}, false
	}
	r, ok, err := c.cfg.Rules.Active(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("pipeline: load active rule", "err", err)
		return rules.Rule{}, false
	}
	return r, ok
}

func (c *Coordinator) transcribe(ctx context.Context, path string, translate bool, res *Result) (string, error) {
	ctx, stage := observe.StartStage(ctx, "pipeline.transcribe", c.cfg.Metrics.STTDuration)
	text, err := c.cfg.Transcriber.Transcribe(ctx, stt.Request{AudioPath: path, Translate: translate})
	res.TranscribeLatency = stage.End(err)
	c.recordProvider(ctx, c.cfg.STTName, "stt", err)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}

func (c *Coordinator) transform(ctx context.Context, text, prompt string, res *Result) (string, error) {
	ctx, stage := observe.StartStage(ctx, "pipeline.transform", c.cfg.Metrics.TransformDuration)
	out, err := c.cfg.Transformer.Transform(ctx, text, prompt)
	res.TransformLatency = stage.End(err)
	c.recordProvider(ctx, c.cfg.LLMName, "llm", err)
	return out, err
}

func (c *Coordinator) inject(ctx context.Context, text string, res *Result) error {
	ctx, stage := observe.StartStage(ctx, "pipeline.inject", c.cfg.Metrics.InjectDuration)
	err := c.cfg.Injector.Type(ctx, text)
	res.InjectLatency = stage.End(err)
	return err
}

func (c *Coordinator) recordProvider(ctx context.Context, provider, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		c.cfg.Metrics.RecordProviderError(ctx, provider, kind)
	}
	c.cfg.Metrics.RecordProviderRequest(ctx, provider, kind, status)
}
