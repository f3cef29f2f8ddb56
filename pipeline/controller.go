// Package pipeline sequences one production run through its stages:
// Researching → Scripting → GeneratingAssets → {Review | Rendering} →
// Uploading → Completed. The controller owns all retries, fallbacks and the
// auto-loop, and makes every downstream decision from the store's
// synchronously-updated state, never from an observer channel.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/retry"
	"autocast-pipeline/store"
	"autocast-pipeline/types"

	"github.com/google/uuid"
)

// Fixed scheduling delays
const (
	// researchRetryDelay reschedules the whole Researching stage when
	// discovery returns zero candidates
	researchRetryDelay = 30 * time.Second
	// settleDelay lets trailing asset writes land before auto-publishing
	settleDelay = 3 * time.Second
	// restartDelay spaces autonomous cycles apart
	restartDelay = 10 * time.Second
)

// authPatterns mark a publish failure as an authentication error, which
// invalidates the stored credential
var authPatterns = []string{
	"unauthorized",
	"401",
	"invalid_grant",
	"invalid credentials",
	"authentication",
	"access token",
}

// Discoverer produces topic candidates for one research pass
type Discoverer interface {
	Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error)
	MarkUsed(id string)
	ResetHistory()
}

// ScriptWriter generates the full script for a topic
type ScriptWriter interface {
	Write(ctx context.Context, topic *types.Topic) (*types.Script, error)
}

// AssetProducer runs the four production sub-stages
type AssetProducer interface {
	MakeThumbnails(ctx context.Context, topic *types.Topic, title, thumbnailText, outDir string) ([]string, error)
	Synthesize(ctx context.Context, fullText, voiceID, outDir string) (string, error)
	MakeStoryboards(ctx context.Context, topic *types.Topic, outline []string, outDir string) ([]string, error)
	MakeIntro(ctx context.Context, topic *types.Topic, hook, outDir string) (string, error)
}

// Composer renders a finished snapshot into one media blob
type Composer interface {
	Render(ctx context.Context, run types.Run, outDir string) (string, error)
}

// Publisher is the external publish gateway plus its credential surface
type Publisher interface {
	HasCredential() bool
	SelectCredential(ctx context.Context) error
	ClearCredential()
	Upload(ctx context.Context, videoFile, thumbnailRef string, script *types.Script, onProgress func(percent int)) (string, error)
}

// Controller is the stage state machine for the single live run
type Controller struct {
	cfg       *config.Config
	store     *store.Store
	discover  Discoverer
	writer    ScriptWriter
	producer  AssetProducer
	composer  Composer
	publisher Publisher

	mu           sync.Mutex
	restartTimer *time.Timer
	runDir       string

	// sleep and afterFunc are swappable in tests
	sleep     func(ctx context.Context, d time.Duration) error
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// New wires a Controller over its collaborators
func New(cfg *config.Config, st *store.Store, discover Discoverer, writer ScriptWriter,
	producer AssetProducer, composer Composer, publisher Publisher) *Controller {
	return &Controller{
		cfg:       cfg,
		store:     st,
		discover:  discover,
		writer:    writer,
		producer:  producer,
		composer:  composer,
		publisher: publisher,
		sleep:     sleepCtx,
		afterFunc: time.AfterFunc,
	}
}

// Start begins a new run. It is a no-op unless the current stage allows a
// fresh cycle; at most one run is ever active. A pending auto-restart timer
// is cancelled so a manual start can never race a scheduled one.
func (c *Controller) Start(ctx context.Context, forcedConcept string) bool {
	c.mu.Lock()
	if !c.store.Stage().Startable() {
		c.mu.Unlock()
		log.Printf("[pipeline] Start ignored — run already active (stage %s)", c.store.Stage())
		return false
	}
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}

	autonomous := c.store.Autonomous()
	c.store.Reset(autonomous)
	c.store.SetStage(types.StageResearching)
	c.runDir = filepath.Join(c.cfg.Paths.Output, uuid.NewString()[:8])
	runDir := c.runDir
	c.mu.Unlock()

	go c.runCycle(ctx, forcedConcept, runDir)
	return true
}

// SetAutonomous flips the auto-loop flag. Turning it off also cancels any
// pending scheduled restart.
func (c *Controller) SetAutonomous(on bool) {
	c.store.SetAutonomous(on)
	if !on {
		c.mu.Lock()
		if c.restartTimer != nil {
			c.restartTimer.Stop()
			c.restartTimer = nil
		}
		c.mu.Unlock()
	}
}

// Approve resumes a run paused at Review: render and publish from a fresh
// snapshot, so a human can retry publishing without redoing production.
// The guard and the Review → Rendering transition happen under the same
// lock, so overlapping approvals cannot both claim the run.
func (c *Controller) Approve(ctx context.Context) bool {
	c.mu.Lock()
	if c.store.Stage() != types.StageReview {
		stage := c.store.Stage()
		c.mu.Unlock()
		log.Printf("[pipeline] Approve ignored — stage is %s", stage)
		return false
	}
	if !c.publisher.HasCredential() {
		c.mu.Unlock()
		c.store.Log(types.SeverityError, "Cannot publish: no YouTube credential linked")
		return false
	}
	c.store.SetStage(types.StageRendering)
	runDir := c.runDir
	c.mu.Unlock()

	captured := c.store.Snapshot()
	go c.renderAndPublish(ctx, captured, runDir)
	return true
}

// runCycle drives one run from research through publish-or-review
func (c *Controller) runCycle(ctx context.Context, forcedConcept, runDir string) {
	// Researching
	c.store.Log(types.SeverityThinking, "Researching topics...")

	effectiveForced := ""
	if forcedConcept != "" && !c.store.Autonomous() {
		effectiveForced = forcedConcept
	}

	var topic *types.Topic
	for {
		candidates, err := retry.Do(ctx, "topic discovery", c.retryOpts(),
			func(ctx context.Context) ([]types.Topic, error) {
				return c.discover.Discover(ctx, effectiveForced)
			})
		if err != nil {
			c.failStage(fmt.Errorf("topic discovery: %w", err))
			return
		}

		topic = selectTopic(candidates)
		if topic != nil {
			break
		}

		// The one stage that self-retries by rescheduling itself whole
		c.store.Log(types.SeverityInfo, fmt.Sprintf("⚠️ No topics found — retrying research in %s", researchRetryDelay))
		if err := c.sleep(ctx, researchRetryDelay); err != nil {
			return
		}
	}

	c.discover.MarkUsed(topic.ID)
	c.store.SetTopic(topic)
	c.store.Log(types.SeveritySuccess, fmt.Sprintf("Selected topic: %q (virality %.0f)", topic.Headline, topic.ViralityScore))

	// Scripting — failure is fatal, back to Idle
	c.store.SetStage(types.StageScripting)
	c.store.Log(types.SeverityThinking, "Writing script...")

	script, err := retry.Do(ctx, "script generation", c.retryOpts(),
		func(ctx context.Context) (*types.Script, error) {
			return c.writer.Write(ctx, topic)
		})
	if err != nil {
		c.failStage(fmt.Errorf("script generation: %w", err))
		return
	}

	// Committed synchronously: later stages can never observe a nil script
	c.store.SetScript(script)
	c.store.Log(types.SeveritySuccess, fmt.Sprintf("Script ready: %q (%d outline scenes)", script.Title, len(script.Outline)))

	// GeneratingAssets — four sub-stages in fixed order
	c.store.SetStage(types.StageGeneratingAssets)
	if !c.produceAssets(ctx, topic, script, runDir) {
		return
	}

	// Publish decision from the freshest state, never a stale observer value
	snap := c.store.Snapshot()
	if !c.publisher.HasCredential() {
		c.store.Log(types.SeverityInfo, "No YouTube credential linked — pausing at Review")
		c.store.SetStage(types.StageReview)
		return
	}
	if !snap.Autonomous {
		c.store.Log(types.SeverityInfo, "Assets ready — waiting for approval")
		c.store.SetStage(types.StageReview)
		return
	}

	// Let any trailing asset writes settle, then capture an explicit
	// snapshot that the render works from end to end
	if err := c.sleep(ctx, settleDelay); err != nil {
		return
	}
	captured := c.store.Snapshot()
	c.renderAndPublish(ctx, captured, runDir)
}

// produceAssets runs the four sub-stages, each patching exactly one bundle
// field. Reports false when the run stopped.
func (c *Controller) produceAssets(ctx context.Context, topic *types.Topic, script *types.Script, runDir string) bool {
	// Thumbnails
	c.store.Log(types.SeverityThinking, "Generating thumbnail variants...")
	variants, err := retry.Do(ctx, "thumbnail generation", c.retryOpts(),
		func(ctx context.Context) ([]string, error) {
			return c.producer.MakeThumbnails(ctx, topic, script.Title, script.ThumbnailText, filepath.Join(runDir, "thumbnails"))
		})
	if err != nil {
		c.failProduction(fmt.Errorf("thumbnail generation: %w", err))
		return false
	}
	patch := types.AssetPatch{ThumbnailVariants: variants}
	if len(variants) > 0 {
		patch.ThumbnailURL = &variants[0]
	}
	c.store.ApplyAssets(patch)
	c.store.Log(types.SeveritySuccess, fmt.Sprintf("%d thumbnail variants ready", len(variants)))

	// Voiceover — its duration later drives the whole render timeline
	c.store.Log(types.SeverityThinking, "Synthesizing voiceover...")
	audioRef, err := retry.Do(ctx, "voiceover synthesis", c.retryOpts(),
		func(ctx context.Context) (string, error) {
			return c.producer.Synthesize(ctx, script.FullScript, c.cfg.Assets.VoiceID, filepath.Join(runDir, "audio"))
		})
	if err != nil {
		c.failProduction(fmt.Errorf("voiceover synthesis: %w", err))
		return false
	}
	c.store.ApplyAssets(types.AssetPatch{AudioURL: &audioRef})
	c.store.Log(types.SeveritySuccess, "Voiceover ready")

	// Storyboard — per-item retries happen inside the batch
	c.store.Log(types.SeverityThinking, "Generating storyboard images...")
	boards, err := c.producer.MakeStoryboards(ctx, topic, script.Outline, filepath.Join(runDir, "storyboard"))
	if err != nil {
		c.failProduction(fmt.Errorf("storyboard generation: %w", err))
		return false
	}
	c.store.ApplyAssets(types.AssetPatch{StoryboardURLs: boards})
	c.store.Log(types.SeveritySuccess, fmt.Sprintf("%d storyboard images ready", len(boards)))

	// Intro video — the only recoverable sub-stage
	c.store.Log(types.SeverityThinking, "Generating intro video...")
	introRef, err := retry.Do(ctx, "intro video generation", c.retryOpts(),
		func(ctx context.Context) (string, error) {
			return c.producer.MakeIntro(ctx, topic, script.Hook, filepath.Join(runDir, "intro"))
		})
	if err != nil {
		c.store.Log(types.SeverityInfo, fmt.Sprintf("⚠️ Intro video failed (%v) — the thumbnail will cover the intro", err))
	} else {
		c.store.ApplyAssets(types.AssetPatch{VideoURL: &introRef})
		c.store.Log(types.SeveritySuccess, "Intro video ready")
	}
	return true
}

// renderAndPublish runs the captured snapshot through the compositor and
// the publish gateway. Any failure demotes the run to Review, preserving
// the produced assets for a human retry.
func (c *Controller) renderAndPublish(ctx context.Context, captured types.Run, runDir string) {
	c.store.SetStage(types.StageRendering)
	c.store.Log(types.SeverityThinking, "Rendering video...")

	blob, err := c.composer.Render(ctx, captured, filepath.Join(runDir, "render"))
	if err != nil {
		c.failPublish(fmt.Errorf("render: %w", err))
		return
	}
	c.store.Log(types.SeveritySuccess, "Render complete")

	c.store.SetStage(types.StageUploading)
	c.store.Log(types.SeverityThinking, "Uploading to YouTube...")

	id, err := retry.Do(ctx, "youtube upload", c.uploadRetryOpts(),
		func(ctx context.Context) (string, error) {
			return c.publisher.Upload(ctx, blob, captured.Assets.ThumbnailURL, captured.Script,
				func(percent int) {
					log.Printf("[upload] Progress: %d%%", percent)
				})
		})
	if err != nil {
		c.failPublish(fmt.Errorf("upload: %w", err))
		return
	}

	c.store.SetUploadedID(id)
	c.store.SetStage(types.StageCompleted)
	c.store.Log(types.SeveritySuccess, "Published: https://www.youtube.com/watch?v="+id)

	if c.store.Autonomous() {
		c.scheduleRestart(ctx)
	}
}

// scheduleRestart queues the next autonomous cycle. The timer is cancelled
// if a human starts a run (or disables autonomous mode) before it fires.
func (c *Controller) scheduleRestart(ctx context.Context) {
	c.store.Log(types.SeverityInfo, fmt.Sprintf("Autonomous mode: next cycle in %s", restartDelay))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartTimer = c.afterFunc(restartDelay, func() {
		if !c.store.Autonomous() {
			return
		}
		c.Start(ctx, "")
	})
}

// ResetHistory clears the used-topic log so past topics may be picked again
func (c *Controller) ResetHistory() {
	c.discover.ResetHistory()
	c.store.Log(types.SeverityInfo, "Topic history cleared")
}

// failStage handles a fatal research/script failure: the run is aborted
func (c *Controller) failStage(err error) {
	c.store.Log(types.SeverityError, err.Error())
	c.store.SetStage(types.StageIdle)
}

// failProduction preserves produced assets so a human can retry just the
// missing piece
func (c *Controller) failProduction(err error) {
	c.store.Log(types.SeverityError, err.Error())
	c.store.SetStage(types.StageReview)
}

// failPublish demotes to Review; an auth failure also invalidates the
// stored credential so the next attempt forces a re-link
func (c *Controller) failPublish(err error) {
	c.store.Log(types.SeverityError, err.Error())
	if isAuthError(err) {
		c.publisher.ClearCredential()
		c.store.Log(types.SeverityInfo, "YouTube credential cleared — re-link before publishing")
	}
	c.store.SetStage(types.StageReview)
}

func (c *Controller) retryOpts() retry.Options {
	return retry.Options{Sleep: c.sleep}
}

// uploadRetryOpts attaches the interactive re-link hook. Only the publish
// call uses the stored credential, so only it may trigger a re-link.
func (c *Controller) uploadRetryOpts() retry.Options {
	return retry.Options{
		Sleep:    c.sleep,
		OnReauth: c.publisher.SelectCredential,
	}
}

// selectTopic applies the selection policy: highest virality score wins,
// ties broken by source order (first wins)
func selectTopic(candidates []types.Topic) *types.Topic {
	if len(candidates) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].ViralityScore > candidates[best].ViralityScore {
			best = i
		}
	}
	pick := candidates[best]
	return &pick
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
