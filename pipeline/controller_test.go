package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/store"
	"autocast-pipeline/types"

	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeDiscoverer struct {
	batches [][]types.Topic
	err     error
	calls   int
	forced  []string
	used    []string
	resets  int
}

func (f *fakeDiscoverer) Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error) {
	f.forced = append(f.forced, forcedConcept)
	i := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	return f.batches[i], nil
}

func (f *fakeDiscoverer) MarkUsed(id string) { f.used = append(f.used, id) }

func (f *fakeDiscoverer) ResetHistory() { f.resets++ }

type fakeWriter struct {
	script *types.Script
	err    error
	calls  int
}

func (f *fakeWriter) Write(ctx context.Context, topic *types.Topic) (*types.Script, error) {
	f.calls++
	return f.script, f.err
}

type fakeProducer struct {
	thumbs   []string
	audio    string
	boards   []string
	intro    string
	audioErr error
	introErr error
}

func (f *fakeProducer) MakeThumbnails(ctx context.Context, topic *types.Topic, title, thumbnailText, outDir string) ([]string, error) {
	return f.thumbs, nil
}

func (f *fakeProducer) Synthesize(ctx context.Context, fullText, voiceID, outDir string) (string, error) {
	return f.audio, f.audioErr
}

func (f *fakeProducer) MakeStoryboards(ctx context.Context, topic *types.Topic, outline []string, outDir string) ([]string, error) {
	return f.boards, nil
}

func (f *fakeProducer) MakeIntro(ctx context.Context, topic *types.Topic, hook, outDir string) (string, error) {
	return f.intro, f.introErr
}

type fakeComposer struct {
	out   string
	err   error
	got   []types.Run
	calls int
}

func (f *fakeComposer) Render(ctx context.Context, run types.Run, outDir string) (string, error) {
	f.calls++
	f.got = append(f.got, run)
	return f.out, f.err
}

type fakePublisher struct {
	hasCred    bool
	id         string
	uploadErrs []error
	uploads    int
	selects    int
	cleared    bool
}

func (f *fakePublisher) HasCredential() bool { return f.hasCred }

func (f *fakePublisher) SelectCredential(ctx context.Context) error {
	f.selects++
	return nil
}

func (f *fakePublisher) ClearCredential() { f.cleared = true }

func (f *fakePublisher) Upload(ctx context.Context, videoFile, thumbnailRef string, script *types.Script, onProgress func(percent int)) (string, error) {
	i := f.uploads
	f.uploads++
	if i < len(f.uploadErrs) && f.uploadErrs[i] != nil {
		return "", f.uploadErrs[i]
	}
	return f.id, nil
}

// --- fixture ---

type fixture struct {
	ctrl   *Controller
	st     *store.Store
	disc   *fakeDiscoverer
	writer *fakeWriter
	prod   *fakeProducer
	comp   *fakeComposer
	pub    *fakePublisher

	sleeps   []time.Duration
	restarts int
}

func newFixture(t *testing.T) *fixture {
	cfg := &config.Config{}
	cfg.Paths.Output = t.TempDir()
	cfg.Assets.VoiceID = "en-US-GuyNeural"

	f := &fixture{
		st: store.New(),
		disc: &fakeDiscoverer{batches: [][]types.Topic{{
			{ID: "t1", Headline: "The Ocean's Hidden Engine", ViralityScore: 80},
		}}},
		writer: &fakeWriter{script: &types.Script{
			Title:         "The Ocean's Hidden Engine",
			ThumbnailText: "HIDDEN ENGINE",
			Hook:          "Something is moving down there.",
			Outline:       []string{"the vents", "the discovery"},
			FullScript:    "full narration text",
			Tags:          []string{"science"},
		}},
		prod: &fakeProducer{
			thumbs: []string{"out/thumb_00.jpg", "out/thumb_01.jpg"},
			audio:  "out/voice.wav",
			boards: []string{"out/sb_000.jpg", "out/sb_001.jpg"},
			intro:  "out/intro.mp4",
		},
		comp: &fakeComposer{out: "out/final_video.mp4"},
		pub:  &fakePublisher{hasCred: true, id: "vid123"},
	}

	f.ctrl = New(cfg, f.st, f.disc, f.writer, f.prod, f.comp, f.pub)
	f.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.ctrl.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		f.restarts++
		return time.AfterFunc(time.Hour, func() {})
	}
	return f
}

// runCycle is exercised synchronously so every assertion sees final state
func (f *fixture) cycle(t *testing.T, forcedConcept string, autonomous bool) {
	t.Helper()
	f.st.Reset(autonomous)
	f.st.SetStage(types.StageResearching)
	f.ctrl.runCycle(context.Background(), forcedConcept, t.TempDir())
}

func drainStages(ch <-chan types.Run) []types.Stage {
	var out []types.Stage
	for {
		select {
		case r := <-ch:
			out = append(out, r.Stage)
		default:
			return out
		}
	}
}

// --- tests ---

func TestCycle_AutonomousRunsThroughToCompleted(t *testing.T) {
	f := newFixture(t)
	runCh, cancel := f.st.Subscribe()
	defer cancel()

	f.cycle(t, "", true)

	snap := f.st.Snapshot()
	require.Equal(t, types.StageCompleted, snap.Stage)
	require.Equal(t, "vid123", snap.UploadedID)
	require.Equal(t, []string{"t1"}, f.disc.used)

	// autonomous runs bypass review entirely
	require.NotContains(t, drainStages(runCh), types.StageReview)

	// the render worked from a settled snapshot with every asset applied
	require.Contains(t, f.sleeps, settleDelay)
	require.Len(t, f.comp.got, 1)
	require.Equal(t, "out/voice.wav", f.comp.got[0].Assets.AudioURL)
	require.Equal(t, "out/thumb_00.jpg", f.comp.got[0].Assets.ThumbnailURL)
	require.Equal(t, "out/intro.mp4", f.comp.got[0].Assets.VideoURL)

	// next cycle scheduled
	require.Equal(t, 1, f.restarts)
}

func TestCycle_ManualRunPausesAtReview(t *testing.T) {
	f := newFixture(t)

	f.cycle(t, "", false)

	require.Equal(t, types.StageReview, f.st.Stage())
	require.Zero(t, f.comp.calls)
	require.Zero(t, f.pub.uploads)
	require.Zero(t, f.restarts)
}

func TestCycle_ForcedConceptIgnoredWhenAutonomous(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, "volcanoes", true)
	require.Equal(t, "", f.disc.forced[0])

	f = newFixture(t)
	f.cycle(t, "volcanoes", false)
	require.Equal(t, "volcanoes", f.disc.forced[0])
}

func TestCycle_NoCredentialPausesAtReviewEvenWhenAutonomous(t *testing.T) {
	f := newFixture(t)
	f.pub.hasCred = false

	f.cycle(t, "", true)

	require.Equal(t, types.StageReview, f.st.Stage())
	require.Zero(t, f.comp.calls)
	require.Zero(t, f.pub.uploads)
}

func TestCycle_EmptyDiscoveryReschedulesResearch(t *testing.T) {
	f := newFixture(t)
	f.disc.batches = [][]types.Topic{
		nil,
		{{ID: "t2", Headline: "Second pass", ViralityScore: 50}},
	}

	f.cycle(t, "", false)

	require.Equal(t, 2, f.disc.calls)
	require.Contains(t, f.sleeps, researchRetryDelay)
	require.Equal(t, "t2", f.st.Snapshot().Topic.ID)
}

func TestCycle_ScriptFailureAbortsToIdle(t *testing.T) {
	f := newFixture(t)
	f.writer.err = errors.New("model rejected the prompt")

	f.cycle(t, "", true)

	require.Equal(t, types.StageIdle, f.st.Stage())
	require.Zero(t, f.comp.calls)

	var sawError bool
	for _, e := range f.st.Entries() {
		if e.Severity == types.SeverityError {
			sawError = true
		}
	}
	require.True(t, sawError, "fatal failures must be logged before the stage transition")
}

func TestCycle_ProductionFailureKeepsAssetsAndPausesAtReview(t *testing.T) {
	f := newFixture(t)
	f.prod.audioErr = errors.New("tts backend gone")

	f.cycle(t, "", true)

	snap := f.st.Snapshot()
	require.Equal(t, types.StageReview, snap.Stage)
	// thumbnails landed before the failure and survive it
	require.Equal(t, "out/thumb_00.jpg", snap.Assets.ThumbnailURL)
	require.Empty(t, snap.Assets.AudioURL)
	require.Zero(t, f.comp.calls)
}

func TestCycle_IntroFailureIsRecoverable(t *testing.T) {
	f := newFixture(t)
	f.prod.introErr = errors.New("render farm rejected the job")

	f.cycle(t, "", true)

	require.Equal(t, types.StageCompleted, f.st.Stage())
	require.Len(t, f.comp.got, 1)
	require.Empty(t, f.comp.got[0].Assets.VideoURL, "missing intro must render without a clip")
}

func TestCycle_AuthFailureOnUploadClearsCredential(t *testing.T) {
	f := newFixture(t)
	f.pub.uploadErrs = []error{errors.New("googleapi: Error 401: unauthorized")}

	f.cycle(t, "", true)

	require.Equal(t, types.StageReview, f.st.Stage())
	require.True(t, f.pub.cleared)
	require.Zero(t, f.restarts)
}

func TestCycle_CredentialNotFoundTriggersRelinkAndRetry(t *testing.T) {
	f := newFixture(t)
	f.pub.uploadErrs = []error{errors.New("requested entity was not found")}

	f.cycle(t, "", true)

	require.Equal(t, 1, f.pub.selects, "gateway must be asked to re-link once")
	require.Equal(t, 2, f.pub.uploads)
	require.Equal(t, types.StageCompleted, f.st.Stage())
	require.Equal(t, "vid123", f.st.Snapshot().UploadedID)
}

func TestStart_RefusedWhileRunActive(t *testing.T) {
	f := newFixture(t)
	f.st.SetStage(types.StageRendering)

	require.False(t, f.ctrl.Start(context.Background(), ""))
}

func TestStart_CancelsPendingRestartTimer(t *testing.T) {
	f := newFixture(t)
	f.ctrl.restartTimer = time.AfterFunc(time.Hour, func() {})
	f.disc.err = errors.New("no network") // ends the spawned cycle quickly

	require.True(t, f.ctrl.Start(context.Background(), ""))

	f.ctrl.mu.Lock()
	timer := f.ctrl.restartTimer
	f.ctrl.mu.Unlock()
	require.Nil(t, timer)

	require.Eventually(t, func() bool {
		return f.st.Stage() == types.StageIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSetAutonomous_OffCancelsPendingRestart(t *testing.T) {
	f := newFixture(t)
	f.ctrl.restartTimer = time.AfterFunc(time.Hour, func() {})

	f.ctrl.SetAutonomous(false)

	f.ctrl.mu.Lock()
	timer := f.ctrl.restartTimer
	f.ctrl.mu.Unlock()
	require.Nil(t, timer)
	require.False(t, f.st.Autonomous())
}

func TestApprove_OnlyFromReview(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.ctrl.Approve(context.Background()))

	f.st.SetStage(types.StageReview)
	f.pub.hasCred = false
	require.False(t, f.ctrl.Approve(context.Background()))
	require.Zero(t, f.comp.calls)
}

func TestApprove_RendersAndPublishesFromReview(t *testing.T) {
	f := newFixture(t)
	f.st.SetScript(f.writer.script)
	audio := "out/voice.wav"
	f.st.ApplyAssets(types.AssetPatch{AudioURL: &audio})
	f.st.SetStage(types.StageReview)

	require.True(t, f.ctrl.Approve(context.Background()))

	require.Eventually(t, func() bool {
		return f.st.Stage() == types.StageCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "vid123", f.st.Snapshot().UploadedID)
}

func TestApprove_ConcurrentApprovalsPublishOnce(t *testing.T) {
	f := newFixture(t)
	f.st.SetScript(f.writer.script)
	audio := "out/voice.wav"
	f.st.ApplyAssets(types.AssetPatch{AudioURL: &audio})
	f.st.SetStage(types.StageReview)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.ctrl.Approve(context.Background()) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), accepted.Load(), "only one approval may claim the run")

	require.Eventually(t, func() bool {
		return f.st.Stage() == types.StageCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, f.pub.uploads)
	require.Equal(t, 1, f.comp.calls)
}

func TestCycle_CredentialNotFoundOutsideUploadNeverRelinks(t *testing.T) {
	f := newFixture(t)
	f.disc.err = errors.New("requested entity was not found")

	f.cycle(t, "", true)

	require.Equal(t, types.StageIdle, f.st.Stage())
	require.Zero(t, f.pub.selects, "discovery failures must not trigger a credential re-link")
}

func TestResetHistory_DelegatesAndLogs(t *testing.T) {
	f := newFixture(t)

	f.ctrl.ResetHistory()

	require.Equal(t, 1, f.disc.resets)
	var logged bool
	for _, e := range f.st.Entries() {
		if e.Message == "Topic history cleared" {
			logged = true
		}
	}
	require.True(t, logged)
}

func TestSelectTopic(t *testing.T) {
	require.Nil(t, selectTopic(nil))

	got := selectTopic([]types.Topic{
		{ID: "a", ViralityScore: 10},
		{ID: "b", ViralityScore: 90},
		{ID: "c", ViralityScore: 40},
	})
	require.Equal(t, "b", got.ID)

	// ties go to the earlier candidate
	got = selectTopic([]types.Topic{
		{ID: "a", ViralityScore: 90},
		{ID: "b", ViralityScore: 90},
	})
	require.Equal(t, "a", got.ID)
}

func TestIsAuthError(t *testing.T) {
	require.True(t, isAuthError(errors.New("googleapi: Error 401: Unauthorized")))
	require.True(t, isAuthError(errors.New("oauth2: invalid_grant")))
	require.False(t, isAuthError(errors.New("connection reset by peer")))
}
