package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/prompt"
	"proxyencoder/internal/proxypath"
	"proxyencoder/internal/reconcile"
	"proxyencoder/internal/services"
	"proxyencoder/internal/testsupport"
)

type fakeLinker struct {
	fail     map[string]bool
	linked   []string
	relinked map[string]string
}

func newFakeLinker(failIDs ...string) *fakeLinker {
	l := &fakeLinker{fail: map[string]bool{}, relinked: map[string]string{}}
	for _, id := range failIDs {
		l.fail[id] = true
	}
	return l
}

func (l *fakeLinker) LinkClips(_ context.Context, clips []reconcile.Clip) (linked, failed []reconcile.Clip) {
	for _, clip := range clips {
		if l.fail[clip.MediaID] {
			failed = append(failed, clip)
			continue
		}
		l.linked = append(l.linked, clip.MediaID)
		linked = append(linked, clip)
	}
	return linked, failed
}

func (l *fakeLinker) Relink(_ context.Context, clip reconcile.Clip, path string) error {
	if l.fail[clip.MediaID] {
		return errors.New("rejected")
	}
	l.relinked[clip.MediaID] = path
	return nil
}

func clip(root, id, source, proxy string) reconcile.Clip {
	return reconcile.Clip{
		MediaID:          id,
		ClipName:         filepath.Base(source),
		SourcePath:       source,
		Proxy:            proxy,
		ExpectedProxyDir: proxypath.ExpectedDir(root, source),
		Resolution:       "3840x2160",
		FPS:              25,
		Frames:           250,
	}
}

func newReconciler(root string, script *prompt.Script, linker *fakeLinker, overwrite bool) *reconcile.Reconciler {
	return reconcile.New(script, linker, root, ".mov", overwrite, logging.NewNop())
}

func jobIDs(plan reconcile.Plan) []string {
	ids := make([]string, 0, len(plan.Jobs))
	for _, job := range plan.Jobs {
		ids = append(ids, job.MediaID)
	}
	return ids
}

func TestRunAllLinkedNeedsNoPrompt(t *testing.T) {
	root := t.TempDir()
	c := clip(root, "m1", "/media/A001.mov", "1280x720")
	c.ProxyMediaPath = filepath.Join(root, "media", "A001.mov")
	script := prompt.NewScript()

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := reconcile.Plan{Outcome: reconcile.OutcomeAllLinked, Skipped: 1}
	if diff := cmp.Diff(want, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
	if len(script.Questions) != 0 {
		t.Fatalf("expected no prompts, got %v", script.Questions)
	}
}

func TestRunQueuesFreshClips(t *testing.T) {
	root := t.TempDir()
	clips := []reconcile.Clip{
		clip(root, "m1", "/media/day1/A001.MXF", "None"),
		clip(root, "m2", "/media/day1/A002.mov", ""),
	}
	script := prompt.NewScript("y")

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), clips)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Outcome != reconcile.OutcomeQueue {
		t.Fatalf("outcome = %v", plan.Outcome)
	}
	wantOutputs := []string{
		filepath.Join(root, "media", "day1", "A001.mov"),
		filepath.Join(root, "media", "day1", "A002.mov"),
	}
	gotOutputs := []string{plan.Jobs[0].OutputPath, plan.Jobs[1].OutputPath}
	if diff := cmp.Diff(wantOutputs, gotOutputs); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2 to queue. Sound good?"}, script.Questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDeclineAborts(t *testing.T) {
	root := t.TempDir()
	script := prompt.NewScript("n")
	_, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "None")})
	if !errors.Is(err, services.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestRunOfflineChoices(t *testing.T) {
	root := t.TempDir()
	clips := []reconcile.Clip{
		clip(root, "m1", "/media/A001.mov", "Offline"),
		clip(root, "m2", "/media/A002.mov", "Offline"),
		clip(root, "m3", "/media/A003.mov", "Offline"),
		clip(root, "m4", "/media/A004.mov", "None"),
	}
	script := prompt.NewScript("no", "all", "y")

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), clips)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"m2", "m3", "m4"}, jobIDs(plan)); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
	for _, job := range plan.Jobs {
		if job.State() != reconcile.Unlinked {
			t.Fatalf("job %s should be queued as unlinked, got %v", job.MediaID, job.State())
		}
	}
	if plan.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", plan.Dropped)
	}
	if len(script.Questions) != 3 {
		t.Fatalf("expected 2 offline prompts and a final confirm, got %v", script.Questions)
	}
}

func TestRunOfflineDeclinedLeavesNothingToQueue(t *testing.T) {
	root := t.TempDir()
	script := prompt.NewScript("n")
	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "Offline")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Outcome != reconcile.OutcomeNothingToQueue {
		t.Fatalf("outcome = %v, want nothing_to_queue", plan.Outcome)
	}
}

func TestRunLinksExistingUnlinked(t *testing.T) {
	root := t.TempDir()
	clips := []reconcile.Clip{
		clip(root, "m1", "/media/A001.mov", "None"),
		clip(root, "m2", "/media/A002.mov", "None"),
	}
	existing := filepath.Join(root, "media", "A001.mov")
	testsupport.WriteFile(t, existing, 16)
	linker := newFakeLinker()
	script := prompt.NewScript("y", "y")

	plan, err := newReconciler(root, script, linker, true).Run(context.Background(), clips)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"m1"}, linker.linked); diff != "" {
		t.Fatalf("linked mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m2"}, jobIDs(plan)); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
	if plan.Linked != 1 {
		t.Fatalf("linked count = %d", plan.Linked)
	}
}

func TestRunExistingUnlinkedAllLinkedIsNothingToQueue(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "media", "A001.mov"), 16)
	script := prompt.NewScript("y")

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "None")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Outcome != reconcile.OutcomeNothingToQueue || plan.Linked != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestRunExistingUnlinkedFailuresPrompt(t *testing.T) {
	for _, tt := range []struct {
		answer string
		want   []string
	}{
		{"y", []string{"m1"}},
		{"n", nil},
	} {
		t.Run("rerender="+tt.answer, func(t *testing.T) {
			root := t.TempDir()
			testsupport.WriteFile(t, filepath.Join(root, "media", "A001.mov"), 16)
			answers := []string{"y", tt.answer}
			if len(tt.want) > 0 {
				answers = append(answers, "y")
			}
			script := prompt.NewScript(answers...)

			plan, err := newReconciler(root, script, newFakeLinker("m1"), true).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "None")})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if diff := cmp.Diff(tt.want, jobIDs(plan), cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
			}
			for _, job := range plan.Jobs {
				if job.UnlinkedProxy != "" {
					t.Fatalf("re-render job should not carry an unlinked proxy: %+v", job)
				}
			}
		})
	}
}

func TestRunCollisionsIncrementWhenNotOverwriting(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "media", "A001.mov"), 16)
	testsupport.WriteFile(t, filepath.Join(root, "media", "A001_1.mov"), 16)
	script := prompt.NewScript("n", "y")

	plan, err := newReconciler(root, script, newFakeLinker(), false).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "None")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := plan.Jobs[0].OutputPath, filepath.Join(root, "media", "A001_2.mov"); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunCollisionsIgnoredWhenOverwriting(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "media", "A001.mov"), 16)
	script := prompt.NewScript("n", "y")

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{clip(root, "m1", "/media/A001.mov", "None")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := plan.Jobs[0].OutputPath, filepath.Join(root, "media", "A001.mov"); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunMovesAndRelinksOrphans(t *testing.T) {
	root := t.TempDir()
	oldRoot := t.TempDir()
	oldPath := filepath.Join(oldRoot, "media", "A001.mov")
	testsupport.WriteFile(t, oldPath, 16)

	c := clip(root, "m1", "/media/A001.mov", "Offline")
	c.ProxyMediaPath = oldPath
	linker := newFakeLinker()
	script := prompt.NewScript("y")

	plan, err := newReconciler(root, script, linker, true).Run(context.Background(), []reconcile.Clip{c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	newPath := filepath.Join(root, "media", "A001.mov")
	if linker.relinked["m1"] != newPath {
		t.Fatalf("relinked to %q, want %q", linker.relinked["m1"], newPath)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected proxy moved: %v", err)
	}
	want := reconcile.Plan{Outcome: reconcile.OutcomeNothingToQueue, Moved: 1, Skipped: 1}
	if diff := cmp.Diff(want, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOrphanDeclinedLeavesFiles(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(t.TempDir(), "A001.mov")
	testsupport.WriteFile(t, oldPath, 16)
	c := clip(root, "m1", "/media/A001.mov", "1280x720")
	c.ProxyMediaPath = oldPath
	script := prompt.NewScript("n")

	plan, err := newReconciler(root, script, newFakeLinker(), true).Run(context.Background(), []reconcile.Clip{c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(oldPath); err != nil {
		t.Fatalf("orphan should stay put: %v", err)
	}
	if plan.Outcome != reconcile.OutcomeNothingToQueue || plan.Moved != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestRunMissingOrphanFallsThroughToOffline(t *testing.T) {
	root := t.TempDir()
	c := clip(root, "m1", "/media/Day2/A001.mov", "Offline")
	c.ProxyMediaPath = filepath.Join(t.TempDir(), "media", "Day1", "A001.mov")
	linker := newFakeLinker()
	script := prompt.NewScript("y", "yes", "y")

	plan, err := newReconciler(root, script, linker, true).Run(context.Background(), []reconcile.Clip{c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"m1"}, jobIDs(plan)); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
	if plan.Outcome != reconcile.OutcomeQueue || plan.Moved != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if len(linker.relinked) != 0 {
		t.Fatalf("nothing should be relinked, got %v", linker.relinked)
	}
	if len(script.Questions) != 3 {
		t.Fatalf("expected move, offline and final prompts, got %v", script.Questions)
	}
}

func TestHandleOrphansRelinkFailureKeepsMove(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(t.TempDir(), "media", "A001.mov")
	testsupport.WriteFile(t, oldPath, 16)
	c := clip(root, "m1", "/media/A001.mov", "1280x720")
	c.ProxyMediaPath = oldPath
	r := newReconciler(root, prompt.NewScript("y"), newFakeLinker("m1"), true)
	st := &reconcile.RunState{}

	clips, err := r.HandleOrphans(context.Background(), st, []reconcile.Clip{c})
	if err != nil {
		t.Fatalf("HandleOrphans: %v", err)
	}
	newPath := filepath.Join(root, "media", "A001.mov")
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected proxy moved: %v", err)
	}
	if _, err := os.Stat(oldPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("old proxy should be gone, stat err = %v", err)
	}
	if clips[0].ProxyMediaPath != newPath {
		t.Fatalf("proxy media path = %q, want %q", clips[0].ProxyMediaPath, newPath)
	}
	if st.Moved != 1 {
		t.Fatalf("moved = %d, want 1", st.Moved)
	}

	kept, err := r.HandleAlreadyLinked(context.Background(), st, clips)
	if err != nil {
		t.Fatalf("HandleAlreadyLinked: %v", err)
	}
	if len(kept) != 0 || st.Skipped != 1 {
		t.Fatalf("linked clip should be skipped, kept %v skipped %d", kept, st.Skipped)
	}
}

func TestRunSeparatesOutputsSharingAStem(t *testing.T) {
	for _, overwrite := range []bool{true, false} {
		t.Run(fmt.Sprintf("overwrite=%t", overwrite), func(t *testing.T) {
			root := t.TempDir()
			clips := []reconcile.Clip{
				clip(root, "m1", "/media/day1/A001.mov", "None"),
				clip(root, "m2", "/media/day1/A001.mxf", "None"),
			}
			script := prompt.NewScript("y")

			plan, err := newReconciler(root, script, newFakeLinker(), overwrite).Run(context.Background(), clips)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			want := []string{
				filepath.Join(root, "media", "day1", "A001.mov"),
				filepath.Join(root, "media", "day1", "A001_1.mov"),
			}
			got := []string{plan.Jobs[0].OutputPath, plan.Jobs[1].OutputPath}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
