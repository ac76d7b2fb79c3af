package reconcile

import (
	"context"
	"errors"
	"fmt"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/proxypath"
)

// Offline prompt choices.
const (
	ChoiceYes = "yes"
	ChoiceNo  = "no"
	ChoiceAll = "all"
)

// RunState carries what a single reconciliation run has done so far.
type RunState struct {
	ActionTaken bool
	Linked      int
	Skipped     int
	Moved       int
	Dropped     int
}

// HandleOrphans offers to move linked proxies that sit outside the current
// proxy tree into place and relinks the ones it moves.
func (r *Reconciler) HandleOrphans(ctx context.Context, st *RunState, clips []Clip) ([]Clip, error) {
	views := make([]proxypath.LinkedProxy, 0, len(clips))
	for _, clip := range clips {
		views = append(views, proxypath.LinkedProxy{
			MediaID:        clip.MediaID,
			SourcePath:     clip.SourcePath,
			Proxy:          clip.Proxy,
			ProxyMediaPath: clip.ProxyMediaPath,
		})
	}
	orphans := proxypath.DetectOrphans(views, r.Root)
	if len(orphans) == 0 {
		return clips, nil
	}
	st.ActionTaken = true
	r.logger.Info("orphaned proxies found", logging.Int("count", len(orphans)))

	question := fmt.Sprintf("%d clip(s) have orphaned proxy media. Move them into the current proxy folder?", len(orphans))
	ok, err := r.Prompter.Confirm(ctx, question)
	if err != nil {
		return nil, err
	}
	if !ok {
		return clips, nil
	}

	index := make(map[string]int, len(clips))
	for i, clip := range clips {
		index[clip.MediaID] = i
	}
	failures := 0
	for _, orphan := range orphans {
		clip := &clips[index[orphan.MediaID]]
		if err := proxypath.MoveOrphan(orphan); err != nil {
			failures++
			if errors.Is(err, proxypath.ErrOrphanMissing) {
				logging.WarnWithContext(r.logger, "orphaned proxy no longer exists", "orphan_missing",
					logging.String(logging.FieldClip, clip.Name()),
					logging.String("path", orphan.Old),
					logging.String(logging.FieldErrorHint, "a parent directory rename most likely created this orphan"),
					logging.String(logging.FieldImpact, "the clip is handled as offline or unlinked"),
				)
				continue
			}
			logging.WarnWithContext(r.logger, "failed to move orphaned proxy", "orphan_move_failed",
				logging.String(logging.FieldClip, clip.Name()),
				logging.Error(err),
			)
			continue
		}
		st.Moved++
		clip.ProxyMediaPath = orphan.New
		if err := r.Linker.Relink(ctx, *clip, orphan.New); err != nil {
			failures++
			logging.WarnWithContext(r.logger, "moved orphan but relink failed", "orphan_relink_failed",
				logging.String(logging.FieldClip, clip.Name()),
				logging.String("path", orphan.New),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run `proxyencoder link` once the editor is reachable"),
			)
			continue
		}
		if clip.State() != Linked {
			clip.Proxy = clip.Resolution
			if clip.Proxy == "" {
				clip.Proxy = "Online"
			}
		}
	}
	r.logger.Info("orphan handling complete",
		logging.Int("moved", st.Moved),
		logging.Int("failed", failures),
	)
	return clips, nil
}

// HandleAlreadyLinked drops every clip with an online proxy.
func (r *Reconciler) HandleAlreadyLinked(_ context.Context, st *RunState, clips []Clip) ([]Clip, error) {
	kept := clips[:0:0]
	skipped := 0
	for _, clip := range clips {
		if clip.State() == Linked {
			skipped++
			continue
		}
		kept = append(kept, clip)
	}
	if skipped > 0 {
		st.Skipped += skipped
		r.logger.Info("skipping clips already linked", logging.Int("count", skipped))
	}
	return kept, nil
}

// HandleOffline asks, per offline clip, whether to re-render it.
func (r *Reconciler) HandleOffline(ctx context.Context, st *RunState, clips []Clip) ([]Clip, error) {
	offline := 0
	for _, clip := range clips {
		if clip.State() == Offline {
			offline++
		}
	}
	if offline == 0 {
		return clips, nil
	}
	st.ActionTaken = true
	r.logger.Info("offline proxies found", logging.Int("count", offline))

	kept := clips[:0:0]
	all := false
	for _, clip := range clips {
		if clip.State() != Offline {
			kept = append(kept, clip)
			continue
		}
		answer := ChoiceYes
		if !all {
			var err error
			answer, err = r.Prompter.Choose(ctx,
				fmt.Sprintf("'%s' is offline. Re-render it?", clip.Name()),
				[]string{ChoiceYes, ChoiceNo, ChoiceAll})
			if err != nil {
				return nil, err
			}
		}
		switch answer {
		case ChoiceAll:
			all = true
			fallthrough
		case ChoiceYes:
			clip.Proxy = "None"
			kept = append(kept, clip)
		default:
			st.Dropped++
			r.logger.Info("leaving offline proxy alone", logging.String(logging.FieldClip, clip.Name()))
		}
	}
	return kept, nil
}

// HandleExistingUnlinked looks for proxy files already on disk for unlinked
// clips and offers to link them instead of re-rendering.
func (r *Reconciler) HandleExistingUnlinked(ctx context.Context, st *RunState, clips []Clip) ([]Clip, error) {
	var found []int
	for i := range clips {
		clip := &clips[i]
		if clip.State() != Unlinked {
			continue
		}
		stem := proxypath.ExpectedStem(clip.ExpectedProxyDir, clip.SourcePath)
		newest, count, err := proxypath.NewestVariant(stem)
		if err != nil {
			r.logger.Warn("proxy lookup failed", logging.String(logging.FieldClip, clip.Name()), logging.Error(err))
			continue
		}
		if newest == "" {
			continue
		}
		if count > 1 {
			r.logger.Warn("multiple existing proxies found; using newest",
				logging.String(logging.FieldClip, clip.Name()),
				logging.Int("matches", count),
				logging.String("path", newest),
			)
		}
		clip.UnlinkedProxy = newest
		found = append(found, i)
	}
	if len(found) == 0 {
		return clips, nil
	}
	st.ActionTaken = true

	question := fmt.Sprintf("%d clip(s) have existing but unlinked proxy media. Link them? (No re-renders them)", len(found))
	ok, err := r.Prompter.Confirm(ctx, question)
	if err != nil {
		return nil, err
	}
	if !ok {
		logging.WarnWithContext(r.logger, "existing proxies will be overwritten", "proxies_overwrite",
			logging.Int("count", len(found)),
			logging.String(logging.FieldImpact, "existing proxy files are replaced by new renders"),
			logging.String(logging.FieldErrorHint, "answer yes to link them instead"),
		)
		for _, i := range found {
			clips[i].UnlinkedProxy = ""
		}
		return clips, nil
	}

	candidates := make([]Clip, 0, len(found))
	for _, i := range found {
		candidates = append(candidates, clips[i])
	}
	linked, failed := r.Linker.LinkClips(ctx, candidates)
	st.Linked += len(linked)

	resolved := make(map[string]struct{}, len(linked))
	for _, clip := range linked {
		resolved[clip.MediaID] = struct{}{}
	}
	rerender := true
	if len(failed) > 0 {
		rerender, err = r.Prompter.Confirm(ctx, fmt.Sprintf("%d proxy link(s) failed. Re-render the failures?", len(failed)))
		if err != nil {
			return nil, err
		}
	}
	failedIDs := make(map[string]struct{}, len(failed))
	for _, clip := range failed {
		failedIDs[clip.MediaID] = struct{}{}
	}

	kept := clips[:0:0]
	for _, clip := range clips {
		if _, ok := resolved[clip.MediaID]; ok {
			continue
		}
		if _, ok := failedIDs[clip.MediaID]; ok {
			if !rerender {
				st.Dropped++
				continue
			}
			clip.UnlinkedProxy = ""
		}
		kept = append(kept, clip)
	}
	return kept, nil
}

// AssignOutputs sets each clip's output path. Clips whose names differ only
// by extension would share a path, so later ones take the next _N suffix.
func (r *Reconciler) AssignOutputs(clips []Clip) []Clip {
	taken := make(map[string]bool, len(clips))
	for i := range clips {
		path := proxypath.OutputPath(clips[i].ExpectedProxyDir, clips[i].outputName(), r.Ext)
		if taken[path] {
			path = proxypath.Increment(path, taken)
			r.logger.Warn("output name shared with another clip in this run",
				logging.String(logging.FieldClip, clips[i].Name()),
				logging.String("path", path),
			)
		}
		taken[path] = true
		clips[i].OutputPath = path
	}
	return clips
}

// HandleCollisions moves outputs that would overwrite an existing file onto
// the next free _N suffix. It only runs when overwriting is disabled.
func (r *Reconciler) HandleCollisions(_ context.Context, _ *RunState, clips []Clip) ([]Clip, error) {
	if r.Overwrite {
		return clips, nil
	}
	versions := 0
	taken := make(map[string]bool, len(clips))
	for i := range clips {
		next := proxypath.Increment(clips[i].OutputPath, taken)
		if next != clips[i].OutputPath {
			versions++
			clips[i].OutputPath = next
		}
		taken[next] = true
	}
	if versions > 0 {
		logging.WarnWithContext(r.logger, "clips have outdated proxies", "outdated_proxies",
			logging.Int("count", versions),
			logging.String(logging.FieldImpact, "new renders are written alongside the old versions"),
			logging.String(logging.FieldErrorHint, "delete outdated proxy versions when possible"),
		)
	}
	return clips, nil
}

// HandleFinalQueuable decides the run's outcome and confirms the queue.
func (r *Reconciler) HandleFinalQueuable(ctx context.Context, st *RunState, clips []Clip) (Outcome, error) {
	if len(clips) == 0 {
		if !st.ActionTaken {
			r.logger.Info("all media already linked; unlink proxies in the editor to re-render them")
			return OutcomeAllLinked, nil
		}
		r.logger.Info("nothing left to queue")
		return OutcomeNothingToQueue, nil
	}
	ok, err := r.Prompter.Confirm(ctx, fmt.Sprintf("%d to queue. Sound good?", len(clips)))
	if err != nil {
		return OutcomeNothingToQueue, err
	}
	if !ok {
		return OutcomeNothingToQueue, ErrAborted
	}
	return OutcomeQueue, nil
}
