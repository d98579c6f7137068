package pipeline

import (
	"context"
	"sort"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/store"
)

// reconcile re-validates every persisted instance the main pass left
// unvalidated, one chapter at a time so verdicts carry full chapter
// context. Returns how many instances were recovered and how many remain.
func (o *Orchestrator) reconcile(ctx context.Context) (reconciled, remaining int) {
	if o.cfg.Store == nil || o.cfg.Validator == nil {
		return 0, 0
	}
	rows, err := o.cfg.Store.UnvalidatedInstances(ctx)
	if err != nil {
		o.logger.Error("reconciliation query failed", "error", err)
		return 0, 0
	}
	if len(rows) == 0 {
		return 0, 0
	}
	o.logger.Info("reconciliation pass starting", "instances", len(rows))

	type chapterKey struct {
		book    string
		chapter int
	}
	groups := make(map[chapterKey][]store.InstanceRow)
	for _, row := range rows {
		k := chapterKey{row.Book, row.Chapter}
		groups[k] = append(groups[k], row)
	}
	keys := make([]chapterKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].book != keys[j].book {
			return keys[i].book < keys[j].book
		}
		return keys[i].chapter < keys[j].chapter
	})

	for _, k := range keys {
		group := groups[k]
		instances := make([]analysis.FigurativeInstance, len(group))
		for i, row := range group {
			instances[i] = analysis.FigurativeInstance{
				ID:             row.InstanceKey,
				VerseRef:       row.VerseRef,
				HebrewExcerpt:  row.HebrewExcerpt,
				EnglishExcerpt: row.EnglishExcerpt,
				Confidence:     row.Confidence,
				Explanation:    row.Explanation,
				Detected:       row.Detected,
			}
		}

		verdicts, err := o.cfg.Validator.ValidateChapter(ctx, k.book, k.chapter, instances)
		if err != nil {
			o.logger.Warn("reconciliation validation failed",
				"book", k.book, "chapter", k.chapter, "error", err)
			remaining += len(group)
			o.recordFailure(FailureRecord{
				Book:     k.book,
				Chapter:  k.chapter,
				Category: CategoryValidationFailed,
				Cause:    err.Error(),
				Retry:    RetryDirective{Book: k.book, Chapter: k.chapter, JobKey: analysis.JobKey(k.book, k.chapter)},
			})
			continue
		}
		validated := analysis.Reconcile(instances, verdicts)

		var updates []store.ValidationUpdate
		for _, inst := range validated {
			if inst.Validated == nil {
				remaining++
				continue
			}
			updates = append(updates, store.ValidationUpdate{
				InstanceKey: inst.ID,
				Validated:   inst.Validated,
				Figurative:  inst.Figurative,
				Rationale:   inst.ValidationRationale,
			})
		}
		if len(updates) == 0 {
			continue
		}

		key, err := o.cfg.Writer.SubmitValidation(ctx, updates)
		if err == nil {
			var res *store.CommitResult
			res, err = o.cfg.Writer.AwaitResult(ctx, key, o.cfg.AwaitTimeout)
			if err == nil && res.Err != nil {
				err = res.Err
			}
		}
		if err != nil {
			o.logger.Error("reconciliation write failed",
				"book", k.book, "chapter", k.chapter, "error", err)
			remaining += len(updates)
			continue
		}
		reconciled += len(updates)
		o.logger.Info("chapter reconciled",
			"book", k.book, "chapter", k.chapter, "instances", len(updates))
	}
	return reconciled, remaining
}
