package persistence

import (
	"context"
	"fmt"

	"rally-tagger/internal/domain"
)

type SaveReport struct {
	RalliesSaved   int `json:"rallies_saved"`
	ShotsSaved     int `json:"shots_saved"`
	ShotsAnnotated int `json:"shots_annotated"`
}

// BulkSave re-attempts everything in the session view that the store does not
// hold. Presence is decided by ordinal in the store, never by a local saved
// flag, so partial writes from a crashed attempt are repaired. Repairs go
// through the journal so they apply after any write still pending there.
func (a *Adapter) BulkSave(ctx context.Context, rallies []domain.Rally) (SaveReport, error) {
	var report SaveReport

	if err := a.Flush(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("journal flush failed before bulk save")
	}

	stored, err := a.store.RalliesBySet(ctx, a.setID)
	if err != nil {
		a.setError(err)
		return report, fmt.Errorf("failed to load stored rallies: %w", err)
	}

	byOrdinal := make(map[int]domain.Rally, len(stored))
	for _, r := range stored {
		byOrdinal[r.Ordinal] = r
	}

	for _, r := range rallies {
		existing, ok := byOrdinal[r.Ordinal]
		if !ok {
			a.CommitRally(r)
			report.RalliesSaved++
			report.ShotsSaved += len(r.Shots)
			continue
		}
		if existing.ID != r.ID {
			// a retracted rally still occupies this ordinal; the pending
			// delete and save in the journal replace it
			a.logger.Debug().Int("rally", r.Ordinal).Str("stored_id", existing.ID).Str("rally_id", r.ID).Msg("stored rally superseded, skipping repair")
			continue
		}

		have := make(map[int]bool, len(existing.Shots))
		for _, s := range existing.Shots {
			have[s.Ordinal] = true
		}
		for _, s := range r.Shots {
			s.RallyID = r.ID
			if !have[s.Ordinal] {
				a.CommitShot(r.ID, s)
				report.ShotsSaved++
			}
			if !s.Annotation.IsZero() {
				a.UpdateShot(s)
				report.ShotsAnnotated++
			}
		}
	}

	if err := a.Flush(ctx); err != nil {
		return report, fmt.Errorf("failed to apply bulk save: %w", err)
	}

	a.logger.Info().
		Int("rallies_saved", report.RalliesSaved).
		Int("shots_saved", report.ShotsSaved).
		Int("shots_annotated", report.ShotsAnnotated).
		Msg("bulk save complete")
	return report, nil
}
