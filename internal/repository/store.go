package repository

import (
	"context"

	"rally-tagger/internal/domain"
)

// TaggingStore is the durable store behind a tagging session's persistence
// adapter.
type TaggingStore struct {
	sets    *SetRepository
	rallies *RallyRepository
}

func NewTaggingStore(sets *SetRepository, rallies *RallyRepository) *TaggingStore {
	return &TaggingStore{sets: sets, rallies: rallies}
}

func (s *TaggingStore) SaveRally(ctx context.Context, rally domain.Rally) error {
	return s.rallies.Save(ctx, rally)
}

func (s *TaggingStore) SaveShot(ctx context.Context, shot domain.Shot) error {
	return s.rallies.SaveShot(ctx, shot)
}

func (s *TaggingStore) UpdateShot(ctx context.Context, rallyID string, ordinal int, ann domain.Annotation) error {
	return s.rallies.UpdateAnnotation(ctx, rallyID, ordinal, ann)
}

func (s *TaggingStore) DeleteRally(ctx context.Context, rallyID string) error {
	return s.rallies.Delete(ctx, rallyID)
}

func (s *TaggingStore) UpdateProgress(ctx context.Context, setID string, p domain.Progress) error {
	return s.sets.UpdateProgress(ctx, setID, p)
}

func (s *TaggingStore) RalliesBySet(ctx context.Context, setID string) ([]domain.Rally, error) {
	return s.rallies.WithShots(ctx, setID)
}
