package learning

import (
	"context"
	"time"
)

// Tracker records lesson views and completions, one progress row per (student, lesson).
type Tracker struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

func NewTracker(repo Repository, catalog Catalog) *Tracker {
	return &Tracker{repo: repo, catalog: catalog, now: time.Now}
}

// RecordView touches last_viewed, creating the progress row on first view.
func (t *Tracker) RecordView(ctx context.Context, studentID string, lessonID int64) (LessonProgress, error) {
	if _, err := t.catalog.GetLesson(ctx, lessonID); err != nil {
		return LessonProgress{}, err
	}
	return t.repo.UpsertLessonView(ctx, studentID, lessonID, t.now().UTC())
}

// MarkComplete marks the lesson completed now, creating the progress row if absent.
func (t *Tracker) MarkComplete(ctx context.Context, studentID string, lessonID int64) (LessonProgress, error) {
	if _, err := t.catalog.GetLesson(ctx, lessonID); err != nil {
		return LessonProgress{}, err
	}
	return t.repo.UpsertLessonCompletion(ctx, studentID, lessonID, t.now().UTC())
}
