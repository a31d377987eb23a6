package learning

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Aggregator derives an enrollment's progress from its lesson progress rows.
type Aggregator struct {
	repo    Repository
	catalog Catalog
	issuer  *Issuer
	now     func() time.Time
}

func NewAggregator(repo Repository, catalog Catalog, issuer *Issuer) *Aggregator {
	return &Aggregator{repo: repo, catalog: catalog, issuer: issuer, now: time.Now}
}

// Recalculate stores the enrollment's progress percentage and returns the updated enrollment.
// Reaching 100% completes the enrollment once and for all, and issues its certificate.
func (a *Aggregator) Recalculate(ctx context.Context, enr Enrollment) (Enrollment, error) {
	lessons, err := a.catalog.CourseLessons(ctx, enr.CourseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "listing course lessons")
	}

	total := len(lessons)
	if total == 0 {
		if err = a.repo.SaveProgress(ctx, enr.ID, 0); err != nil {
			return Enrollment{}, errors.Wrap(err, "saving progress")
		}
		enr.ProgressPercentage = 0
		return enr, nil
	}

	ids := make([]int64, 0, total)
	for _, lesson := range lessons {
		ids = append(ids, lesson.ID)
	}
	done, err := a.repo.CountCompletedLessons(ctx, enr.StudentID, ids)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "counting completed lessons")
	}
	pct := done * 100 / total

	if pct == 100 && !enr.Completed {
		now := a.now().UTC()
		ok, err := a.repo.CompleteEnrollment(ctx, enr.ID, now)
		if err != nil {
			return Enrollment{}, errors.Wrap(err, "completing enrollment")
		}
		if ok {
			enr.Completed = true
			enr.CompletedAt.SetValid(now)
			enr.ProgressPercentage = pct
			return a.issue(ctx, enr)
		}
		// completed concurrently
		if enr, err = a.repo.GetEnrollment(ctx, enr.StudentID, enr.CourseID); err != nil {
			return Enrollment{}, errors.Wrap(err, "getting enrollment")
		}
	}

	if err = a.repo.SaveProgress(ctx, enr.ID, pct); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving progress")
	}
	enr.ProgressPercentage = pct
	if enr.Completed && pct == 100 {
		return a.issue(ctx, enr)
	}
	return enr, nil
}

func (a *Aggregator) issue(ctx context.Context, enr Enrollment) (Enrollment, error) {
	if _, err := a.issuer.IssueIfEligible(ctx, enr); err != nil {
		return Enrollment{}, errors.Wrap(err, "issuing certificate")
	}
	return enr, nil
}
