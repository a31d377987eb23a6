package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/review"
)

const (
	displayName = `COALESCE(NULLIF(u.name, ''), NULLIF(u.username, ''), u.email)`

	reviewSelect = `SELECT r.*, ` + displayName + ` AS student_name
		FROM reviews r
		JOIN users u ON u.id = r.student_id`

	discussionSelect = `SELECT d.*, ` + displayName + ` AS author_name,
			(SELECT COUNT(*) FROM discussion_replies dr WHERE dr.discussion_id = d.id) AS reply_count
		FROM discussions d
		JOIN users u ON u.id = d.author_id`

	replySelect = `SELECT dr.*, ` + displayName + ` AS author_name
		FROM discussion_replies dr
		JOIN users u ON u.id = dr.author_id`
)

type reviewRepository struct {
	db core.DBExecutor
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db core.DBExecutor) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(ctx context.Context, rev review.Review) (review.Review, bool, error) {
	q := `INSERT INTO reviews (course_id, student_id, rating, title, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (course_id, student_id) DO NOTHING
		RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &rev.ID, q,
		rev.CourseID, rev.StudentID, rev.Rating, rev.Title, rev.Comment, rev.CreatedAt, rev.UpdatedAt)
	switch {
	case err == nil:
		rev, err = repo.GetReview(ctx, rev.ID)
		return rev, err == nil, err
	case isViolation(err, foreignKeyViolation):
		return review.Review{}, false, catalog.ErrCourseNotFound
	case errors.Cause(err) != sql.ErrNoRows:
		return review.Review{}, false, errors.Wrap(err, "inserting review")
	}

	var stored review.Review
	q = reviewSelect + ` WHERE r.course_id = $1 AND r.student_id = $2`
	err = executor(ctx, repo.db).GetContext(ctx, &stored, q, rev.CourseID, rev.StudentID)
	return stored, false, errors.Wrap(err, "getting review")
}

func (repo *reviewRepository) GetReview(ctx context.Context, id int64) (review.Review, error) {
	var rev review.Review
	if err := executor(ctx, repo.db).GetContext(ctx, &rev, reviewSelect+` WHERE r.id = $1`, id); err != nil {
		return review.Review{}, trapNoRows(err, review.ErrNotFound, "getting review")
	}
	return rev, nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, rev review.Review) (review.Review, error) {
	q := `UPDATE reviews SET rating = $2, title = $3, comment = $4, updated_at = $5 WHERE id = $1`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, rev.ID, rev.Rating, rev.Title, rev.Comment, rev.UpdatedAt))
	if err != nil {
		return review.Review{}, errors.Wrap(err, "updating review")
	}
	if n == 0 {
		return review.Review{}, review.ErrNotFound
	}
	return repo.GetReview(ctx, rev.ID)
}

func (repo *reviewRepository) DeleteReview(ctx context.Context, id int64) error {
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id))
	if err != nil {
		return errors.Wrap(err, "deleting review")
	}
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (repo *reviewRepository) ListReviews(ctx context.Context, courseID int64) ([]review.Review, error) {
	revs := make([]review.Review, 0)
	q := reviewSelect + ` WHERE r.course_id = $1 ORDER BY r.created_at DESC, r.id DESC`
	err := executor(ctx, repo.db).SelectContext(ctx, &revs, q, courseID)
	return revs, errors.Wrap(err, "listing reviews")
}

func (repo *reviewRepository) RatingStats(ctx context.Context, courseID int64) (float64, int, error) {
	var stats struct {
		Average float64 `db:"average"`
		Count   int     `db:"count"`
	}
	q := `SELECT COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count FROM reviews WHERE course_id = $1`
	if err := executor(ctx, repo.db).GetContext(ctx, &stats, q, courseID); err != nil {
		return 0, 0, errors.Wrap(err, "computing rating stats")
	}
	return stats.Average, stats.Count, nil
}

type discussionRepository struct {
	db core.DBExecutor
}

var _ discussion.Repository = (*discussionRepository)(nil) // interface compliance check

func NewDiscussionRepository(db core.DBExecutor) discussion.Repository {
	return &discussionRepository{db: db}
}

func (repo *discussionRepository) CreateDiscussion(ctx context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	q := `INSERT INTO discussions (course_id, author_id, title, content, is_pinned, is_resolved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &d.ID, q,
		d.CourseID, d.AuthorID, d.Title, d.Content, d.IsPinned, d.IsResolved, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isViolation(err, foreignKeyViolation) {
			return discussion.Discussion{}, catalog.ErrCourseNotFound
		}
		return discussion.Discussion{}, errors.Wrap(err, "inserting discussion")
	}
	return repo.GetDiscussion(ctx, d.ID)
}

func (repo *discussionRepository) GetDiscussion(ctx context.Context, id int64) (discussion.Discussion, error) {
	var d discussion.Discussion
	if err := executor(ctx, repo.db).GetContext(ctx, &d, discussionSelect+` WHERE d.id = $1`, id); err != nil {
		return discussion.Discussion{}, trapNoRows(err, discussion.ErrNotFound, "getting discussion")
	}
	return d, nil
}

func (repo *discussionRepository) ListDiscussions(ctx context.Context, courseID int64) ([]discussion.Discussion, error) {
	ds := make([]discussion.Discussion, 0)
	q := discussionSelect + ` WHERE d.course_id = $1 ORDER BY d.is_pinned DESC, d.created_at DESC, d.id DESC`
	err := executor(ctx, repo.db).SelectContext(ctx, &ds, q, courseID)
	return ds, errors.Wrap(err, "listing discussions")
}

func (repo *discussionRepository) UpdateDiscussion(ctx context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	q := `UPDATE discussions SET title = $2, content = $3, is_pinned = $4, is_resolved = $5, updated_at = $6 WHERE id = $1`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, d.ID, d.Title, d.Content, d.IsPinned, d.IsResolved, d.UpdatedAt))
	if err != nil {
		return discussion.Discussion{}, errors.Wrap(err, "updating discussion")
	}
	if n == 0 {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	return repo.GetDiscussion(ctx, d.ID)
}

// DeleteDiscussion relies on ON DELETE CASCADE for the replies.
func (repo *discussionRepository) DeleteDiscussion(ctx context.Context, id int64) error {
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM discussions WHERE id = $1`, id))
	if err != nil {
		return errors.Wrap(err, "deleting discussion")
	}
	if n == 0 {
		return discussion.ErrNotFound
	}
	return nil
}

func (repo *discussionRepository) CreateReply(ctx context.Context, r discussion.Reply) (discussion.Reply, error) {
	q := `INSERT INTO discussion_replies (discussion_id, author_id, content, is_instructor_reply, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &r.ID, q,
		r.DiscussionID, r.AuthorID, r.Content, r.IsInstructorReply, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isViolation(err, foreignKeyViolation) {
			return discussion.Reply{}, discussion.ErrNotFound
		}
		return discussion.Reply{}, errors.Wrap(err, "inserting reply")
	}

	var stored discussion.Reply
	err = executor(ctx, repo.db).GetContext(ctx, &stored, replySelect+` WHERE dr.id = $1`, r.ID)
	return stored, errors.Wrap(err, "getting reply")
}

func (repo *discussionRepository) ListReplies(ctx context.Context, discussionID int64) ([]discussion.Reply, error) {
	rs := make([]discussion.Reply, 0)
	q := replySelect + ` WHERE dr.discussion_id = $1 ORDER BY dr.created_at, dr.id`
	err := executor(ctx, repo.db).SelectContext(ctx, &rs, q, discussionID)
	return rs, errors.Wrap(err, "listing replies")
}
