package review

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("review not found")
	ErrNotEnrolled = core.NewPermissionError("only enrolled students can review this course")
	ErrNotAuthor   = core.NewPermissionError("you can only edit your own reviews")
)

type Review struct {
	ID          int64     `json:"id" db:"id"`
	CourseID    int64     `json:"course_id" db:"course_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	Rating      int       `json:"rating" db:"rating"`
	Title       string    `json:"title" db:"title"`
	Comment     string    `json:"comment" db:"comment"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	StudentName string    `json:"student_name" db:"student_name"` // joined
}

// Stats summarizes the ratings of a course. Average is rounded to 1 decimal.
type Stats struct {
	Average float64 `json:"average_rating"`
	Count   int     `json:"rating_count"`
}

type NewReview struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Title   string `json:"title" validate:"required,max=200"`
	Comment string `json:"comment" validate:"required"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Comment = core.CleanString(nr.Comment)
	return validate.Struct(nr)
}

type (
	Repository interface {
		// CreateReview inserts the review unless the student already reviewed the course.
		// It returns the stored review and whether it was created.
		CreateReview(ctx context.Context, rev Review) (Review, bool, error)
		GetReview(ctx context.Context, id int64) (Review, error)
		UpdateReview(ctx context.Context, rev Review) (Review, error)
		DeleteReview(ctx context.Context, id int64) error
		// ListReviews returns the course reviews, newest first.
		ListReviews(ctx context.Context, courseID int64) ([]Review, error)
		// RatingStats returns the raw average rating and the number of ratings.
		RatingStats(ctx context.Context, courseID int64) (float64, int, error)
	}

	Enrollments interface {
		IsEnrolled(ctx context.Context, studentID string, courseID int64) (bool, error)
	}

	Service struct {
		repo        Repository
		enrollments Enrollments
	}
)

func NewService(repo Repository, enrollments Enrollments) *Service {
	return &Service{repo: repo, enrollments: enrollments}
}

// Add reviews a course the student is enrolled in. A second review of the same course
// returns the existing one with created=false.
func (svc *Service) Add(ctx context.Context, studentID string, courseID int64, nr NewReview) (Review, bool, error) {
	enrolled, err := svc.enrollments.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return Review{}, false, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Review{}, false, ErrNotEnrolled
	}

	now := time.Now().UTC()
	rev, created, err := svc.repo.CreateReview(ctx, Review{
		CourseID:  courseID,
		StudentID: studentID,
		Rating:    nr.Rating,
		Title:     nr.Title,
		Comment:   nr.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Review{}, false, errors.Wrap(err, "creating review")
	}
	return rev, created, nil
}

func (svc *Service) Edit(ctx context.Context, studentID string, reviewID int64, nr NewReview) (Review, error) {
	rev, err := svc.repo.GetReview(ctx, reviewID)
	if err != nil {
		return Review{}, err
	}
	if rev.StudentID != studentID {
		return Review{}, ErrNotAuthor
	}

	rev.Rating = nr.Rating
	rev.Title = nr.Title
	rev.Comment = nr.Comment
	rev.UpdatedAt = time.Now().UTC()
	rev, err = svc.repo.UpdateReview(ctx, rev)
	return rev, errors.Wrap(err, "updating review")
}

// Delete removes a review on behalf of an admin.
func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetReview(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteReview(ctx, id), "deleting review")
}

func (svc *Service) ListForCourse(ctx context.Context, courseID int64) ([]Review, error) {
	return svc.repo.ListReviews(ctx, courseID)
}

func (svc *Service) Stats(ctx context.Context, courseID int64) (Stats, error) {
	avg, count, err := svc.repo.RatingStats(ctx, courseID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "getting rating stats")
	}
	return Stats{Average: math.Round(avg*10) / 10, Count: count}, nil
}
