package learning

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

var (
	// errors
	ErrEnrollmentNotFound  = core.NewNotFoundError("enrollment not found")
	ErrCertificateNotFound = core.NewNotFoundError("certificate not found")
	ErrNotEnrolled         = core.NewPermissionError("you are not enrolled in this course")
	ErrNotOwner            = core.NewPermissionError("this certificate belongs to another student")
	ErrCertificateIDTaken  = errors.New("certificate id already taken")
)

type Repository interface {
	// CreateEnrollment inserts the enrollment unless (student, course) is already enrolled.
	// It returns the stored enrollment and whether it was created.
	CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, bool, error)
	GetEnrollment(ctx context.Context, studentID string, courseID int64) (Enrollment, error)
	// ListEnrollments returns the student enrollments, newest first.
	ListEnrollments(ctx context.Context, studentID string) ([]Enrollment, error)
	CountEnrollments(ctx context.Context, courseID int64) (int, error)
	// SaveProgress only sets the progress percentage.
	SaveProgress(ctx context.Context, enrollmentID int64, percentage int) error
	// CompleteEnrollment marks a not yet completed enrollment completed at `at`, with 100% progress.
	// It returns false when the enrollment was already completed.
	CompleteEnrollment(ctx context.Context, enrollmentID int64, at time.Time) (bool, error)

	// UpsertLessonView creates the progress row if needed and sets last_viewed.
	UpsertLessonView(ctx context.Context, studentID string, lessonID int64, at time.Time) (LessonProgress, error)
	// UpsertLessonCompletion creates the progress row if needed and sets completed & completed_at.
	UpsertLessonCompletion(ctx context.Context, studentID string, lessonID int64, at time.Time) (LessonProgress, error)
	CountCompletedLessons(ctx context.Context, studentID string, lessonIDs []int64) (int, error)
	ListLessonProgress(ctx context.Context, studentID string, lessonIDs []int64) ([]LessonProgress, error)
	// RecentLessonViews returns the student's last viewed lessons, most recent first.
	RecentLessonViews(ctx context.Context, studentID string, limit int) ([]LessonProgress, error)

	CertificateExists(ctx context.Context, studentID string, courseID int64) (bool, error)
	// CreateCertificate inserts the certificate unless (student, course) already has one.
	// It returns false when nothing was inserted, and ErrCertificateIDTaken when another
	// certificate holds cert.CertificateID.
	CreateCertificate(ctx context.Context, cert Certificate) (Certificate, bool, error)
	GetCertificate(ctx context.Context, certificateID string) (Certificate, error)
	ListCertificates(ctx context.Context, studentID string) ([]Certificate, error)
	SetCertificateDocument(ctx context.Context, id int64, ref string) error
}
