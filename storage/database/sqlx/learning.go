package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/user"
)

type learningRepository struct {
	db core.DBExecutor
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db core.DBExecutor) learning.Repository {
	return &learningRepository{db: db}
}

func (repo *learningRepository) CreateEnrollment(ctx context.Context, enr learning.Enrollment) (learning.Enrollment, bool, error) {
	q := `INSERT INTO enrollments (student_id, course_id, enrolled_at, completed, completed_at, progress_percentage)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, course_id) DO NOTHING
		RETURNING *`
	var stored learning.Enrollment
	err := executor(ctx, repo.db).GetContext(ctx, &stored, q,
		enr.StudentID, enr.CourseID, enr.EnrolledAt, enr.Completed, enr.CompletedAt, enr.ProgressPercentage)
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Cause(err) == sql.ErrNoRows:
		stored, err = repo.GetEnrollment(ctx, enr.StudentID, enr.CourseID)
		return stored, false, err
	case isViolation(err, foreignKeyViolation):
		if violatedConstraint(err) == "enrollments_student_id_fkey" {
			return learning.Enrollment{}, false, user.ErrNotFound
		}
		return learning.Enrollment{}, false, catalog.ErrCourseNotFound
	}
	return learning.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
}

func (repo *learningRepository) GetEnrollment(ctx context.Context, studentID string, courseID int64) (learning.Enrollment, error) {
	var enr learning.Enrollment
	q := `SELECT * FROM enrollments WHERE student_id = $1 AND course_id = $2`
	if err := executor(ctx, repo.db).GetContext(ctx, &enr, q, studentID, courseID); err != nil {
		return learning.Enrollment{}, trapNoRows(err, learning.ErrEnrollmentNotFound, "getting enrollment")
	}
	return enr, nil
}

func (repo *learningRepository) ListEnrollments(ctx context.Context, studentID string) ([]learning.Enrollment, error) {
	enrs := make([]learning.Enrollment, 0)
	q := `SELECT * FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC, id DESC`
	err := executor(ctx, repo.db).SelectContext(ctx, &enrs, q, studentID)
	return enrs, errors.Wrap(err, "listing enrollments")
}

func (repo *learningRepository) CountEnrollments(ctx context.Context, courseID int64) (int, error) {
	var n int
	err := executor(ctx, repo.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID)
	return n, errors.Wrap(err, "counting enrollments")
}

func (repo *learningRepository) SaveProgress(ctx context.Context, enrollmentID int64, percentage int) error {
	q := `UPDATE enrollments SET progress_percentage = $2 WHERE id = $1`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, enrollmentID, percentage))
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	if n == 0 {
		return learning.ErrEnrollmentNotFound
	}
	return nil
}

func (repo *learningRepository) CompleteEnrollment(ctx context.Context, enrollmentID int64, at time.Time) (bool, error) {
	q := `UPDATE enrollments SET completed = TRUE, completed_at = $2, progress_percentage = 100
		WHERE id = $1 AND NOT completed`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, enrollmentID, at))
	if err != nil {
		return false, errors.Wrap(err, "completing enrollment")
	}
	return n > 0, nil
}

func (repo *learningRepository) UpsertLessonView(ctx context.Context, studentID string, lessonID int64, at time.Time) (learning.LessonProgress, error) {
	q := `INSERT INTO lesson_progress (student_id, lesson_id, last_viewed) VALUES ($1, $2, $3)
		ON CONFLICT (student_id, lesson_id) DO UPDATE SET last_viewed = EXCLUDED.last_viewed
		RETURNING *`
	return repo.upsertProgress(ctx, q, studentID, lessonID, at)
}

func (repo *learningRepository) UpsertLessonCompletion(ctx context.Context, studentID string, lessonID int64, at time.Time) (learning.LessonProgress, error) {
	q := `INSERT INTO lesson_progress (student_id, lesson_id, completed, completed_at, last_viewed) VALUES ($1, $2, TRUE, $3, $3)
		ON CONFLICT (student_id, lesson_id) DO UPDATE SET completed = TRUE, completed_at = EXCLUDED.completed_at
		RETURNING *`
	return repo.upsertProgress(ctx, q, studentID, lessonID, at)
}

func (repo *learningRepository) upsertProgress(ctx context.Context, q, studentID string, lessonID int64, at time.Time) (learning.LessonProgress, error) {
	var lp learning.LessonProgress
	if err := executor(ctx, repo.db).GetContext(ctx, &lp, q, studentID, lessonID, at); err != nil {
		if isViolation(err, foreignKeyViolation) {
			return learning.LessonProgress{}, catalog.ErrLessonNotFound
		}
		return learning.LessonProgress{}, errors.Wrap(err, "saving lesson progress")
	}
	return lp, nil
}

func (repo *learningRepository) CountCompletedLessons(ctx context.Context, studentID string, lessonIDs []int64) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM lesson_progress WHERE student_id = $1 AND completed AND lesson_id = ANY($2)`
	err := executor(ctx, repo.db).GetContext(ctx, &n, q, studentID, pq.Array(lessonIDs))
	return n, errors.Wrap(err, "counting completed lessons")
}

func (repo *learningRepository) ListLessonProgress(ctx context.Context, studentID string, lessonIDs []int64) ([]learning.LessonProgress, error) {
	lps := make([]learning.LessonProgress, 0)
	q := `SELECT * FROM lesson_progress WHERE student_id = $1 AND lesson_id = ANY($2) ORDER BY id`
	err := executor(ctx, repo.db).SelectContext(ctx, &lps, q, studentID, pq.Array(lessonIDs))
	return lps, errors.Wrap(err, "listing lesson progress")
}

func (repo *learningRepository) RecentLessonViews(ctx context.Context, studentID string, limit int) ([]learning.LessonProgress, error) {
	lps := make([]learning.LessonProgress, 0)
	q := `SELECT * FROM lesson_progress WHERE student_id = $1 ORDER BY last_viewed DESC, id DESC LIMIT $2`
	err := executor(ctx, repo.db).SelectContext(ctx, &lps, q, studentID, limit)
	return lps, errors.Wrap(err, "listing recent lessons")
}

func (repo *learningRepository) CertificateExists(ctx context.Context, studentID string, courseID int64) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM certificates WHERE student_id = $1 AND course_id = $2)`
	err := executor(ctx, repo.db).GetContext(ctx, &exists, q, studentID, courseID)
	return exists, errors.Wrap(err, "checking certificate")
}

func (repo *learningRepository) CreateCertificate(ctx context.Context, cert learning.Certificate) (learning.Certificate, bool, error) {
	q := `INSERT INTO certificates (certificate_id, student_id, course_id, issued_at, document_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING *`
	var stored learning.Certificate
	err := executor(ctx, repo.db).GetContext(ctx, &stored, q,
		cert.CertificateID, cert.StudentID, cert.CourseID, cert.IssuedAt, cert.DocumentRef)
	if err == nil {
		return stored, true, nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return learning.Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}

	q = `SELECT * FROM certificates WHERE student_id = $1 AND course_id = $2`
	if err = executor(ctx, repo.db).GetContext(ctx, &stored, q, cert.StudentID, cert.CourseID); err != nil {
		// the certificate ID collided with another certificate's
		return learning.Certificate{}, false, trapNoRows(err, learning.ErrCertificateIDTaken, "getting certificate")
	}
	return stored, false, nil
}

func (repo *learningRepository) GetCertificate(ctx context.Context, certificateID string) (learning.Certificate, error) {
	var cert learning.Certificate
	q := `SELECT * FROM certificates WHERE certificate_id = $1`
	if err := executor(ctx, repo.db).GetContext(ctx, &cert, q, certificateID); err != nil {
		return learning.Certificate{}, trapNoRows(err, learning.ErrCertificateNotFound, "getting certificate")
	}
	return cert, nil
}

func (repo *learningRepository) ListCertificates(ctx context.Context, studentID string) ([]learning.Certificate, error) {
	certs := make([]learning.Certificate, 0)
	q := `SELECT * FROM certificates WHERE student_id = $1 ORDER BY issued_at DESC, id DESC`
	err := executor(ctx, repo.db).SelectContext(ctx, &certs, q, studentID)
	return certs, errors.Wrap(err, "listing certificates")
}

func (repo *learningRepository) SetCertificateDocument(ctx context.Context, id int64, ref string) error {
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, `UPDATE certificates SET document_ref = $2 WHERE id = $1`, id, ref))
	if err != nil {
		return errors.Wrap(err, "saving certificate document")
	}
	if n == 0 {
		return learning.ErrCertificateNotFound
	}
	return nil
}
