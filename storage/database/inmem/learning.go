package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/user"
)

type learningRepository struct {
	db *DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *DB) learning.Repository {
	return &learningRepository{db: db}
}

func (repo *learningRepository) CreateEnrollment(_ context.Context, enr learning.Enrollment) (learning.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing := repo.findEnrollment(enr.StudentID, enr.CourseID); existing != nil {
		return *existing, false, nil
	}
	if _, ok := repo.db.users[enr.StudentID]; !ok {
		return learning.Enrollment{}, false, user.ErrNotFound
	}
	if _, ok := repo.db.courses[enr.CourseID]; !ok {
		return learning.Enrollment{}, false, catalog.ErrCourseNotFound
	}
	enr.ID = repo.db.nextID("enrollments")
	repo.db.enrollments[enr.ID] = &enr
	return enr, true, nil
}

func (repo *learningRepository) GetEnrollment(_ context.Context, studentID string, courseID int64) (learning.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr := repo.findEnrollment(studentID, courseID); enr != nil {
		return *enr, nil
	}
	return learning.Enrollment{}, learning.ErrEnrollmentNotFound
}

func (repo *learningRepository) ListEnrollments(_ context.Context, studentID string) ([]learning.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]learning.Enrollment, 0)
	for _, id := range sortedKeys(repo.db.enrollments) {
		if enr := repo.db.enrollments[id]; enr.StudentID == studentID {
			enrs = append(enrs, *enr)
		}
	}
	sort.SliceStable(enrs, func(i, j int) bool { return enrs[i].ID > enrs[j].ID })
	return enrs, nil
}

func (repo *learningRepository) CountEnrollments(_ context.Context, courseID int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, enr := range repo.db.enrollments {
		if enr.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (repo *learningRepository) SaveProgress(_ context.Context, enrollmentID int64, percentage int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[enrollmentID]
	if !ok {
		return learning.ErrEnrollmentNotFound
	}
	enr.ProgressPercentage = percentage
	return nil
}

func (repo *learningRepository) CompleteEnrollment(_ context.Context, enrollmentID int64, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[enrollmentID]
	if !ok {
		return false, learning.ErrEnrollmentNotFound
	}
	if enr.Completed {
		return false, nil
	}
	enr.Completed = true
	enr.CompletedAt = null.TimeFrom(at)
	enr.ProgressPercentage = 100
	return true, nil
}

func (repo *learningRepository) UpsertLessonView(_ context.Context, studentID string, lessonID int64, at time.Time) (learning.LessonProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	lp, err := repo.lessonProgress(studentID, lessonID, at)
	if err != nil {
		return learning.LessonProgress{}, err
	}
	lp.LastViewed = at
	return *lp, nil
}

func (repo *learningRepository) UpsertLessonCompletion(_ context.Context, studentID string, lessonID int64, at time.Time) (learning.LessonProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	lp, err := repo.lessonProgress(studentID, lessonID, at)
	if err != nil {
		return learning.LessonProgress{}, err
	}
	lp.Completed = true
	lp.CompletedAt = null.TimeFrom(at)
	return *lp, nil
}

func (repo *learningRepository) CountCompletedLessons(_ context.Context, studentID string, lessonIDs []int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, lp := range repo.db.progress {
		if lp.StudentID == studentID && lp.Completed && containsID(lessonIDs, lp.LessonID) {
			n++
		}
	}
	return n, nil
}

func (repo *learningRepository) ListLessonProgress(_ context.Context, studentID string, lessonIDs []int64) ([]learning.LessonProgress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lps := make([]learning.LessonProgress, 0)
	for _, id := range sortedKeys(repo.db.progress) {
		if lp := repo.db.progress[id]; lp.StudentID == studentID && containsID(lessonIDs, lp.LessonID) {
			lps = append(lps, *lp)
		}
	}
	return lps, nil
}

func (repo *learningRepository) RecentLessonViews(_ context.Context, studentID string, limit int) ([]learning.LessonProgress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lps := make([]learning.LessonProgress, 0)
	for _, id := range sortedKeys(repo.db.progress) {
		if lp := repo.db.progress[id]; lp.StudentID == studentID {
			lps = append(lps, *lp)
		}
	}
	sort.SliceStable(lps, func(i, j int) bool { return lps[i].LastViewed.After(lps[j].LastViewed) })
	if limit > 0 && len(lps) > limit {
		lps = lps[:limit]
	}
	return lps, nil
}

func (repo *learningRepository) CertificateExists(_ context.Context, studentID string, courseID int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.findCertificate(studentID, courseID) != nil, nil
}

func (repo *learningRepository) CreateCertificate(_ context.Context, cert learning.Certificate) (learning.Certificate, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing := repo.findCertificate(cert.StudentID, cert.CourseID); existing != nil {
		return *existing, false, nil
	}
	for _, c := range repo.db.certificates {
		if c.CertificateID == cert.CertificateID {
			return learning.Certificate{}, false, learning.ErrCertificateIDTaken
		}
	}
	cert.ID = repo.db.nextID("certificates")
	repo.db.certificates[cert.ID] = &cert
	return cert, true, nil
}

func (repo *learningRepository) GetCertificate(_ context.Context, certificateID string) (learning.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cert := range repo.db.certificates {
		if cert.CertificateID == certificateID {
			return *cert, nil
		}
	}
	return learning.Certificate{}, learning.ErrCertificateNotFound
}

func (repo *learningRepository) ListCertificates(_ context.Context, studentID string) ([]learning.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	certs := make([]learning.Certificate, 0)
	for _, id := range sortedKeys(repo.db.certificates) {
		if cert := repo.db.certificates[id]; cert.StudentID == studentID {
			certs = append(certs, *cert)
		}
	}
	sort.SliceStable(certs, func(i, j int) bool { return certs[i].ID > certs[j].ID })
	return certs, nil
}

func (repo *learningRepository) SetCertificateDocument(_ context.Context, id int64, ref string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cert, ok := repo.db.certificates[id]
	if !ok {
		return learning.ErrCertificateNotFound
	}
	cert.DocumentRef = null.StringFrom(ref)
	return nil
}

func (repo *learningRepository) findEnrollment(studentID string, courseID int64) *learning.Enrollment {
	for _, enr := range repo.db.enrollments {
		if enr.StudentID == studentID && enr.CourseID == courseID {
			return enr
		}
	}
	return nil
}

func (repo *learningRepository) findCertificate(studentID string, courseID int64) *learning.Certificate {
	for _, cert := range repo.db.certificates {
		if cert.StudentID == studentID && cert.CourseID == courseID {
			return cert
		}
	}
	return nil
}

// lessonProgress returns the stored (student, lesson) row, creating it when absent.
// The write lock must be held.
func (repo *learningRepository) lessonProgress(studentID string, lessonID int64, at time.Time) (*learning.LessonProgress, error) {
	for _, lp := range repo.db.progress {
		if lp.StudentID == studentID && lp.LessonID == lessonID {
			return lp, nil
		}
	}
	if _, ok := repo.db.lessons[lessonID]; !ok {
		return nil, catalog.ErrLessonNotFound
	}
	lp := &learning.LessonProgress{
		ID:         repo.db.nextID("lesson_progress"),
		StudentID:  studentID,
		LessonID:   lessonID,
		LastViewed: at,
	}
	repo.db.progress[lp.ID] = lp
	return lp, nil
}
