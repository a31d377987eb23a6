package learning

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/user"
)

const recentLessonsLimit = 5

type (
	// Catalog is the part of the course catalog learning reads from.
	Catalog interface {
		GetCourseByID(ctx context.Context, id int64) (catalog.Course, error)
		GetCourseBySlug(ctx context.Context, slug string) (catalog.Course, error)
		GetInstructor(ctx context.Context, id int64) (catalog.Instructor, error)
		GetLesson(ctx context.Context, id int64) (catalog.Lesson, error)
		CourseLessons(ctx context.Context, courseID int64) ([]catalog.Lesson, error)
		CourseSections(ctx context.Context, courseID int64) ([]catalog.Section, error)
	}

	Students interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Notifier is fire-and-forget: it handles its own failures.
	Notifier interface {
		CertificateIssued(ctx context.Context, cert Certificate, course catalog.Course)
	}

	DocumentRenderer interface {
		RenderCertificate(data CertificateData) ([]byte, error)
	}

	// DocumentStore persists rendered documents. The returned ref is what Open takes.
	DocumentStore interface {
		Save(ctx context.Context, name string, content []byte) (ref string, err error)
		Open(ctx context.Context, ref string) (io.ReadCloser, error)
	}

	Deps struct {
		Catalog  Catalog
		Students Students
		Notifier Notifier
		Events   core.EventPublisher
		Renderer DocumentRenderer
		Store    DocumentStore
		Logger   core.Logger
		SiteURL  string
	}

	Service struct {
		repo       Repository
		deps       Deps
		tracker    *Tracker
		aggregator *Aggregator
		issuer     *Issuer
	}
)

func NewService(repo Repository, deps Deps) *Service {
	issuer := NewIssuer(repo, deps.Catalog, deps.Notifier, deps.Events, deps.Logger)
	return &Service{
		repo:       repo,
		deps:       deps,
		tracker:    NewTracker(repo, deps.Catalog),
		aggregator: NewAggregator(repo, deps.Catalog, issuer),
		issuer:     issuer,
	}
}

// Enroll creates the (student, course) enrollment unless it exists already.
// It returns the stored enrollment and whether it was created.
func (svc *Service) Enroll(ctx context.Context, studentID string, courseID int64) (Enrollment, bool, error) {
	if _, err := svc.deps.Catalog.GetCourseByID(ctx, courseID); err != nil {
		return Enrollment{}, false, err
	}
	enr, created, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}
	return enr, created, nil
}

func (svc *Service) IsEnrolled(ctx context.Context, studentID string, courseID int64) (bool, error) {
	if _, err := svc.repo.GetEnrollment(ctx, studentID, courseID); err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "getting enrollment")
	}
	return true, nil
}

func (svc *Service) CountEnrollments(ctx context.Context, courseID int64) (int, error) {
	return svc.repo.CountEnrollments(ctx, courseID)
}

// enrollment returns ErrNotEnrolled when the student is not enrolled in the course.
func (svc *Service) enrollment(ctx context.Context, studentID string, courseID int64) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return enr, nil
}

// CourseContent returns the curriculum of a course the student is enrolled in, along with
// the freshly recalculated enrollment.
func (svc *Service) CourseContent(ctx context.Context, studentID, courseSlug string) (CourseContent, error) {
	course, err := svc.deps.Catalog.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return CourseContent{}, err
	}
	enr, err := svc.enrollment(ctx, studentID, course.ID)
	if err != nil {
		return CourseContent{}, err
	}
	if enr, err = svc.aggregator.Recalculate(ctx, enr); err != nil {
		return CourseContent{}, err
	}

	sections, err := svc.deps.Catalog.CourseSections(ctx, course.ID)
	if err != nil {
		return CourseContent{}, errors.Wrap(err, "listing sections")
	}
	var lessonIDs []int64
	for _, section := range sections {
		for _, lesson := range section.Lessons {
			lessonIDs = append(lessonIDs, lesson.ID)
		}
	}
	progress, err := svc.repo.ListLessonProgress(ctx, studentID, lessonIDs)
	if err != nil {
		return CourseContent{}, errors.Wrap(err, "listing lesson progress")
	}
	completed := make(map[int64]bool, len(progress))
	for _, p := range progress {
		completed[p.LessonID] = p.Completed
	}

	content := CourseContent{Course: course, Enrollment: enr, Sections: make([]SectionContent, 0, len(sections))}
	for _, section := range sections {
		sc := SectionContent{Section: section, Lessons: make([]LessonContent, 0, len(section.Lessons))}
		for _, lesson := range section.Lessons {
			sc.Lessons = append(sc.Lessons, LessonContent{
				Lesson:    lesson,
				EmbedURL:  lesson.EmbedURL(),
				Completed: completed[lesson.ID],
			})
		}
		content.Sections = append(content.Sections, sc)
	}
	return content, nil
}

// ViewLesson records a lesson view by an enrolled student, or by anyone on a preview lesson.
func (svc *Service) ViewLesson(ctx context.Context, studentID, courseSlug string, lessonID int64) (LessonView, error) {
	course, err := svc.deps.Catalog.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return LessonView{}, err
	}
	lesson, err := svc.deps.Catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonView{}, err
	}
	if lesson.CourseID != course.ID {
		return LessonView{}, catalog.ErrLessonNotFound
	}

	enrolled, err := svc.IsEnrolled(ctx, studentID, course.ID)
	if err != nil {
		return LessonView{}, err
	}
	if !enrolled && !lesson.IsPreview {
		return LessonView{}, ErrNotEnrolled
	}

	progress, err := svc.tracker.RecordView(ctx, studentID, lesson.ID)
	if err != nil {
		return LessonView{}, errors.Wrap(err, "recording lesson view")
	}
	return LessonView{
		Lesson:     LessonContent{Lesson: lesson, EmbedURL: lesson.EmbedURL(), Completed: progress.Completed},
		Progress:   progress,
		IsEnrolled: enrolled,
	}, nil
}

// CompleteLesson marks the lesson completed and returns the recalculated enrollment.
func (svc *Service) CompleteLesson(ctx context.Context, studentID string, lessonID int64) (Enrollment, error) {
	lesson, err := svc.deps.Catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return Enrollment{}, err
	}
	enr, err := svc.enrollment(ctx, studentID, lesson.CourseID)
	if err != nil {
		return Enrollment{}, err
	}
	if _, err = svc.tracker.MarkComplete(ctx, studentID, lesson.ID); err != nil {
		return Enrollment{}, errors.Wrap(err, "marking lesson complete")
	}
	return svc.aggregator.Recalculate(ctx, enr)
}

// Recalculate exposes the progress aggregation of an existing enrollment.
func (svc *Service) Recalculate(ctx context.Context, studentID string, courseID int64) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	return svc.aggregator.Recalculate(ctx, enr)
}
