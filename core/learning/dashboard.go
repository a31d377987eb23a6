package learning

import (
	"context"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

// Dashboard recalculates every enrollment of the student and summarizes their learning.
func (svc *Service) Dashboard(ctx context.Context, studentID string) (Dashboard, error) {
	enrollments, err := svc.repo.ListEnrollments(ctx, studentID)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "listing enrollments")
	}

	dash := Dashboard{Enrollments: make([]EnrolledCourse, 0, len(enrollments))}
	var completedMinutes int
	for _, enr := range enrollments {
		if enr, err = svc.aggregator.Recalculate(ctx, enr); err != nil {
			return Dashboard{}, err
		}
		course, err := svc.deps.Catalog.GetCourseByID(ctx, enr.CourseID)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "getting course")
		}
		dash.Enrollments = append(dash.Enrollments, EnrolledCourse{Enrollment: enr, Course: course})
		if enr.Completed {
			dash.Completed++
		} else {
			dash.InProgress++
		}

		minutes, err := svc.completedMinutes(ctx, studentID, enr.CourseID)
		if err != nil {
			return Dashboard{}, err
		}
		completedMinutes += minutes
	}
	dash.LearningHours = completedMinutes / 60

	if dash.Certificates, err = svc.repo.ListCertificates(ctx, studentID); err != nil {
		return Dashboard{}, errors.Wrap(err, "listing certificates")
	}

	views, err := svc.repo.RecentLessonViews(ctx, studentID, recentLessonsLimit)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "listing recent lessons")
	}
	dash.RecentLessons = make([]RecentLesson, 0, len(views))
	for _, view := range views {
		lesson, err := svc.deps.Catalog.GetLesson(ctx, view.LessonID)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return Dashboard{}, errors.Wrap(err, "getting lesson")
		}
		dash.RecentLessons = append(dash.RecentLessons, RecentLesson{
			LessonProgress: view,
			LessonTitle:    lesson.Title,
			CourseID:       lesson.CourseID,
		})
	}
	return dash, nil
}

func (svc *Service) completedMinutes(ctx context.Context, studentID string, courseID int64) (int, error) {
	lessons, err := svc.deps.Catalog.CourseLessons(ctx, courseID)
	if err != nil {
		return 0, errors.Wrap(err, "listing course lessons")
	}
	if len(lessons) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(lessons))
	durations := make(map[int64]int, len(lessons))
	for _, lesson := range lessons {
		ids = append(ids, lesson.ID)
		durations[lesson.ID] = lesson.DurationMinutes
	}
	progress, err := svc.repo.ListLessonProgress(ctx, studentID, ids)
	if err != nil {
		return 0, errors.Wrap(err, "listing lesson progress")
	}

	var minutes int
	for _, p := range progress {
		if p.Completed {
			minutes += durations[p.LessonID]
		}
	}
	return minutes, nil
}
