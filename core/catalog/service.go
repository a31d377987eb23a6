package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("not found")
	ErrCourseNotFound     = core.NewNotFoundError("course not found")
	ErrCategoryNotFound   = core.NewNotFoundError("category not found")
	ErrInstructorNotFound = core.NewNotFoundError("instructor not found")
	ErrSectionNotFound    = core.NewNotFoundError("section not found")
	ErrLessonNotFound     = core.NewNotFoundError("lesson not found")
	ErrSlugExists         = errors.New("this slug is already taken")

	// course orderings allowed on the listing (json name -> column)
	CourseOrderings = map[string]string{
		"price":      "price",
		"created_at": "created_at",
		"title":      "title",
	}
	defaultCourseOrdering = core.DBOrdering{Field: "created_at"}
)

type (
	Repository interface {
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		ListCategories(ctx context.Context) ([]Category, error)

		CreateInstructor(ctx context.Context, inst Instructor) (Instructor, error)
		GetInstructor(ctx context.Context, id int64) (Instructor, error)
		ListInstructors(ctx context.Context) ([]Instructor, error)

		// CreateCourse returns ErrSlugExists when the slug is taken.
		CreateCourse(ctx context.Context, course Course) (Course, error)
		UpdateCourse(ctx context.Context, course Course) (Course, error)
		GetCourse(ctx context.Context, filter CourseFilter) (Course, error)
		// QueryCourses applies AND operation on available CourseQuery fields.
		// CourseQuery.Search does a case-insensitive match on title, description or instructor name.
		QueryCourses(ctx context.Context, query CourseQuery, ordering ...core.DBOrdering) ([]Course, error)

		CreateSection(ctx context.Context, section Section) (Section, error)
		GetSection(ctx context.Context, id int64) (Section, error)
		// ListSections returns the course sections, with their lessons, ordered by position.
		ListSections(ctx context.Context, courseID int64) ([]Section, error)

		CreateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id int64) (Lesson, error)
		// ListLessons returns all the lessons of a course ordered by section then lesson position.
		ListLessons(ctx context.Context, courseID int64) ([]Lesson, error)
	}

	// SearchIndex is a full-text course index. Search hits are course IDs.
	SearchIndex interface {
		IndexCourse(ctx context.Context, course Course) error
		SearchCourses(ctx context.Context, query string) ([]int64, error)
	}

	Service struct {
		repo   Repository
		index  SearchIndex // optional
		logger core.Logger
	}
)

func NewService(repo Repository, index SearchIndex, logger core.Logger) *Service {
	return &Service{repo: repo, index: index, logger: logger}
}

func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	cat, err := svc.repo.CreateCategory(ctx, Category{Name: nc.Name, Slug: nc.Slug})
	if err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return Category{}, slugError()
		}
		return Category{}, errors.Wrap(err, "creating category")
	}
	return cat, nil
}

func (svc *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return svc.repo.ListCategories(ctx)
}

func (svc *Service) CreateInstructor(ctx context.Context, ni NewInstructor) (Instructor, error) {
	inst := Instructor{FullName: ni.FullName, Bio: ni.Bio}
	if ni.UserID != "" {
		inst.UserID = null.StringFrom(ni.UserID)
	}
	inst, err := svc.repo.CreateInstructor(ctx, inst)
	return inst, errors.Wrap(err, "creating instructor")
}

func (svc *Service) GetInstructor(ctx context.Context, id int64) (Instructor, error) {
	return svc.repo.GetInstructor(ctx, id)
}

func (svc *Service) ListInstructors(ctx context.Context) ([]Instructor, error) {
	return svc.repo.ListInstructors(ctx)
}

func (svc *Service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if _, err := svc.repo.GetInstructor(ctx, nc.InstructorID); err != nil {
		if core.IsNotFound(err) {
			return Course{}, core.NewValidationError(err, core.FieldError{Field: "instructor_id", Error: err.Error()})
		}
		return Course{}, errors.Wrap(err, "getting instructor")
	}

	now := time.Now().UTC()
	course := Course{
		Title:            nc.Title,
		Slug:             nc.Slug,
		Description:      nc.Description,
		InstructorID:     nc.InstructorID,
		Level:            nc.Level,
		Price:            nc.Price.Round(2),
		Currency:         DefaultCurrency,
		ImageURL:         nc.ImageURL,
		IsFeatured:       nc.IsFeatured,
		WhatYouWillLearn: cleanList(nc.WhatYouWillLearn),
		Requirements:     cleanList(nc.Requirements),
		TargetAudience:   cleanList(nc.TargetAudience),
		Tags:             cleanList(nc.Tags),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if nc.CategoryID != nil {
		course.CategoryID = null.Int64From(*nc.CategoryID)
	}

	course, err := svc.repo.CreateCourse(ctx, course)
	if err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return Course{}, slugError()
		}
		return Course{}, errors.Wrap(err, "creating course")
	}
	svc.indexCourse(ctx, course)
	return course, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, slug string, uc UpdateCourse) (Course, error) {
	course, err := svc.GetCourseBySlug(ctx, slug)
	if err != nil {
		return Course{}, err
	}

	if uc.Title != nil && *uc.Title != "" {
		course.Title = *uc.Title
	}
	if uc.Description != nil {
		course.Description = *uc.Description
	}
	if uc.CategoryID != nil {
		course.CategoryID = null.Int64From(*uc.CategoryID)
	}
	if uc.Level != nil && *uc.Level != "" {
		course.Level = *uc.Level
	}
	if uc.Price != nil {
		course.Price = uc.Price.Round(2)
	}
	if uc.ImageURL != nil {
		course.ImageURL = *uc.ImageURL
	}
	if uc.IsFeatured != nil {
		course.IsFeatured = *uc.IsFeatured
	}
	if uc.WhatYouWillLearn != nil {
		course.WhatYouWillLearn = cleanList(uc.WhatYouWillLearn)
	}
	if uc.Requirements != nil {
		course.Requirements = cleanList(uc.Requirements)
	}
	if uc.TargetAudience != nil {
		course.TargetAudience = cleanList(uc.TargetAudience)
	}
	if uc.Tags != nil {
		course.Tags = cleanList(uc.Tags)
	}
	course.UpdatedAt = time.Now().UTC()

	course, err = svc.repo.UpdateCourse(ctx, course)
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	svc.indexCourse(ctx, course)
	return course, nil
}

func (svc *Service) GetCourseByID(ctx context.Context, id int64) (Course, error) {
	return svc.repo.GetCourse(ctx, CourseFilter{ID: id})
}

func (svc *Service) GetCourseBySlug(ctx context.Context, slug string) (Course, error) {
	return svc.repo.GetCourse(ctx, CourseFilter{Slug: core.CleanString(slug, true /* lower */)})
}

// QueryCourses lists courses. Searches go through the index when there is one,
// falling back to the repository match when the index fails.
func (svc *Service) QueryCourses(ctx context.Context, query CourseQuery, ordering ...core.DBOrdering) ([]Course, error) {
	query.Clean()
	ordering = core.AllowedOrderings(ordering, CourseOrderings)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{defaultCourseOrdering}
	}

	if query.Search != "" && svc.index != nil {
		ids, err := svc.index.SearchCourses(ctx, query.Search)
		if err == nil {
			if len(ids) == 0 {
				return []Course{}, nil
			}
			query.IDs = ids
			query.Search = ""
		} else {
			svc.logger.Error("course search failed, falling back to DB", errors.Wrap(err, "searching courses"))
		}
	}
	return svc.repo.QueryCourses(ctx, query, ordering...)
}

func (svc *Service) CourseDetail(ctx context.Context, slug string) (CourseDetail, error) {
	course, err := svc.GetCourseBySlug(ctx, slug)
	if err != nil {
		return CourseDetail{}, err
	}
	sections, err := svc.repo.ListSections(ctx, course.ID)
	if err != nil {
		return CourseDetail{}, errors.Wrap(err, "listing sections")
	}

	detail := CourseDetail{Course: course, Sections: sections}
	for _, section := range sections {
		detail.LessonCount += len(section.Lessons)
		for _, lesson := range section.Lessons {
			detail.TotalMinutes += lesson.DurationMinutes
		}
	}
	return detail, nil
}

func (svc *Service) AddSection(ctx context.Context, courseSlug string, ns NewSection) (Section, error) {
	course, err := svc.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return Section{}, err
	}
	section, err := svc.repo.CreateSection(ctx, Section{
		CourseID:    course.ID,
		Title:       ns.Title,
		Description: ns.Description,
		Order:       ns.Order,
		CreatedAt:   time.Now().UTC(),
	})
	return section, errors.Wrap(err, "creating section")
}

func (svc *Service) AddLesson(ctx context.Context, sectionID int64, nl NewLesson) (Lesson, error) {
	section, err := svc.repo.GetSection(ctx, sectionID)
	if err != nil {
		return Lesson{}, err
	}
	now := time.Now().UTC()
	lesson, err := svc.repo.CreateLesson(ctx, Lesson{
		SectionID:       section.ID,
		CourseID:        section.CourseID,
		Title:           nl.Title,
		ContentType:     nl.ContentType,
		VideoURL:        nl.VideoURL,
		ArticleContent:  nl.ArticleContent,
		DurationMinutes: nl.DurationMinutes,
		Order:           nl.Order,
		IsPreview:       nl.IsPreview,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return lesson, errors.Wrap(err, "creating lesson")
}

func (svc *Service) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) CourseLessons(ctx context.Context, courseID int64) ([]Lesson, error) {
	return svc.repo.ListLessons(ctx, courseID)
}

func (svc *Service) CourseSections(ctx context.Context, courseID int64) ([]Section, error) {
	return svc.repo.ListSections(ctx, courseID)
}

// ReindexCourses pushes every course to the search index.
func (svc *Service) ReindexCourses(ctx context.Context) (int, error) {
	if svc.index == nil {
		return 0, nil
	}
	courses, err := svc.repo.QueryCourses(ctx, CourseQuery{})
	if err != nil {
		return 0, errors.Wrap(err, "listing courses")
	}
	for i, course := range courses {
		if err := svc.index.IndexCourse(ctx, course); err != nil {
			return i, errors.Wrapf(err, "indexing course %d", course.ID)
		}
	}
	return len(courses), nil
}

func (svc *Service) indexCourse(ctx context.Context, course Course) {
	if svc.index == nil {
		return
	}
	if course.InstructorName == "" {
		if inst, err := svc.repo.GetInstructor(ctx, course.InstructorID); err == nil {
			course.InstructorName = inst.FullName
		}
	}
	if err := svc.index.IndexCourse(ctx, course); err != nil {
		svc.logger.Error("indexing course", errors.Wrapf(err, "course %d", course.ID))
	}
}

func slugError() error {
	return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = core.CleanString(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
