package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
)

const (
	courseSelect = `SELECT c.*, i.full_name AS instructor_name, cat.slug AS category_slug
		FROM courses c
		JOIN instructors i ON i.id = c.instructor_id
		LEFT JOIN categories cat ON cat.id = c.category_id`

	lessonSelect = `SELECT l.*, s.course_id
		FROM lessons l
		JOIN sections s ON s.id = l.section_id`
)

type catalogRepository struct {
	db core.DBExecutor
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db core.DBExecutor) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category) (catalog.Category, error) {
	q := `INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id`
	if err := executor(ctx, repo.db).GetContext(ctx, &cat.ID, q, cat.Name, cat.Slug); err != nil {
		if isViolation(err, uniqueViolation) {
			return catalog.Category{}, catalog.ErrSlugExists
		}
		return catalog.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

func (repo *catalogRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	cats := make([]catalog.Category, 0)
	err := executor(ctx, repo.db).SelectContext(ctx, &cats, `SELECT * FROM categories ORDER BY name, id`)
	return cats, errors.Wrap(err, "listing categories")
}

func (repo *catalogRepository) CreateInstructor(ctx context.Context, inst catalog.Instructor) (catalog.Instructor, error) {
	q := `INSERT INTO instructors (user_id, full_name, bio) VALUES ($1, $2, $3) RETURNING id`
	if err := executor(ctx, repo.db).GetContext(ctx, &inst.ID, q, inst.UserID, inst.FullName, inst.Bio); err != nil {
		return catalog.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	return inst, nil
}

func (repo *catalogRepository) GetInstructor(ctx context.Context, id int64) (catalog.Instructor, error) {
	var inst catalog.Instructor
	if err := executor(ctx, repo.db).GetContext(ctx, &inst, `SELECT * FROM instructors WHERE id = $1`, id); err != nil {
		return catalog.Instructor{}, trapNoRows(err, catalog.ErrInstructorNotFound, "getting instructor")
	}
	return inst, nil
}

func (repo *catalogRepository) ListInstructors(ctx context.Context) ([]catalog.Instructor, error) {
	insts := make([]catalog.Instructor, 0)
	err := executor(ctx, repo.db).SelectContext(ctx, &insts, `SELECT * FROM instructors ORDER BY id`)
	return insts, errors.Wrap(err, "listing instructors")
}

func (repo *catalogRepository) CreateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	q := `INSERT INTO courses (title, slug, description, instructor_id, category_id, level, price, currency, image_url,
			is_featured, what_you_will_learn, requirements, target_audience, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &course.ID, q,
		course.Title, course.Slug, course.Description, course.InstructorID, course.CategoryID, course.Level,
		course.Price, course.Currency, course.ImageURL, course.IsFeatured, course.WhatYouWillLearn,
		course.Requirements, course.TargetAudience, course.Tags, course.CreatedAt, course.UpdatedAt)
	if err != nil {
		return catalog.Course{}, repo.trapCourseErr(err, "inserting course")
	}
	return repo.GetCourse(ctx, catalog.CourseFilter{ID: course.ID})
}

func (repo *catalogRepository) UpdateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	q := `UPDATE courses SET title = $2, description = $3, category_id = $4, level = $5, price = $6, image_url = $7,
			is_featured = $8, what_you_will_learn = $9, requirements = $10, target_audience = $11, tags = $12,
			updated_at = $13
		WHERE id = $1`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q,
		course.ID, course.Title, course.Description, course.CategoryID, course.Level, course.Price, course.ImageURL,
		course.IsFeatured, course.WhatYouWillLearn, course.Requirements, course.TargetAudience, course.Tags,
		course.UpdatedAt))
	if err != nil {
		return catalog.Course{}, repo.trapCourseErr(err, "updating course")
	}
	if n == 0 {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	return repo.GetCourse(ctx, catalog.CourseFilter{ID: course.ID})
}

func (repo *catalogRepository) GetCourse(ctx context.Context, filter catalog.CourseFilter) (catalog.Course, error) {
	var conds conditions
	switch {
	case filter.ID != 0:
		conds.add("c.id = ?", filter.ID)
	case filter.Slug != "":
		conds.add("c.slug = ?", filter.Slug)
	default:
		return catalog.Course{}, catalog.ErrCourseNotFound
	}

	var course catalog.Course
	if err := executor(ctx, repo.db).GetContext(ctx, &course, rebind(courseSelect+conds.where()), conds.args...); err != nil {
		return catalog.Course{}, trapNoRows(err, catalog.ErrCourseNotFound, "getting course")
	}
	return course, nil
}

func (repo *catalogRepository) QueryCourses(ctx context.Context, query catalog.CourseQuery, ordering ...core.DBOrdering) ([]catalog.Course, error) {
	var conds conditions
	if query.Search != "" {
		val := "%" + query.Search + "%"
		conds.add("(c.title ILIKE ? OR c.description ILIKE ? OR i.full_name ILIKE ?)", val, val, val)
	}
	if query.Category != "" {
		conds.add("cat.slug = ?", query.Category)
	}
	if query.Level != "" {
		conds.add("c.level = ?", query.Level)
	}
	if query.PriceMin != nil {
		conds.add("c.price >= ?", *query.PriceMin)
	}
	if query.PriceMax != nil {
		conds.add("c.price <= ?", *query.PriceMax)
	}
	if query.Featured != nil {
		conds.add("c.is_featured = ?", *query.Featured)
	}
	if query.IDs != nil {
		conds.add("c.id = ANY(?)", pq.Array(query.IDs))
	}
	ordering = append(ordering, core.DBOrdering{Field: "id", Ascending: true})

	courses := make([]catalog.Course, 0)
	q := rebind(courseSelect + conds.where() + orderBy(ordering, "c."))
	if err := executor(ctx, repo.db).SelectContext(ctx, &courses, q, conds.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo *catalogRepository) CreateSection(ctx context.Context, section catalog.Section) (catalog.Section, error) {
	q := `INSERT INTO sections (course_id, title, description, position, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &section.ID, q,
		section.CourseID, section.Title, section.Description, section.Order, section.CreatedAt)
	if err != nil {
		if isViolation(err, foreignKeyViolation) {
			return catalog.Section{}, catalog.ErrCourseNotFound
		}
		return catalog.Section{}, errors.Wrap(err, "inserting section")
	}
	section.Lessons = []catalog.Lesson{}
	return section, nil
}

func (repo *catalogRepository) GetSection(ctx context.Context, id int64) (catalog.Section, error) {
	var section catalog.Section
	if err := executor(ctx, repo.db).GetContext(ctx, &section, `SELECT * FROM sections WHERE id = $1`, id); err != nil {
		return catalog.Section{}, trapNoRows(err, catalog.ErrSectionNotFound, "getting section")
	}
	return section, nil
}

func (repo *catalogRepository) ListSections(ctx context.Context, courseID int64) ([]catalog.Section, error) {
	sections := make([]catalog.Section, 0)
	q := `SELECT * FROM sections WHERE course_id = $1 ORDER BY position, id`
	if err := executor(ctx, repo.db).SelectContext(ctx, &sections, q, courseID); err != nil {
		return nil, errors.Wrap(err, "listing sections")
	}
	lessons, err := repo.ListLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	bySection := make(map[int64][]catalog.Lesson, len(sections))
	for _, lesson := range lessons {
		bySection[lesson.SectionID] = append(bySection[lesson.SectionID], lesson)
	}
	for i := range sections {
		sections[i].Lessons = bySection[sections[i].ID]
		if sections[i].Lessons == nil {
			sections[i].Lessons = []catalog.Lesson{}
		}
	}
	return sections, nil
}

func (repo *catalogRepository) CreateLesson(ctx context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	q := `INSERT INTO lessons (section_id, title, content_type, video_url, article_content, duration_minutes, position,
			is_preview, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err := executor(ctx, repo.db).GetContext(ctx, &lesson.ID, q,
		lesson.SectionID, lesson.Title, lesson.ContentType, lesson.VideoURL, lesson.ArticleContent,
		lesson.DurationMinutes, lesson.Order, lesson.IsPreview, lesson.CreatedAt, lesson.UpdatedAt)
	if err != nil {
		if isViolation(err, foreignKeyViolation) {
			return catalog.Lesson{}, catalog.ErrSectionNotFound
		}
		return catalog.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.GetLesson(ctx, lesson.ID)
}

func (repo *catalogRepository) GetLesson(ctx context.Context, id int64) (catalog.Lesson, error) {
	var lesson catalog.Lesson
	if err := executor(ctx, repo.db).GetContext(ctx, &lesson, lessonSelect+` WHERE l.id = $1`, id); err != nil {
		return catalog.Lesson{}, trapNoRows(err, catalog.ErrLessonNotFound, "getting lesson")
	}
	return lesson, nil
}

func (repo *catalogRepository) ListLessons(ctx context.Context, courseID int64) ([]catalog.Lesson, error) {
	lessons := make([]catalog.Lesson, 0)
	q := lessonSelect + ` WHERE s.course_id = $1 ORDER BY s.position, s.id, l.position, l.id`
	if err := executor(ctx, repo.db).SelectContext(ctx, &lessons, q, courseID); err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	return lessons, nil
}

func (repo *catalogRepository) trapCourseErr(err error, msg string) error {
	switch {
	case isViolation(err, uniqueViolation):
		return catalog.ErrSlugExists
	case isViolation(err, foreignKeyViolation):
		if violatedConstraint(err) == "courses_category_id_fkey" {
			return catalog.ErrCategoryNotFound
		}
		return catalog.ErrInstructorNotFound
	}
	return errors.Wrap(err, msg)
}
