package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateCategory(_ context.Context, cat catalog.Category) (catalog.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.categories {
		if c.Slug == cat.Slug {
			return catalog.Category{}, catalog.ErrSlugExists
		}
	}
	cat.ID = repo.db.nextID("categories")
	repo.db.categories[cat.ID] = &cat
	return cat, nil
}

func (repo *catalogRepository) ListCategories(_ context.Context) ([]catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cats := make([]catalog.Category, 0, len(repo.db.categories))
	for _, id := range sortedKeys(repo.db.categories) {
		cats = append(cats, *repo.db.categories[id])
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *catalogRepository) CreateInstructor(_ context.Context, inst catalog.Instructor) (catalog.Instructor, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inst.ID = repo.db.nextID("instructors")
	repo.db.instructors[inst.ID] = &inst
	return inst, nil
}

func (repo *catalogRepository) GetInstructor(_ context.Context, id int64) (catalog.Instructor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inst, ok := repo.db.instructors[id]; ok {
		return *inst, nil
	}
	return catalog.Instructor{}, catalog.ErrInstructorNotFound
}

func (repo *catalogRepository) ListInstructors(_ context.Context) ([]catalog.Instructor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	insts := make([]catalog.Instructor, 0, len(repo.db.instructors))
	for _, id := range sortedKeys(repo.db.instructors) {
		insts = append(insts, *repo.db.instructors[id])
	}
	return insts, nil
}

func (repo *catalogRepository) CreateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.courses {
		if c.Slug == course.Slug {
			return catalog.Course{}, catalog.ErrSlugExists
		}
	}
	if _, ok := repo.db.instructors[course.InstructorID]; !ok {
		return catalog.Course{}, catalog.ErrInstructorNotFound
	}
	if course.CategoryID.Valid {
		if _, ok := repo.db.categories[course.CategoryID.Int64]; !ok {
			return catalog.Course{}, catalog.ErrCategoryNotFound
		}
	}
	course.ID = repo.db.nextID("courses")
	repo.db.courses[course.ID] = &course
	return repo.joinCourse(course), nil
}

func (repo *catalogRepository) UpdateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[course.ID]; !ok {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	if course.CategoryID.Valid {
		if _, ok := repo.db.categories[course.CategoryID.Int64]; !ok {
			return catalog.Course{}, catalog.ErrCategoryNotFound
		}
	}
	repo.db.courses[course.ID] = &course
	return repo.joinCourse(course), nil
}

func (repo *catalogRepository) GetCourse(_ context.Context, filter catalog.CourseFilter) (catalog.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != 0 {
		if course, ok := repo.db.courses[filter.ID]; ok {
			return repo.joinCourse(*course), nil
		}
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	for _, course := range repo.db.courses {
		if filter.Slug != "" && course.Slug == filter.Slug {
			return repo.joinCourse(*course), nil
		}
	}
	return catalog.Course{}, catalog.ErrCourseNotFound
}

func (repo *catalogRepository) QueryCourses(_ context.Context, query catalog.CourseQuery, ordering ...core.DBOrdering) ([]catalog.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(query.Search)
	courses := make([]catalog.Course, 0)
	for _, id := range sortedKeys(repo.db.courses) {
		course := repo.joinCourse(*repo.db.courses[id])
		if search != "" &&
			!strings.Contains(strings.ToLower(course.Title), search) &&
			!strings.Contains(strings.ToLower(course.Description), search) &&
			!strings.Contains(strings.ToLower(course.InstructorName), search) {
			continue
		}
		if query.Category != "" && course.CategorySlug.String != query.Category {
			continue
		}
		if query.Level != "" && course.Level != query.Level {
			continue
		}
		if query.PriceMin != nil && course.Price.LessThan(*query.PriceMin) {
			continue
		}
		if query.PriceMax != nil && course.Price.GreaterThan(*query.PriceMax) {
			continue
		}
		if query.Featured != nil && course.IsFeatured != *query.Featured {
			continue
		}
		if query.IDs != nil && !containsID(query.IDs, course.ID) {
			continue
		}
		courses = append(courses, course)
	}

	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		sort.SliceStable(courses, func(a, b int) bool {
			less, greater := compareCourses(courses[a], courses[b], ord.Field)
			if ord.Ascending {
				return less
			}
			return greater
		})
	}
	return courses, nil
}

func (repo *catalogRepository) CreateSection(_ context.Context, section catalog.Section) (catalog.Section, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[section.CourseID]; !ok {
		return catalog.Section{}, catalog.ErrCourseNotFound
	}
	section.ID = repo.db.nextID("sections")
	section.Lessons = nil
	repo.db.sections[section.ID] = &section
	section.Lessons = []catalog.Lesson{}
	return section, nil
}

func (repo *catalogRepository) GetSection(_ context.Context, id int64) (catalog.Section, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if section, ok := repo.db.sections[id]; ok {
		return *section, nil
	}
	return catalog.Section{}, catalog.ErrSectionNotFound
}

func (repo *catalogRepository) ListSections(_ context.Context, courseID int64) ([]catalog.Section, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sections := repo.courseSections(courseID)
	for i := range sections {
		sections[i].Lessons = repo.sectionLessons(sections[i])
	}
	return sections, nil
}

func (repo *catalogRepository) CreateLesson(_ context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	section, ok := repo.db.sections[lesson.SectionID]
	if !ok {
		return catalog.Lesson{}, catalog.ErrSectionNotFound
	}
	lesson.ID = repo.db.nextID("lessons")
	lesson.CourseID = section.CourseID
	repo.db.lessons[lesson.ID] = &lesson
	return lesson, nil
}

func (repo *catalogRepository) GetLesson(_ context.Context, id int64) (catalog.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if lesson, ok := repo.db.lessons[id]; ok {
		return *lesson, nil
	}
	return catalog.Lesson{}, catalog.ErrLessonNotFound
}

func (repo *catalogRepository) ListLessons(_ context.Context, courseID int64) ([]catalog.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]catalog.Lesson, 0)
	for _, section := range repo.courseSections(courseID) {
		lessons = append(lessons, repo.sectionLessons(section)...)
	}
	return lessons, nil
}

// joinCourse fills the joined fields; the lock must be held.
func (repo *catalogRepository) joinCourse(course catalog.Course) catalog.Course {
	if inst, ok := repo.db.instructors[course.InstructorID]; ok {
		course.InstructorName = inst.FullName
	}
	course.CategorySlug.Valid = false
	if course.CategoryID.Valid {
		if cat, ok := repo.db.categories[course.CategoryID.Int64]; ok {
			course.CategorySlug.SetValid(cat.Slug)
		}
	}
	return course
}

func (repo *catalogRepository) courseSections(courseID int64) []catalog.Section {
	sections := make([]catalog.Section, 0)
	for _, id := range sortedKeys(repo.db.sections) {
		if section := repo.db.sections[id]; section.CourseID == courseID {
			sections = append(sections, *section)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	return sections
}

func (repo *catalogRepository) sectionLessons(section catalog.Section) []catalog.Lesson {
	lessons := make([]catalog.Lesson, 0)
	for _, id := range sortedKeys(repo.db.lessons) {
		if lesson := repo.db.lessons[id]; lesson.SectionID == section.ID {
			lessons = append(lessons, *lesson)
		}
	}
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons
}

func compareCourses(a, b catalog.Course, field string) (less, greater bool) {
	switch field {
	case "price":
		return a.Price.LessThan(b.Price), a.Price.GreaterThan(b.Price)
	case "title":
		return a.Title < b.Title, a.Title > b.Title
	default:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
	}
}
