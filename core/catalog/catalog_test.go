package catalog_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	inmemdb "github.com/eminingcampus/campus/storage/database/inmem"
	"github.com/eminingcampus/campus/tests/testutil"
)

type indexMock struct {
	indexed   map[int64]catalog.Course
	hits      []int64
	searchErr error
}

func (m *indexMock) IndexCourse(_ context.Context, course catalog.Course) error {
	m.indexed[course.ID] = course
	return nil
}

func (m *indexMock) SearchCourses(context.Context, string) ([]int64, error) {
	return m.hits, m.searchErr
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func boolPtr(b bool) *bool { return &b }

type fixture struct {
	svc   *catalog.Service
	index *indexMock
	inst  catalog.Instructor
	cat   catalog.Category
}

func setup(t *testing.T) *fixture {
	ctx := context.Background()
	f := &fixture{index: &indexMock{indexed: map[int64]catalog.Course{}}}
	f.svc = catalog.NewService(inmemdb.NewCatalogRepository(inmemdb.Open()), f.index, testutil.NewLogger())

	var err error
	f.inst, err = f.svc.CreateInstructor(ctx, catalog.NewInstructor{FullName: "Ama Ata Aidoo"})
	require.NoError(t, err)
	f.cat, err = f.svc.CreateCategory(ctx, catalog.NewCategory{Name: "Mining", Slug: "mining"})
	require.NoError(t, err)
	return f
}

func (f *fixture) createCourses(t *testing.T) []catalog.Course {
	ctx := context.Background()
	var courses []catalog.Course
	for _, nc := range []catalog.NewCourse{
		{Title: "Mine Surveying", Slug: "mine-surveying", Level: catalog.LevelBeginner, Price: decimal.NewFromInt(50), CategoryID: &f.cat.ID},
		{Title: "Mineral Economics", Slug: "mineral-economics", Level: catalog.LevelAdvanced, Price: decimal.NewFromInt(300), IsFeatured: true},
		{Title: "Rock Mechanics", Slug: "rock-mechanics", Level: catalog.LevelIntermediate, Price: decimal.NewFromInt(150), CategoryID: &f.cat.ID, Description: "Stress in underground openings"},
	} {
		nc.InstructorID = f.inst.ID
		course, err := f.svc.CreateCourse(ctx, nc)
		require.NoError(t, err)
		courses = append(courses, course)
	}
	return courses
}

func TestNewCourse_Validate(t *testing.T) {
	validate := testutil.NewValidator()

	nc := catalog.NewCourse{Title: "  Intro to Gold Refining ", InstructorID: 1, Price: decimal.RequireFromString("99.90")}
	require.NoError(t, nc.Validate(validate))
	assert.Equal(t, "Intro to Gold Refining", nc.Title)
	assert.Equal(t, "intro-to-gold-refining", nc.Slug)
	assert.Equal(t, catalog.LevelIntermediate, nc.Level)

	tests := []struct {
		name   string
		course catalog.NewCourse
	}{
		{"missing title", catalog.NewCourse{Slug: "x", InstructorID: 1}},
		{"missing instructor", catalog.NewCourse{Title: "x"}},
		{"bad level", catalog.NewCourse{Title: "x", InstructorID: 1, Level: "expert"}},
		{"negative price", catalog.NewCourse{Title: "x", InstructorID: 1, Price: decimal.NewFromInt(-1)}},
		{"fractional pesewas", catalog.NewCourse{Title: "x", InstructorID: 1, Price: decimal.RequireFromString("1.005")}},
		{"bad slug", catalog.NewCourse{Title: "x", Slug: "not a slug", InstructorID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.course.Validate(validate))
		})
	}
}

func TestNewLesson_Validate(t *testing.T) {
	validate := testutil.NewValidator()

	video := catalog.NewLesson{Title: "Intro"}
	err := video.Validate(validate)
	assert.Error(t, err, "video lessons need a url")
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)

	video.VideoURL = "https://youtu.be/dQw4w9WgXcQ"
	assert.NoError(t, video.Validate(validate))
	assert.Equal(t, catalog.ContentVideo, video.ContentType)

	article := catalog.NewLesson{Title: "Reading", ContentType: "Article"}
	assert.NoError(t, article.Validate(validate))
	assert.Equal(t, catalog.ContentArticle, article.ContentType)

	assert.Error(t, (&catalog.NewLesson{Title: "x", ContentType: "podcast"}).Validate(validate))
}

func TestLesson_EmbedURL(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"", ""},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		{"https://vimeo.com/123456", "https://vimeo.com/123456"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.Lesson{VideoURL: tt.url}.EmbedURL())
		})
	}
}

func TestService_CreateCourse(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	courses := f.createCourses(t)

	assert.Equal(t, catalog.DefaultCurrency, courses[0].Currency)
	assert.Equal(t, "Ama Ata Aidoo", f.index.indexed[courses[0].ID].InstructorName)
	assert.Len(t, f.index.indexed, 3)

	_, err := f.svc.CreateCourse(ctx, catalog.NewCourse{Title: "Again", Slug: "mine-surveying", InstructorID: f.inst.ID})
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "duplicate slug; got %v", err)

	_, err = f.svc.CreateCourse(ctx, catalog.NewCourse{Title: "Orphan", Slug: "orphan", InstructorID: f.inst.ID + 10})
	_, ok = errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "unknown instructor; got %v", err)

	got, err := f.svc.GetCourseBySlug(ctx, " Rock-Mechanics ")
	require.NoError(t, err)
	assert.Equal(t, courses[2].ID, got.ID)
	assert.Equal(t, "mining", got.CategorySlug.String)

	_, err = f.svc.GetCourseBySlug(ctx, "nope")
	assert.True(t, core.IsNotFound(err))
}

func TestService_QueryCourses(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	courses := f.createCourses(t)

	ids := func(cs []catalog.Course) []int64 {
		out := make([]int64, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}
	tests := []struct {
		name     string
		query    catalog.CourseQuery
		ordering []core.DBOrdering
		want     []int64
	}{
		{"title descending", catalog.CourseQuery{}, []core.DBOrdering{{Field: "title"}}, []int64{courses[2].ID, courses[1].ID, courses[0].ID}},
		{"category", catalog.CourseQuery{Category: "Mining"}, []core.DBOrdering{{Field: "price", Ascending: true}}, []int64{courses[0].ID, courses[2].ID}},
		{"level", catalog.CourseQuery{Level: "advanced"}, nil, []int64{courses[1].ID}},
		{"price range", catalog.CourseQuery{PriceMin: price("100"), PriceMax: price("300")}, []core.DBOrdering{{Field: "price"}}, []int64{courses[1].ID, courses[2].ID}},
		{"featured", catalog.CourseQuery{Featured: boolPtr(true)}, nil, []int64{courses[1].ID}},
		{"title ordering", catalog.CourseQuery{}, []core.DBOrdering{{Field: "title", Ascending: true}}, []int64{courses[0].ID, courses[1].ID, courses[2].ID}},
		{"unknown ordering ignored", catalog.CourseQuery{Level: "beginner"}, []core.DBOrdering{{Field: "password"}}, []int64{courses[0].ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.QueryCourses(ctx, tt.query, tt.ordering...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestService_QueryCourses_Search(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	courses := f.createCourses(t)

	f.index.hits = []int64{courses[1].ID}
	got, err := f.svc.QueryCourses(ctx, catalog.CourseQuery{Search: "economics"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, courses[1].ID, got[0].ID)

	f.index.hits = []int64{}
	got, err = f.svc.QueryCourses(ctx, catalog.CourseQuery{Search: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, got)

	// the repository match takes over when the index is down
	f.index.searchErr = errors.New("index unavailable")
	got, err = f.svc.QueryCourses(ctx, catalog.CourseQuery{Search: "underground"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, courses[2].ID, got[0].ID)
}

func TestService_UpdateCourse(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.createCourses(t)

	title, level := "Rock Mechanics II", "advanced"
	updated, err := f.svc.UpdateCourse(ctx, "rock-mechanics", catalog.UpdateCourse{
		Title: &title,
		Level: &level,
		Price: price("175.5"),
		Tags:  []string{" geotech ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, level, updated.Level)
	assert.Equal(t, "175.50", updated.Price.StringFixed(2))
	assert.Equal(t, []string{"geotech"}, []string(updated.Tags))
	assert.Equal(t, "rock-mechanics", updated.Slug)
	assert.Equal(t, title, f.index.indexed[updated.ID].Title)

	_, err = f.svc.UpdateCourse(ctx, "missing", catalog.UpdateCourse{})
	assert.True(t, core.IsNotFound(err))
}

func TestService_CourseDetail(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.createCourses(t)

	second, err := f.svc.AddSection(ctx, "mine-surveying", catalog.NewSection{Title: "Field work", Order: 2})
	require.NoError(t, err)
	first, err := f.svc.AddSection(ctx, "mine-surveying", catalog.NewSection{Title: "Theory", Order: 1})
	require.NoError(t, err)
	for i, sectionID := range []int64{second.ID, first.ID, first.ID} {
		_, err = f.svc.AddLesson(ctx, sectionID, catalog.NewLesson{
			Title:           "Lesson",
			ContentType:     catalog.ContentArticle,
			DurationMinutes: 10 * (i + 1),
			Order:           i,
		})
		require.NoError(t, err)
	}
	_, err = f.svc.AddLesson(ctx, second.ID+first.ID, catalog.NewLesson{Title: "Lost"})
	assert.Equal(t, catalog.ErrSectionNotFound, err)

	detail, err := f.svc.CourseDetail(ctx, "mine-surveying")
	require.NoError(t, err)
	assert.Equal(t, 3, detail.LessonCount)
	assert.Equal(t, 60, detail.TotalMinutes)
	require.Len(t, detail.Sections, 2)
	assert.Equal(t, "Theory", detail.Sections[0].Title)
	assert.Len(t, detail.Sections[0].Lessons, 2)

	lessons, err := f.svc.CourseLessons(ctx, detail.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	assert.Equal(t, first.ID, lessons[0].SectionID)
	assert.Equal(t, second.ID, lessons[2].SectionID)
}

func TestService_ReindexCourses(t *testing.T) {
	f := setup(t)
	f.createCourses(t)
	f.index.indexed = map[int64]catalog.Course{}

	n, err := f.svc.ReindexCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, f.index.indexed, 3)
}
