package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	inmemdb "github.com/eminingcampus/campus/storage/database/inmem"
	"github.com/eminingcampus/campus/tests/testutil"
)

const userID = "6f1c7f6e-3a43-4d8e-9f55-2f3c1f2b9a10"

type enrollmentsMock map[int64]bool

func (m enrollmentsMock) IsEnrolled(_ context.Context, _ string, courseID int64) (bool, error) {
	return m[courseID], nil
}

func setup(t *testing.T, enrolled enrollmentsMock) (*cart.Service, []catalog.Course) {
	ctx := context.Background()
	db := inmemdb.Open()
	courses := catalog.NewService(inmemdb.NewCatalogRepository(db), nil, testutil.NewLogger())

	inst, err := courses.CreateInstructor(ctx, catalog.NewInstructor{FullName: "Abena Asante"})
	require.NoError(t, err)
	var created []catalog.Course
	for i, price := range []string{"49.99", "150.00"} {
		course, err := courses.CreateCourse(ctx, catalog.NewCourse{
			Title:        "Blasting " + price,
			Slug:         []string{"blasting-basics", "blasting-advanced"}[i],
			InstructorID: inst.ID,
			Price:        decimal.RequireFromString(price),
		})
		require.NoError(t, err)
		created = append(created, course)
	}
	return cart.NewService(inmemdb.NewCartRepository(db), courses, enrolled), created
}

func TestService_Get_Empty(t *testing.T) {
	svc, _ := setup(t, enrollmentsMock{})
	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.True(t, view.Total.IsZero())
	assert.Equal(t, catalog.DefaultCurrency, view.Currency)

	again, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID, "one cart per user")
}

func TestService_AddCourse(t *testing.T) {
	ctx := context.Background()
	svc, courses := setup(t, enrollmentsMock{})

	for _, course := range courses {
		item, added, err := svc.AddCourse(ctx, userID, course.ID)
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, course.ID, item.Course.ID)
	}
	item, added, err := svc.AddCourse(ctx, userID, courses[0].ID)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, courses[0].ID, item.CourseID)

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
	assert.Equal(t, "199.99", view.Total.StringFixed(2))

	_, _, err = svc.AddCourse(ctx, userID, 999)
	assert.Equal(t, catalog.ErrCourseNotFound, err)
}

func TestService_AddCourse_AlreadyEnrolled(t *testing.T) {
	enrolled := enrollmentsMock{}
	svc, courses := setup(t, enrolled)
	enrolled[courses[1].ID] = true

	_, added, err := svc.AddCourse(context.Background(), userID, courses[1].ID)
	assert.Equal(t, cart.ErrAlreadyEnrolled, err)
	assert.False(t, added)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, courses := setup(t, enrollmentsMock{})
	first, _, err := svc.AddCourse(ctx, userID, courses[0].ID)
	require.NoError(t, err)
	_, _, err = svc.AddCourse(ctx, userID, courses[1].ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, userID, first.ID))
	assert.Equal(t, cart.ErrItemNotFound, svc.RemoveItem(ctx, userID, first.ID))
	assert.Equal(t, cart.ErrItemNotFound, svc.RemoveItem(ctx, "someone-else", first.ID+1))

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, courses[1].ID, view.Items[0].CourseID)

	require.NoError(t, svc.Clear(ctx, userID))
	view, err = svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
}
