package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/review"
)

type catalogApi struct {
	svc      *catalog.Service
	learning *learning.Service
	reviews  *review.Service
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := catalogApi{
		svc:      deps.CatalogSvc,
		learning: deps.LearningSvc,
		reviews:  deps.ReviewSvc,
		validate: deps.Validate,
	}

	g.GET("/categories", api.listCategories)
	g.POST("/categories", api.createCategory, jwt, admin)
	g.GET("/instructors", api.listInstructors)
	g.POST("/instructors", api.createInstructor, jwt, admin)
	g.GET("/instructors/:id", api.retrieveInstructor)

	cg := g.Group("/courses")
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse, jwt, admin)
	cg.GET("/:slug", api.retrieveCourse)
	cg.PUT("/:slug", api.updateCourse, jwt, admin)
	cg.POST("/:slug/sections", api.addSection, jwt, admin)

	g.POST("/sections/:id/lessons", api.addLesson, jwt, admin)
}

// CourseDetailResponse is the public course page.
type CourseDetailResponse struct {
	catalog.CourseDetail
	review.Stats
	EnrollmentCount int `json:"enrollment_count"`
}

func (api *catalogApi) listCategories(ctx echo.Context) error {
	cats, err := api.svc.ListCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing categories")
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) listInstructors(ctx echo.Context) error {
	insts, err := api.svc.ListInstructors(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing instructors")
	}
	if insts == nil {
		insts = []catalog.Instructor{}
	}
	return ctx.JSON(http.StatusOK, insts)
}

func (api *catalogApi) retrieveInstructor(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	inst, err := api.svc.GetInstructor(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *catalogApi) createInstructor(ctx echo.Context) error {
	var data catalog.NewInstructor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	inst, err := api.svc.CreateInstructor(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating instructor")
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *catalogApi) queryCourses(ctx echo.Context) error {
	query, err := bindCourseQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []catalog.Course{})
	}
	courses, err := api.svc.QueryCourses(ctx.Request().Context(), query, bindOrdering(ctx)...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []catalog.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) createCourse(ctx echo.Context) error {
	var data catalog.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *catalogApi) retrieveCourse(ctx echo.Context) error {
	c := ctx.Request().Context()
	detail, err := api.svc.CourseDetail(c, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course detail")
	}
	stats, err := api.reviews.Stats(c, detail.ID)
	if err != nil {
		return errors.Wrap(err, "getting review stats")
	}
	count, err := api.learning.CountEnrollments(c, detail.ID)
	if err != nil {
		return errors.Wrap(err, "counting enrollments")
	}

	return ctx.JSON(http.StatusOK, CourseDetailResponse{CourseDetail: detail, Stats: stats, EnrollmentCount: count})
}

func (api *catalogApi) updateCourse(ctx echo.Context) error {
	var data catalog.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.UpdateCourse(ctx.Request().Context(), ctx.Param("slug"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *catalogApi) addSection(ctx echo.Context) error {
	var data catalog.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	section, err := api.svc.AddSection(ctx.Request().Context(), ctx.Param("slug"), data)
	if err != nil {
		return errors.Wrap(err, "adding section")
	}
	return ctx.JSON(http.StatusCreated, section)
}

func (api *catalogApi) addLesson(ctx echo.Context) error {
	sectionID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}

	var data catalog.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lesson, err := api.svc.AddLesson(ctx.Request().Context(), sectionID, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

// bindCourseQuery reads the course listing filters from the query string.
func bindCourseQuery(ctx echo.Context) (catalog.CourseQuery, error) {
	params := ctx.QueryParams()
	query := catalog.CourseQuery{
		Search:   params.Get("search"),
		Category: params.Get("category"),
		Level:    params.Get("level"),
	}
	for param, dst := range map[string]**decimal.Decimal{"price_min": &query.PriceMin, "price_max": &query.PriceMax} {
		if val := params.Get(param); val != "" {
			price, err := decimal.NewFromString(val)
			if err != nil {
				return catalog.CourseQuery{}, errInvalidQuery
			}
			*dst = &price
		}
	}
	if val := params.Get("featured"); val != "" {
		featured, err := strconv.ParseBool(val)
		if err != nil {
			return catalog.CourseQuery{}, errInvalidQuery
		}
		query.Featured = &featured
	}
	query.Clean()
	return query, nil
}
