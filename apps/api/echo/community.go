package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
)

type communityApi struct {
	catalog     *catalog.Service
	reviews     *review.Service
	discussions *discussion.Service
	users       *user.Service
	validate    *validator.Validate
}

func registerCommunityAPI(g *echo.Group, jwt, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := communityApi{
		catalog:     deps.CatalogSvc,
		reviews:     deps.ReviewSvc,
		discussions: deps.DiscussionSvc,
		users:       deps.UserSvc,
		validate:    deps.Validate,
	}

	g.GET("/courses/:slug/reviews", api.listReviews)
	g.POST("/courses/:slug/reviews", api.addReview, jwt, studentMiddleware())
	g.PUT("/reviews/:id", api.editReview, jwt)
	g.DELETE("/reviews/:id", api.deleteReview, jwt, admin)

	g.GET("/courses/:slug/discussions", api.listDiscussions, jwt)
	g.POST("/courses/:slug/discussions", api.createDiscussion, jwt)
	g.GET("/discussions/:id", api.retrieveDiscussion, jwt)
	g.PUT("/discussions/:id", api.moderateDiscussion, jwt, admin)
	g.DELETE("/discussions/:id", api.deleteDiscussion, jwt, admin)
	g.POST("/discussions/:id/replies", api.reply, jwt)
}

func (api *communityApi) courseID(ctx echo.Context) (int64, error) {
	course, err := api.catalog.GetCourseBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return 0, errors.Wrap(err, "getting course by slug")
	}
	return course.ID, nil
}

func (api *communityApi) listReviews(ctx echo.Context) error {
	courseID, err := api.courseID(ctx)
	if err != nil {
		return err
	}
	reviews, err := api.reviews.ListForCourse(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "listing reviews")
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	return ctx.JSON(http.StatusOK, reviews)
}

func (api *communityApi) addReview(ctx echo.Context) error {
	courseID, err := api.courseID(ctx)
	if err != nil {
		return err
	}
	var data review.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rev, created, err := api.reviews.Add(ctx.Request().Context(), usr.ID, courseID, data)
	if err != nil {
		return errors.Wrap(err, "adding review")
	}
	if created {
		return ctx.JSON(http.StatusCreated, rev)
	}
	return ctx.JSON(http.StatusOK, rev)
}

func (api *communityApi) editReview(ctx echo.Context) error {
	reviewID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	var data review.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rev, err := api.reviews.Edit(ctx.Request().Context(), usr.ID, reviewID, data)
	if err != nil {
		return errors.Wrap(err, "editing review")
	}
	return ctx.JSON(http.StatusOK, rev)
}

func (api *communityApi) deleteReview(ctx echo.Context) error {
	reviewID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	if err := api.reviews.Delete(ctx.Request().Context(), reviewID); err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *communityApi) listDiscussions(ctx echo.Context) error {
	courseID, err := api.courseID(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	discussions, err := api.discussions.ListForCourse(ctx.Request().Context(), usr, courseID)
	if err != nil {
		return errors.Wrap(err, "listing discussions")
	}
	if discussions == nil {
		discussions = []discussion.Discussion{}
	}
	return ctx.JSON(http.StatusOK, discussions)
}

func (api *communityApi) createDiscussion(ctx echo.Context) error {
	courseID, err := api.courseID(ctx)
	if err != nil {
		return err
	}
	var data discussion.NewDiscussion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDiscussion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	d, err := api.discussions.Create(ctx.Request().Context(), usr, courseID, data)
	if err != nil {
		return errors.Wrap(err, "creating discussion")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *communityApi) retrieveDiscussion(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	thread, err := api.discussions.Detail(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting discussion")
	}
	return ctx.JSON(http.StatusOK, thread)
}

func (api *communityApi) moderateDiscussion(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	var data discussion.Moderation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Moderation")
	}

	d, err := api.discussions.Moderate(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "moderating discussion")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *communityApi) deleteDiscussion(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	if err := api.discussions.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting discussion")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *communityApi) reply(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	var data discussion.NewReply
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.discussions.Reply(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "replying to discussion")
	}
	return ctx.JSON(http.StatusCreated, r)
}
