package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/user"
)

type learningApi struct {
	svc   *learning.Service
	users *user.Service
}

func registerLearningAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := learningApi{svc: deps.LearningSvc, users: deps.UserSvc}

	g.GET("/dashboard", api.dashboard, jwt)
	g.GET("/learn/:slug", api.courseContent, jwt)
	g.GET("/learn/:slug/lessons/:lesson", api.viewLesson, jwt)
	g.POST("/lessons/:id/complete", api.completeLesson, jwt, studentMiddleware())

	g.GET("/certificates", api.listCertificates, jwt)
	g.GET("/certificates/:id/download", api.downloadCertificate, jwt)
	g.GET("/certificates/:id/verify", api.verifyCertificate)
}

func (api *learningApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	dash, err := api.svc.Dashboard(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *learningApi) courseContent(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	content, err := api.svc.CourseContent(ctx.Request().Context(), usr.ID, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course content")
	}
	return ctx.JSON(http.StatusOK, content)
}

func (api *learningApi) viewLesson(ctx echo.Context) error {
	lessonID, err := strconv.ParseInt(ctx.Param("lesson"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	view, err := api.svc.ViewLesson(ctx.Request().Context(), usr.ID, ctx.Param("slug"), lessonID)
	if err != nil {
		return errors.Wrap(err, "viewing lesson")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *learningApi) completeLesson(ctx echo.Context) error {
	lessonID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	enrollment, err := api.svc.CompleteLesson(ctx.Request().Context(), usr.ID, lessonID)
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, enrollment)
}

func (api *learningApi) listCertificates(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	certs, err := api.svc.ListCertificates(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	if certs == nil {
		certs = []learning.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *learningApi) downloadCertificate(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cert, doc, err := api.svc.CertificateDocument(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting certificate document")
	}
	defer doc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="certificate_`+cert.CertificateID+`.pdf"`)
	return ctx.Stream(http.StatusOK, "application/pdf", doc)
}

func (api *learningApi) verifyCertificate(ctx echo.Context) error {
	verification, err := api.svc.VerifyCertificate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}
	return ctx.JSON(http.StatusOK, verification)
}
