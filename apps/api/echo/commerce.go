package echoapi

import (
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/user"
	"github.com/eminingcampus/campus/services/payment/paystack"
)

type commerceApi struct {
	carts  *cart.Service
	orders *order.Service
	users  *user.Service
}

func registerCommerceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := commerceApi{carts: deps.CartSvc, orders: deps.OrderSvc, users: deps.UserSvc}

	g.GET("/cart", api.getCart, jwt)
	g.POST("/cart/items", api.addCartItem, jwt)
	g.DELETE("/cart/items/:id", api.removeCartItem, jwt)
	g.DELETE("/cart", api.clearCart, jwt)

	g.POST("/checkout", api.checkout, jwt)
	g.GET("/payments/verify", api.verifyPayment, jwt)
	g.POST("/payments/webhook", api.webhook)

	g.GET("/orders", api.listOrders, jwt)
	g.GET("/orders/:number", api.retrieveOrder, jwt)
}

type AddCartItemRequest struct {
	CourseID int64 `json:"course_id"`
}

func (api *commerceApi) getCart(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	view, err := api.carts.Get(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *commerceApi) addCartItem(ctx echo.Context) error {
	var data AddCartItemRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddCartItemRequest")
	}
	if data.CourseID <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "course_id is a required field"})
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	item, added, err := api.carts.AddCourse(ctx.Request().Context(), usr.ID, data.CourseID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
		}
		return errors.Wrap(err, "adding course to cart")
	}
	if added {
		return ctx.JSON(http.StatusCreated, item)
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *commerceApi) removeCartItem(ctx echo.Context) error {
	itemID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return errHttpNotFound
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.carts.RemoveItem(ctx.Request().Context(), usr.ID, itemID); err != nil {
		return errors.Wrap(err, "removing cart item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *commerceApi) clearCart(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.carts.Clear(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "clearing cart")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *commerceApi) checkout(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.orders.Checkout(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *commerceApi) verifyPayment(ctx echo.Context) error {
	ref := ctx.QueryParam("reference")
	if ref == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "reference", Error: "reference is a required field"})
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	o, err := api.orders.VerifyPayment(ctx.Request().Context(), usr.ID, ref)
	if err != nil {
		return errors.Wrap(err, "verifying payment")
	}
	return ctx.JSON(http.StatusOK, o)
}

// maxWebhookBody bounds the gateway event payloads; they are a few KB.
const maxWebhookBody = 1 << 20

func (api *commerceApi) webhook(ctx echo.Context) error {
	body, err := ioutil.ReadAll(http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "webhook payload too large")
		}
		return errors.Wrap(err, "reading webhook body")
	}
	if err := api.orders.HandleWebhook(ctx.Request().Context(), body, ctx.Request().Header.Get(paystack.SignatureHeader)); err != nil {
		return errors.Wrap(err, "handling webhook")
	}
	return ctx.NoContent(http.StatusOK)
}

func (api *commerceApi) listOrders(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	orders, err := api.orders.ListForUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing orders")
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *commerceApi) retrieveOrder(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	o, err := api.orders.GetForUser(ctx.Request().Context(), usr.ID, ctx.Param("number"))
	if err != nil {
		return errors.Wrap(err, "getting order")
	}
	return ctx.JSON(http.StatusOK, o)
}
