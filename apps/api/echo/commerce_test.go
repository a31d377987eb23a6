package echoapi_test

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/eminingcampus/campus/apps/api/echo"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
	"github.com/eminingcampus/campus/services/payment/paystack"
	"github.com/eminingcampus/campus/tests/testutil"
)

type courseFixture struct {
	course  catalog.Course
	lessons []catalog.Lesson
}

// createCourse builds a two-lesson course priced 150 through the admin endpoints.
func createCourse(t *testing.T, app *testApp, adminToken string) courseFixture {
	t.Helper()
	var f courseFixture

	rec := app.do(http.MethodPost, "/v1/instructors", adminToken, []byte(`{"full_name":"Yaw Owusu","bio":"Mining engineer"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inst catalog.Instructor
	decode(t, rec, &inst)

	rec = app.do(http.MethodPost, "/v1/courses", adminToken, []byte(
		`{"title":"Mine Safety","instructor_id":`+strconv.FormatInt(inst.ID, 10)+`,"price":"150.00","level":"beginner"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &f.course)
	require.Equal(t, "mine-safety", f.course.Slug)

	rec = app.do(http.MethodPost, "/v1/courses/mine-safety/sections", adminToken, []byte(`{"title":"Basics","order":1}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var section catalog.Section
	decode(t, rec, &section)

	for i, title := range []string{"Hazards", "Protective equipment"} {
		body := `{"title":"` + title + `","content_type":"article","article_content":"Read carefully.","duration_minutes":30,"order":` + strconv.Itoa(i+1) + `}`
		rec = app.do(http.MethodPost, "/v1/sections/"+strconv.FormatInt(section.ID, 10)+"/lessons", adminToken, []byte(body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var lesson catalog.Lesson
		decode(t, rec, &lesson)
		f.lessons = append(f.lessons, lesson)
	}
	return f
}

func chargeSuccess(reference string, amount int64) []byte {
	return []byte(`{"event":"charge.success","data":{"id":77,"reference":"` + reference + `","status":"success","amount":` +
		strconv.FormatInt(amount, 10) + `,"currency":"GHS","channel":"mobile_money"}}`)
}

func webhook(app *testApp, body []byte, signature string) int {
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/webhook", "", body)
	req.Header.Set(paystack.SignatureHeader, signature)
	app.server.ServeHTTP(rec, req)
	return rec.Code
}

func Test_catalogApi(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.users, "Esi", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	adminToken := app.getToken(t, admin)
	f := createCourse(t, app, adminToken)

	app.run(t, []httpTest{
		{name: "students cannot create courses", method: http.MethodPost, path: "/v1/courses", token: app.getToken(t, student),
			body: []byte(`{"title":"x","instructor_id":1}`), wantCode: http.StatusForbidden},
		{name: "duplicate slug", method: http.MethodPost, path: "/v1/courses", token: adminToken,
			body: []byte(`{"title":"Mine Safety","instructor_id":` + strconv.FormatInt(f.course.InstructorID, 10) + `}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"slug": catalog.ErrSlugExists.Error()})},
		{name: "unknown course", path: "/v1/courses/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"})},
		{name: "instructor", path: "/v1/instructors/" + strconv.FormatInt(f.course.InstructorID, 10)},
		{name: "unknown instructor", path: "/v1/instructors/999", wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "instructor not found"})},
		{name: "list", path: "/v1/courses", wantData: marchallList(t, f.course)},
		{name: "list (level)", path: "/v1/courses?level=advanced", wantData: marchallList(t)},
		{name: "list (price)", path: "/v1/courses?price_min=100&price_max=200", wantData: marchallList(t, f.course)},
		{name: "list (invalid price)", path: "/v1/courses?price_min=lol", wantData: marchallList(t)},
		{name: "list (sorted)", path: "/v1/courses?sort=price_high", wantData: marchallList(t, f.course)},
		{name: "lesson on unknown section", method: http.MethodPost, path: "/v1/sections/999/lessons", token: adminToken,
			body: []byte(`{"title":"x","content_type":"article"}`), wantCode: http.StatusNotFound},
	})

	rec := app.do(http.MethodGet, "/v1/courses/mine-safety", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail echoapi.CourseDetailResponse
	decode(t, rec, &detail)
	assert.Equal(t, 2, detail.LessonCount)
	assert.Equal(t, 60, detail.TotalMinutes)
	assert.Equal(t, 0, detail.EnrollmentCount)
	assert.Equal(t, 0, detail.Count)
	require.Len(t, detail.Sections, 1)
	assert.Len(t, detail.Sections[0].Lessons, 2)

	rec = app.do(http.MethodPut, "/v1/courses/mine-safety", adminToken, []byte(`{"price":"99.5","is_featured":true}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated catalog.Course
	decode(t, rec, &updated)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("99.5")))
	assert.True(t, updated.IsFeatured)
}

func Test_commerceApi_purchaseAndLearn(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, app.users, "Kwame", "kwame", "kwame@campus.test", "", []string{user.RoleStudent}, true)
	f := createCourse(t, app, app.getToken(t, admin))
	token := app.getToken(t, student)
	outsiderToken := app.getToken(t, outsider)
	courseItem := []byte(`{"course_id":` + strconv.FormatInt(f.course.ID, 10) + `}`)

	// cart
	rec := app.do(http.MethodPost, "/v1/cart/items", token, courseItem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/v1/cart/items", token, courseItem)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/v1/cart/items", token, []byte(`{"course_id":999}`))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/v1/cart", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var view cart.View
	decode(t, rec, &view)
	require.Len(t, view.Items, 1)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(150)))

	// checkout
	rec = app.do(http.MethodPost, "/v1/checkout", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout order.CheckoutResult
	decode(t, rec, &checkout)
	number := checkout.Order.OrderNumber
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{8}$`, number)
	assert.Equal(t, order.StatusProcessing, checkout.Order.Status)
	assert.Equal(t, "https://checkout.paystack.test/"+number, checkout.AuthorizationURL)

	// webhook
	body := chargeSuccess(number, 15000)
	signature := hex.EncodeToString(paystack.Sign(paystackSecret, body))
	assert.Equal(t, http.StatusForbidden, webhook(app, body, "forged"))
	assert.Equal(t, http.StatusOK, webhook(app, body, signature))
	assert.Equal(t, http.StatusOK, webhook(app, body, signature))
	assert.Equal(t, http.StatusRequestEntityTooLarge, webhook(app, bytes.Repeat([]byte(" "), 1<<20+1), signature))

	rec = app.do(http.MethodGet, "/v1/orders", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []order.Order
	decode(t, rec, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusCompleted, orders[0].Status)
	assert.Equal(t, "mobile_money", orders[0].PaymentMethod)

	app.run(t, []httpTest{
		{name: "verify (already completed)", path: "/v1/payments/verify?reference=" + number, token: token},
		{name: "verify (missing reference)", path: "/v1/payments/verify", token: token, wantCode: http.StatusBadRequest},
		{name: "order of another user", path: "/v1/orders/" + number, token: outsiderToken, wantCode: http.StatusNotFound},
		{name: "cart emptied", path: "/v1/cart", token: token},
		{name: "already enrolled", method: http.MethodPost, path: "/v1/cart/items", token: token, body: courseItem, wantCode: http.StatusForbidden},
		{name: "outsider content", path: "/v1/learn/mine-safety", token: outsiderToken, wantCode: http.StatusForbidden},
	})

	rec = app.do(http.MethodGet, "/v1/cart", token)
	decode(t, rec, &view)
	assert.Empty(t, view.Items)

	// learning
	rec = app.do(http.MethodGet, "/v1/learn/mine-safety", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var content learning.CourseContent
	decode(t, rec, &content)
	assert.Equal(t, 0, content.Enrollment.ProgressPercentage)

	lessonPath := func(l catalog.Lesson) string { return "/v1/lessons/" + strconv.FormatInt(l.ID, 10) + "/complete" }
	var enr learning.Enrollment
	rec = app.do(http.MethodPost, lessonPath(f.lessons[0]), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &enr)
	assert.Equal(t, 50, enr.ProgressPercentage)
	assert.False(t, enr.Completed)

	rec = app.do(http.MethodPost, lessonPath(f.lessons[1]), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &enr)
	assert.Equal(t, 100, enr.ProgressPercentage)
	assert.True(t, enr.Completed)

	rec = app.do(http.MethodPost, lessonPath(f.lessons[0]), outsiderToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// certificates
	rec = app.do(http.MethodGet, "/v1/certificates", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var certs []learning.Certificate
	decode(t, rec, &certs)
	require.Len(t, certs, 1)
	certID := certs[0].CertificateID

	rec = app.do(http.MethodGet, "/v1/certificates/"+certID+"/download", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	rec = app.do(http.MethodGet, "/v1/certificates/"+certID+"/download", outsiderToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodGet, "/v1/certificates/"+certID+"/verify", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verification learning.CertificateVerification
	decode(t, rec, &verification)
	assert.Equal(t, "Esi Boateng", verification.StudentName)
	assert.Equal(t, "Mine Safety", verification.CourseTitle)

	rec = app.do(http.MethodGet, "/v1/certificates/nope/verify", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// dashboard
	rec = app.do(http.MethodGet, "/v1/dashboard", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dash learning.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, 1, dash.Completed)
	assert.Len(t, dash.Certificates, 1)

	var subjects []string
	for _, msg := range app.email.SentMessages() {
		subjects = append(subjects, msg.Subject)
	}
	assert.Contains(t, subjects, "Enrollment Confirmation - "+number)
	assert.Contains(t, subjects, "Certificate of Completion - Mine Safety")
}

func Test_commerceApi_declinedPayment(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.users, "Esi", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	f := createCourse(t, app, app.getToken(t, admin))
	token := app.getToken(t, student)
	app.gateway.status = "failed"

	rec := app.do(http.MethodPost, "/v1/checkout", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	rec = app.do(http.MethodPost, "/v1/cart/items", token, []byte(`{"course_id":`+strconv.FormatInt(f.course.ID, 10)+`}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/v1/checkout", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout order.CheckoutResult
	decode(t, rec, &checkout)

	rec = app.do(http.MethodGet, "/v1/payments/verify?reference="+checkout.Order.OrderNumber, token)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "unavailable")

	rec = app.do(http.MethodGet, "/v1/orders/"+checkout.Order.OrderNumber, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var o order.Order
	decode(t, rec, &o)
	assert.Equal(t, order.StatusFailed, o.Status)

	// the cart survives a failed payment
	rec = app.do(http.MethodGet, "/v1/cart", token)
	var view cart.View
	decode(t, rec, &view)
	assert.Len(t, view.Items, 1)
}

func Test_communityApi(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, app.users, "Kwame", "kwame", "kwame@campus.test", "", []string{user.RoleStudent}, true)
	f := createCourse(t, app, app.getToken(t, admin))
	token := app.getToken(t, student)
	outsiderToken := app.getToken(t, outsider)

	// enroll through a paid order
	app.do(http.MethodPost, "/v1/cart/items", token, []byte(`{"course_id":`+strconv.FormatInt(f.course.ID, 10)+`}`))
	rec := app.do(http.MethodPost, "/v1/checkout", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout order.CheckoutResult
	decode(t, rec, &checkout)
	rec = app.do(http.MethodGet, "/v1/payments/verify?reference="+checkout.Order.OrderNumber, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reviewBody := []byte(`{"rating":4,"title":"Solid","comment":"Clear and practical."}`)
	app.run(t, []httpTest{
		{name: "review (not enrolled)", method: http.MethodPost, path: "/v1/courses/mine-safety/reviews", token: outsiderToken,
			body: reviewBody, wantCode: http.StatusForbidden},
		{name: "review (invalid rating)", method: http.MethodPost, path: "/v1/courses/mine-safety/reviews", token: token,
			body: []byte(`{"rating":9,"title":"x","comment":"y"}`), wantCode: http.StatusBadRequest},
		{name: "review", method: http.MethodPost, path: "/v1/courses/mine-safety/reviews", token: token,
			body: reviewBody, wantCode: http.StatusCreated},
		{name: "review again", method: http.MethodPost, path: "/v1/courses/mine-safety/reviews", token: token,
			body: reviewBody, wantCode: http.StatusOK},
		{name: "discussions (not enrolled)", path: "/v1/courses/mine-safety/discussions", token: outsiderToken, wantCode: http.StatusForbidden},
	})

	rec = app.do(http.MethodGet, "/v1/courses/mine-safety/reviews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reviews []review.Review
	decode(t, rec, &reviews)
	require.Len(t, reviews, 1)

	rec = app.do(http.MethodPut, "/v1/reviews/"+strconv.FormatInt(reviews[0].ID, 10), outsiderToken, reviewBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(http.MethodPut, "/v1/reviews/"+strconv.FormatInt(reviews[0].ID, 10), token,
		[]byte(`{"rating":5,"title":"Great","comment":"Even better the second time."}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/v1/courses/mine-safety", "")
	var detail echoapi.CourseDetailResponse
	decode(t, rec, &detail)
	assert.Equal(t, 1, detail.Count)
	assert.Equal(t, 5.0, detail.Average)
	assert.Equal(t, 1, detail.EnrollmentCount)

	rec = app.do(http.MethodPost, "/v1/courses/mine-safety/discussions", token, []byte(`{"title":"PPE sizes","content":"Where do we get them?"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d discussion.Discussion
	decode(t, rec, &d)

	dpath := "/v1/discussions/" + strconv.FormatInt(d.ID, 10)
	rec = app.do(http.MethodPost, dpath+"/replies", token, []byte(`{"content":"Found them at the store."}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, dpath+"/replies", token, []byte(`{"content":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodGet, dpath, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread discussion.Thread
	decode(t, rec, &thread)
	assert.Equal(t, "PPE sizes", thread.Title)
	require.Len(t, thread.Replies, 1)
	assert.False(t, thread.Replies[0].IsInstructorReply)

	rec = app.do(http.MethodGet, dpath, outsiderToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// moderation
	adminToken := app.getToken(t, admin)
	rpath := "/v1/reviews/" + strconv.FormatInt(reviews[0].ID, 10)
	pin := []byte(`{"is_pinned":true,"is_resolved":true}`)
	app.run(t, []httpTest{
		{name: "pin (student)", method: http.MethodPut, path: dpath, token: token, body: pin, wantCode: http.StatusForbidden},
		{name: "pin (unknown)", method: http.MethodPut, path: dpath + "0", token: adminToken, body: pin, wantCode: http.StatusNotFound},
		{name: "pin", method: http.MethodPut, path: dpath, token: adminToken, body: pin, wantCode: http.StatusOK},
		{name: "delete review (student)", method: http.MethodDelete, path: rpath, token: token, wantCode: http.StatusForbidden},
		{name: "delete review", method: http.MethodDelete, path: rpath, token: adminToken, wantCode: http.StatusNoContent},
		{name: "delete review again", method: http.MethodDelete, path: rpath, token: adminToken, wantCode: http.StatusNotFound},
	})

	rec = app.do(http.MethodGet, dpath, token)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &thread)
	assert.True(t, thread.IsPinned)
	assert.True(t, thread.IsResolved)

	rec = app.do(http.MethodGet, "/v1/courses/mine-safety/reviews", "")
	decode(t, rec, &reviews)
	assert.Empty(t, reviews)

	app.run(t, []httpTest{
		{name: "delete discussion (student)", method: http.MethodDelete, path: dpath, token: token, wantCode: http.StatusForbidden},
		{name: "delete discussion", method: http.MethodDelete, path: dpath, token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted discussion", path: dpath, token: token, wantCode: http.StatusNotFound},
	})
}
