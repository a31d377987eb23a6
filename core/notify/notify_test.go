package notify_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/notify"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/user"
	emailsvc "github.com/eminingcampus/campus/services/email"
	"github.com/eminingcampus/campus/tests/testutil"
)

type usersMock map[string]user.User

func (m usersMock) GetByID(_ context.Context, id string) (user.User, error) {
	if usr, ok := m[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

var student = user.User{ID: "0b9c3c56-5d2e-4e59-a0a4-8c0b5f0f6a01", Name: "Afua Kobi", Email: "afua@campus.test"}

func setup(t *testing.T) (*notify.Dispatcher, *emailsvc.ConsoleServiceMock, *core.Config) {
	conf := testutil.NewConfig()
	templates, err := core.ParseEmailTemplates(conf)
	require.NoError(t, err)
	email := emailsvc.NewConsoleServiceMock(templates, conf, testutil.NewLogger())
	return notify.NewDispatcher(email, usersMock{student.ID: student}, conf, testutil.NewLogger()), email, conf
}

func TestDispatcher_Welcome(t *testing.T) {
	d, email, conf := setup(t)
	d.Welcome(context.Background(), student)

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome to "+conf.AppName+"!", sent[0].Subject)
	assert.Equal(t, "afua@campus.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Afua Kobi")
	assert.NotEmpty(t, sent[0].HTMLContent)
}

func TestDispatcher_PasswordReset(t *testing.T) {
	d, email, conf := setup(t)
	d.PasswordReset(context.Background(), student, "dWlk", "TOKEN-abc")

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, conf.SiteURL+"/password-reset?token=TOKEN-abc&uid=dWlk")
}

func TestDispatcher_EnrollmentConfirmation(t *testing.T) {
	ctx := context.Background()
	d, email, _ := setup(t)
	o := order.Order{
		OrderNumber: "ORD-20240615103000-9F3A01BC",
		UserID:      student.ID,
		TotalAmount: decimal.NewFromInt(300),
		Items: []order.Item{
			{CourseID: 1, CourseTitle: "Mine Surveying"},
			{CourseID: 2, CourseTitle: "Rock Mechanics"},
		},
	}
	d.EnrollmentConfirmation(ctx, o)

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Enrollment Confirmation - "+o.OrderNumber, sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "- Mine Surveying")
	assert.Contains(t, sent[0].TextContent, "- Rock Mechanics")

	// unknown users are skipped
	email.Reset()
	o.UserID = "missing"
	d.EnrollmentConfirmation(ctx, o)
	assert.Empty(t, email.SentMessages())
}

func TestDispatcher_CertificateIssued(t *testing.T) {
	d, email, conf := setup(t)
	cert := learning.Certificate{CertificateID: "CERT-202406-1A2B3C4D", StudentID: student.ID, CourseID: 7}
	d.CertificateIssued(context.Background(), cert, catalog.Course{ID: 7, Title: "Rock Mechanics"})

	sent := email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Certificate of Completion - Rock Mechanics", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, conf.SiteURL+"/v1/certificates/CERT-202406-1A2B3C4D/verify")
}
