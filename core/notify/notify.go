// Package notify composes the platform emails.
// Every method is fire-and-forget: failures are logged, never returned.
package notify

import (
	"context"
	"net/mail"
	"net/url"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/user"
)

type Users interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type Dispatcher struct {
	email   core.EmailService
	users   Users
	appName string
	siteURL string
	logger  core.Logger
}

var (
	_ user.Notifier     = (*Dispatcher)(nil)
	_ learning.Notifier = (*Dispatcher)(nil)
	_ order.Notifier    = (*Dispatcher)(nil)
)

func NewDispatcher(email core.EmailService, users Users, conf *core.Config, logger core.Logger) *Dispatcher {
	return &Dispatcher{
		email:   email,
		users:   users,
		appName: conf.AppName,
		siteURL: conf.SiteURL,
		logger:  logger,
	}
}

// SetUsers wires the user lookup once the user service exists.
func (d *Dispatcher) SetUsers(users Users) {
	d.users = users
}

func (d *Dispatcher) Welcome(_ context.Context, usr user.User) {
	d.send(usr, "Welcome to "+d.appName+"!", "welcome", map[string]interface{}{
		"Name": usr.DisplayName(),
	})
}

func (d *Dispatcher) PasswordReset(_ context.Context, usr user.User, uid, token string) {
	q := url.Values{}
	q.Set("uid", uid)
	q.Set("token", token)
	d.send(usr, "Password Reset", "password_reset", map[string]interface{}{
		"Name":     usr.DisplayName(),
		"ResetURL": d.siteURL + "/password-reset?" + q.Encode(),
	})
}

func (d *Dispatcher) EnrollmentConfirmation(ctx context.Context, o order.Order) {
	usr, ok := d.user(ctx, o.UserID)
	if !ok {
		return
	}
	courses := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		courses = append(courses, item.CourseTitle)
	}
	d.send(usr, "Enrollment Confirmation - "+o.OrderNumber, "enrollment", map[string]interface{}{
		"Name":        usr.DisplayName(),
		"OrderNumber": o.OrderNumber,
		"Courses":     courses,
	})
}

func (d *Dispatcher) CertificateIssued(ctx context.Context, cert learning.Certificate, course catalog.Course) {
	usr, ok := d.user(ctx, cert.StudentID)
	if !ok {
		return
	}
	d.send(usr, "Certificate of Completion - "+course.Title, "certificate", map[string]interface{}{
		"Name":          usr.DisplayName(),
		"CourseTitle":   course.Title,
		"CertificateID": cert.CertificateID,
		"DownloadURL":   d.siteURL + "/v1/certificates/" + cert.CertificateID + "/download",
		"VerifyURL":     d.siteURL + "/v1/certificates/" + cert.CertificateID + "/verify",
	})
}

func (d *Dispatcher) user(ctx context.Context, id string) (user.User, bool) {
	usr, err := d.users.GetByID(ctx, id)
	if err != nil {
		d.logger.Error("notification skipped", errors.Wrapf(err, "getting user %s", id))
		return user.User{}, false
	}
	return usr, true
}

func (d *Dispatcher) send(usr user.User, subject, tmpl string, data map[string]interface{}) {
	if usr.Email == "" {
		d.logger.Warn("notification skipped: user has no email", usr)
		return
	}
	d.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}
