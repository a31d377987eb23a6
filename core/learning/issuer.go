package learning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

const maxCertificateIDAttempts = 3

// Issuer issues at most one certificate per completed (student, course).
type Issuer struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	events   core.EventPublisher
	logger   core.Logger
	now      func() time.Time
}

func NewIssuer(repo Repository, catalog Catalog, notifier Notifier, events core.EventPublisher, logger core.Logger) *Issuer {
	return &Issuer{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// NewCertificateID generates an ID like CERT-202406-9F3A01BC.
func NewCertificateID(at time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return "CERT-" + at.UTC().Format("200601") + "-" + token
}

// IssueIfEligible returns the certificate it created, or nil when the enrollment is not
// completed or a certificate already exists.
func (iss *Issuer) IssueIfEligible(ctx context.Context, enr Enrollment) (*Certificate, error) {
	if !enr.Completed {
		return nil, nil
	}

	exists, err := iss.repo.CertificateExists(ctx, enr.StudentID, enr.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "checking certificate")
	}
	if exists {
		return nil, nil
	}

	now := iss.now().UTC()
	var (
		cert    Certificate
		created bool
	)
	for attempt := 0; ; attempt++ {
		cert, created, err = iss.repo.CreateCertificate(ctx, Certificate{
			CertificateID: NewCertificateID(now),
			StudentID:     enr.StudentID,
			CourseID:      enr.CourseID,
			IssuedAt:      now,
		})
		if errors.Cause(err) == ErrCertificateIDTaken && attempt < maxCertificateIDAttempts-1 {
			continue
		}
		break
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating certificate")
	}
	if !created {
		return nil, nil
	}

	iss.announce(ctx, cert)
	return &cert, nil
}

func (iss *Issuer) announce(ctx context.Context, cert Certificate) {
	iss.events.Publish(ctx, core.NewEvent(core.TopicCertificateIssued, cert.CertificateID, cert))

	course, err := iss.catalog.GetCourseByID(ctx, cert.CourseID)
	if err != nil {
		iss.logger.Error("certificate notification skipped", errors.Wrap(err, "getting course"))
		return
	}
	iss.notifier.CertificateIssued(ctx, cert, course)
}
