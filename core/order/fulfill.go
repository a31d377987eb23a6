package order

import (
	"context"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/learning"
)

// Fulfill completes the order once: it enrolls the user in every ordered course and clears
// their cart in a single transaction, then notifies them.
// Fulfilling a completed order is a no-op returning the stored order.
func (svc *Service) Fulfill(ctx context.Context, o Order, payment Payment) (Order, error) {
	if o.Status == StatusCompleted {
		return o, nil
	}
	if payment.Reference != o.OrderNumber {
		return Order{}, core.NewValidationError(ErrReferenceMismatch, core.FieldError{Field: "reference", Error: ErrReferenceMismatch.Error()})
	}

	var (
		fulfilled bool
		created   []learning.Enrollment
	)
	err := svc.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := svc.repo.CompleteOrder(ctx, o.ID, payment, svc.now().UTC())
		if err != nil {
			return errors.Wrap(err, "completing order")
		}
		if !ok {
			return nil
		}
		fulfilled = true

		for _, item := range o.Items {
			enr, isNew, err := svc.deps.Enroller.Enroll(ctx, o.UserID, item.CourseID)
			if err != nil {
				return errors.Wrapf(err, "enrolling in course %d", item.CourseID)
			}
			if isNew {
				created = append(created, enr)
			}
		}
		return errors.Wrap(svc.deps.Carts.Clear(ctx, o.UserID), "clearing cart")
	})
	if err != nil {
		return Order{}, err
	}

	stored, err := svc.repo.GetOrder(ctx, GetFilter{ID: o.ID})
	if err != nil {
		return Order{}, errors.Wrap(err, "getting order")
	}
	if fulfilled {
		svc.announce(ctx, stored, created)
	}
	return stored, nil
}

func (svc *Service) announce(ctx context.Context, o Order, enrollments []learning.Enrollment) {
	svc.deps.Notifier.EnrollmentConfirmation(ctx, o)

	events := make([]core.Event, 0, len(enrollments)+1)
	events = append(events, core.NewEvent(core.TopicOrderCompleted, o.OrderNumber, o))
	for _, enr := range enrollments {
		events = append(events, core.NewEvent(core.TopicEnrollmentCreated, enr.StudentID, enr))
	}
	svc.deps.Events.Publish(ctx, events...)
}
