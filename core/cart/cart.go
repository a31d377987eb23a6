package cart

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
)

var (
	// errors
	ErrItemNotFound    = core.NewNotFoundError("cart item not found")
	ErrAlreadyEnrolled = core.NewPermissionError("you are already enrolled in this course")
)

type Cart struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Item struct {
	ID       int64     `json:"id" db:"id"`
	CartID   int64     `json:"cart_id" db:"cart_id"`
	CourseID int64     `json:"course_id" db:"course_id"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
}

type ItemView struct {
	Item
	Course catalog.Course `json:"course"`
}

// View is a cart with its priced items.
type View struct {
	Cart
	Items    []ItemView      `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

func (v View) IsEmpty() bool { return len(v.Items) == 0 }

type (
	Repository interface {
		// GetOrCreateCart returns the user's cart, creating it if absent.
		GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
		ListItems(ctx context.Context, cartID int64) ([]Item, error)
		// AddItem inserts the item unless the course is already in the cart.
		// It returns the stored item and whether it was created.
		AddItem(ctx context.Context, item Item) (Item, bool, error)
		// RemoveItem returns ErrItemNotFound when the item is not in the cart.
		RemoveItem(ctx context.Context, cartID, itemID int64) error
		ClearCart(ctx context.Context, userID string) error
	}

	Courses interface {
		GetCourseByID(ctx context.Context, id int64) (catalog.Course, error)
	}

	Enrollments interface {
		IsEnrolled(ctx context.Context, studentID string, courseID int64) (bool, error)
	}

	// Service manages the one cart each user owns.
	Service struct {
		repo        Repository
		courses     Courses
		enrollments Enrollments
	}
)

func NewService(repo Repository, courses Courses, enrollments Enrollments) *Service {
	return &Service{repo: repo, courses: courses, enrollments: enrollments}
}

func (svc *Service) Get(ctx context.Context, userID string) (View, error) {
	c, err := svc.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, errors.Wrap(err, "getting cart")
	}
	items, err := svc.repo.ListItems(ctx, c.ID)
	if err != nil {
		return View{}, errors.Wrap(err, "listing cart items")
	}

	view := View{Cart: c, Items: make([]ItemView, 0, len(items)), Total: decimal.Zero, Currency: catalog.DefaultCurrency}
	for _, item := range items {
		course, err := svc.courses.GetCourseByID(ctx, item.CourseID)
		if err != nil {
			return View{}, errors.Wrap(err, "getting course")
		}
		view.Items = append(view.Items, ItemView{Item: item, Course: course})
		view.Total = view.Total.Add(course.Price)
	}
	return view, nil
}

// AddCourse puts the course in the user's cart. Adding a course twice is a no-op
// reported by added=false.
func (svc *Service) AddCourse(ctx context.Context, userID string, courseID int64) (item ItemView, added bool, err error) {
	course, err := svc.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return ItemView{}, false, err
	}
	enrolled, err := svc.enrollments.IsEnrolled(ctx, userID, course.ID)
	if err != nil {
		return ItemView{}, false, errors.Wrap(err, "checking enrollment")
	}
	if enrolled {
		return ItemView{}, false, ErrAlreadyEnrolled
	}

	c, err := svc.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return ItemView{}, false, errors.Wrap(err, "getting cart")
	}
	stored, added, err := svc.repo.AddItem(ctx, Item{CartID: c.ID, CourseID: course.ID, AddedAt: time.Now().UTC()})
	if err != nil {
		return ItemView{}, false, errors.Wrap(err, "adding cart item")
	}
	return ItemView{Item: stored, Course: course}, added, nil
}

// RemoveItem removes an item from the user's own cart.
func (svc *Service) RemoveItem(ctx context.Context, userID string, itemID int64) error {
	c, err := svc.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return svc.repo.RemoveItem(ctx, c.ID, itemID)
}

func (svc *Service) Clear(ctx context.Context, userID string) error {
	return errors.Wrap(svc.repo.ClearCart(ctx, userID), "clearing cart")
}
