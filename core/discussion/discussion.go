package discussion

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("discussion not found")
	ErrNoAccess = core.NewPermissionError("only enrolled students and the instructor can access this course's discussions")
)

type Discussion struct {
	ID         int64     `json:"id" db:"id"`
	CourseID   int64     `json:"course_id" db:"course_id"`
	AuthorID   string    `json:"author_id" db:"author_id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	IsPinned   bool      `json:"is_pinned" db:"is_pinned"`
	IsResolved bool      `json:"is_resolved" db:"is_resolved"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`

	// joined
	AuthorName string `json:"author_name" db:"author_name"`
	ReplyCount int    `json:"reply_count" db:"reply_count"`
}

type Reply struct {
	ID                int64     `json:"id" db:"id"`
	DiscussionID      int64     `json:"discussion_id" db:"discussion_id"`
	AuthorID          string    `json:"author_id" db:"author_id"`
	Content           string    `json:"content" db:"content"`
	IsInstructorReply bool      `json:"is_instructor_reply" db:"is_instructor_reply"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
	AuthorName        string    `json:"author_name" db:"author_name"` // joined
}

type Thread struct {
	Discussion
	Replies []Reply `json:"replies"`
}

type NewDiscussion struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

func (nd *NewDiscussion) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Content = core.CleanString(nd.Content)
	return validate.Struct(nd)
}

type NewReply struct {
	Content string `json:"content" validate:"required"`
}

func (nr *NewReply) Validate(validate *validator.Validate) error {
	nr.Content = core.CleanString(nr.Content)
	return validate.Struct(nr)
}

// Moderation pins or resolves a discussion. Nil fields are left untouched.
type Moderation struct {
	IsPinned   *bool `json:"is_pinned"`
	IsResolved *bool `json:"is_resolved"`
}

type (
	Repository interface {
		CreateDiscussion(ctx context.Context, d Discussion) (Discussion, error)
		GetDiscussion(ctx context.Context, id int64) (Discussion, error)
		// ListDiscussions returns the course discussions, pinned first then newest first.
		ListDiscussions(ctx context.Context, courseID int64) ([]Discussion, error)
		UpdateDiscussion(ctx context.Context, d Discussion) (Discussion, error)
		// DeleteDiscussion removes the discussion along with its replies.
		DeleteDiscussion(ctx context.Context, id int64) error
		CreateReply(ctx context.Context, r Reply) (Reply, error)
		// ListReplies returns the discussion replies, oldest first.
		ListReplies(ctx context.Context, discussionID int64) ([]Reply, error)
	}

	Courses interface {
		GetCourseByID(ctx context.Context, id int64) (catalog.Course, error)
		GetInstructor(ctx context.Context, id int64) (catalog.Instructor, error)
	}

	Enrollments interface {
		IsEnrolled(ctx context.Context, studentID string, courseID int64) (bool, error)
	}

	Service struct {
		repo        Repository
		courses     Courses
		enrollments Enrollments
	}
)

func NewService(repo Repository, courses Courses, enrollments Enrollments) *Service {
	return &Service{repo: repo, courses: courses, enrollments: enrollments}
}

func (svc *Service) ListForCourse(ctx context.Context, usr user.User, courseID int64) ([]Discussion, error) {
	if _, err := svc.access(ctx, usr, courseID); err != nil {
		return nil, err
	}
	return svc.repo.ListDiscussions(ctx, courseID)
}

func (svc *Service) Create(ctx context.Context, usr user.User, courseID int64, nd NewDiscussion) (Discussion, error) {
	if _, err := svc.access(ctx, usr, courseID); err != nil {
		return Discussion{}, err
	}
	now := time.Now().UTC()
	d, err := svc.repo.CreateDiscussion(ctx, Discussion{
		CourseID:  courseID,
		AuthorID:  usr.ID,
		Title:     nd.Title,
		Content:   nd.Content,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return d, errors.Wrap(err, "creating discussion")
}

func (svc *Service) Detail(ctx context.Context, usr user.User, id int64) (Thread, error) {
	d, err := svc.repo.GetDiscussion(ctx, id)
	if err != nil {
		return Thread{}, err
	}
	if _, err = svc.access(ctx, usr, d.CourseID); err != nil {
		return Thread{}, err
	}
	replies, err := svc.repo.ListReplies(ctx, d.ID)
	if err != nil {
		return Thread{}, errors.Wrap(err, "listing replies")
	}
	return Thread{Discussion: d, Replies: replies}, nil
}

// Reply answers a discussion. Replies of the course instructor are flagged as such.
func (svc *Service) Reply(ctx context.Context, usr user.User, discussionID int64, nr NewReply) (Reply, error) {
	d, err := svc.repo.GetDiscussion(ctx, discussionID)
	if err != nil {
		return Reply{}, err
	}
	isInstructor, err := svc.access(ctx, usr, d.CourseID)
	if err != nil {
		return Reply{}, err
	}
	now := time.Now().UTC()
	r, err := svc.repo.CreateReply(ctx, Reply{
		DiscussionID:      d.ID,
		AuthorID:          usr.ID,
		Content:           nr.Content,
		IsInstructorReply: isInstructor,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	return r, errors.Wrap(err, "creating reply")
}

// Moderate applies an admin's pin or resolve decision.
func (svc *Service) Moderate(ctx context.Context, id int64, m Moderation) (Discussion, error) {
	d, err := svc.repo.GetDiscussion(ctx, id)
	if err != nil {
		return Discussion{}, err
	}
	if m.IsPinned == nil && m.IsResolved == nil {
		return d, nil
	}
	if m.IsPinned != nil {
		d.IsPinned = *m.IsPinned
	}
	if m.IsResolved != nil {
		d.IsResolved = *m.IsResolved
	}
	d.UpdatedAt = time.Now().UTC()
	d, err = svc.repo.UpdateDiscussion(ctx, d)
	return d, errors.Wrap(err, "updating discussion")
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetDiscussion(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteDiscussion(ctx, id), "deleting discussion")
}

// access checks that usr is enrolled in the course or is its instructor, and tells which.
func (svc *Service) access(ctx context.Context, usr user.User, courseID int64) (isInstructor bool, err error) {
	course, err := svc.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return false, err
	}
	inst, err := svc.courses.GetInstructor(ctx, course.InstructorID)
	if err != nil && !core.IsNotFound(err) {
		return false, errors.Wrap(err, "getting instructor")
	}
	if err == nil && inst.UserID.Valid && inst.UserID.String == usr.ID {
		return true, nil
	}

	enrolled, err := svc.enrollments.IsEnrolled(ctx, usr.ID, courseID)
	if err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return false, ErrNoAccess
	}
	return false, nil
}
