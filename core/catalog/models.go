package catalog

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core"
)

// Course levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Lesson content types
const (
	ContentVideo   = "video"
	ContentArticle = "article"
	ContentQuiz    = "quiz"
)

const DefaultCurrency = "GHS"

var (
	AllLevels       = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}
	AllContentTypes = []string{ContentVideo, ContentArticle, ContentQuiz}

	youtubeIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
)

type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

type Instructor struct {
	ID       int64       `json:"id" db:"id"`
	UserID   null.String `json:"user_id" db:"user_id"`
	FullName string      `json:"full_name" db:"full_name"`
	Bio      string      `json:"bio" db:"bio"`
}

type Course struct {
	ID               int64           `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	Slug             string          `json:"slug" db:"slug"`
	Description      string          `json:"description" db:"description"`
	InstructorID     int64           `json:"instructor_id" db:"instructor_id"`
	CategoryID       null.Int64      `json:"category_id" db:"category_id"`
	Level            string          `json:"level" db:"level"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Currency         string          `json:"currency" db:"currency"`
	ImageURL         string          `json:"image_url" db:"image_url"`
	IsFeatured       bool            `json:"is_featured" db:"is_featured"`
	WhatYouWillLearn pq.StringArray  `json:"what_you_will_learn" db:"what_you_will_learn"`
	Requirements     pq.StringArray  `json:"requirements" db:"requirements"`
	TargetAudience   pq.StringArray  `json:"target_audience" db:"target_audience"`
	Tags             pq.StringArray  `json:"tags" db:"tags"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"` // UTC

	// joined
	InstructorName string      `json:"instructor_name" db:"instructor_name"`
	CategorySlug   null.String `json:"category_slug" db:"category_slug"`
}

type Section struct {
	ID          int64     `json:"id" db:"id"`
	CourseID    int64     `json:"course_id" db:"course_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Order       int       `json:"order" db:"position"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Lessons     []Lesson  `json:"lessons" db:"-"`
}

type Lesson struct {
	ID              int64     `json:"id" db:"id"`
	SectionID       int64     `json:"section_id" db:"section_id"`
	CourseID        int64     `json:"course_id" db:"course_id"` // joined from sections
	Title           string    `json:"title" db:"title"`
	ContentType     string    `json:"content_type" db:"content_type"`
	VideoURL        string    `json:"video_url" db:"video_url"`
	ArticleContent  string    `json:"article_content,omitempty" db:"article_content"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Order           int       `json:"order" db:"position"`
	IsPreview       bool      `json:"is_preview" db:"is_preview"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// EmbedURL returns the youtube embed URL of a video lesson, or VideoURL unchanged.
func (l Lesson) EmbedURL() string {
	if l.VideoURL == "" {
		return ""
	}
	u, err := url.Parse(l.VideoURL)
	if err != nil {
		return l.VideoURL
	}

	var videoID string
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			videoID = u.Query().Get("v")
		} else if strings.HasPrefix(u.Path, "/embed/") {
			return l.VideoURL
		}
	case "youtu.be":
		videoID = strings.TrimPrefix(u.Path, "/")
	}
	if !youtubeIDRegex.MatchString(videoID) {
		return l.VideoURL
	}
	return "https://www.youtube.com/embed/" + videoID
}

// CourseDetail is a course along with its ordered sections and lessons.
type CourseDetail struct {
	Course
	Sections     []Section `json:"sections"`
	LessonCount  int       `json:"lesson_count"`
	TotalMinutes int       `json:"total_minutes"`
}

type NewCategory struct {
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"omitempty,slug"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Name)
	}
	return validate.Struct(nc)
}

type NewInstructor struct {
	UserID   string `json:"user_id" validate:"omitempty,uuid"`
	FullName string `json:"full_name" validate:"required"`
	Bio      string `json:"bio"`
}

func (ni *NewInstructor) Validate(validate *validator.Validate) error {
	ni.FullName = core.CleanString(ni.FullName)
	ni.Bio = core.CleanString(ni.Bio)
	return validate.Struct(ni)
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Slug             string          `json:"slug" validate:"omitempty,slug"`
	Description      string          `json:"description"`
	InstructorID     int64           `json:"instructor_id" validate:"required"`
	CategoryID       *int64          `json:"category_id"`
	Level            string          `json:"level" validate:"omitempty,level"`
	Price            decimal.Decimal `json:"price" validate:"money"`
	ImageURL         string          `json:"image_url" validate:"omitempty,url"`
	IsFeatured       bool            `json:"is_featured"`
	WhatYouWillLearn []string        `json:"what_you_will_learn"`
	Requirements     []string        `json:"requirements"`
	TargetAudience   []string        `json:"target_audience"`
	Tags             []string        `json:"tags"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Title)
	}
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	if nc.Level == "" {
		nc.Level = LevelIntermediate
	}
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Nil fields are left untouched.
type UpdateCourse struct {
	Title            *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string          `json:"description"`
	CategoryID       *int64           `json:"category_id"`
	Level            *string          `json:"level" validate:"omitempty,level"`
	Price            *decimal.Decimal `json:"price" validate:"omitempty,money"`
	ImageURL         *string          `json:"image_url" validate:"omitempty,url"`
	IsFeatured       *bool            `json:"is_featured"`
	WhatYouWillLearn []string         `json:"what_you_will_learn"`
	Requirements     []string         `json:"requirements"`
	TargetAudience   []string         `json:"target_audience"`
	Tags             []string         `json:"tags"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	if uc.Title != nil {
		title := core.CleanString(*uc.Title)
		uc.Title = &title
	}
	if uc.Level != nil {
		level := core.CleanString(*uc.Level, true /* lower */)
		uc.Level = &level
	}
	return validate.Struct(uc)
}

type NewSection struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"gte=0"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	return validate.Struct(ns)
}

type NewLesson struct {
	Title           string `json:"title" validate:"required"`
	ContentType     string `json:"content_type" validate:"omitempty,oneof=video article quiz"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	ArticleContent  string `json:"article_content"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	Order           int    `json:"order" validate:"gte=0"`
	IsPreview       bool   `json:"is_preview"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.ContentType = core.CleanString(nl.ContentType, true /* lower */)
	if nl.ContentType == "" {
		nl.ContentType = ContentVideo
	}
	nl.VideoURL = core.CleanString(nl.VideoURL)
	if err := validate.Struct(nl); err != nil {
		return err
	}
	if nl.ContentType == ContentVideo && nl.VideoURL == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "video_url", Error: "video lessons require a video url"})
	}
	return nil
}

// CourseQuery filters the course listing. Zero values are ignored.
type CourseQuery struct {
	Search   string           `query:"search"`
	Category string           `query:"category"`
	Level    string           `query:"level"`
	PriceMin *decimal.Decimal `query:"price_min"`
	PriceMax *decimal.Decimal `query:"price_max"`
	Featured *bool            `query:"featured"`

	// IDs restricts the listing to these courses (search index hits).
	IDs []int64 `query:"-"`
}

func (q *CourseQuery) Clean() {
	q.Search = core.CleanString(q.Search)
	q.Category = core.CleanString(q.Category, true /* lower */)
	q.Level = core.CleanString(q.Level, true /* lower */)
}

// CourseFilter selects a single Course. The first set field wins.
type CourseFilter struct {
	ID   int64
	Slug string
}
