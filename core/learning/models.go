package learning

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core/catalog"
)

type Enrollment struct {
	ID                 int64     `json:"id" db:"id"`
	StudentID          string    `json:"student_id" db:"student_id"`
	CourseID           int64     `json:"course_id" db:"course_id"`
	EnrolledAt         time.Time `json:"enrolled_at" db:"enrolled_at"` // UTC
	Completed          bool      `json:"completed" db:"completed"`
	CompletedAt        null.Time `json:"completed_at" db:"completed_at"` // UTC
	ProgressPercentage int       `json:"progress_percentage" db:"progress_percentage"`
}

type LessonProgress struct {
	ID          int64     `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	LessonID    int64     `json:"lesson_id" db:"lesson_id"`
	Completed   bool      `json:"completed" db:"completed"`
	CompletedAt null.Time `json:"completed_at" db:"completed_at"`
	LastViewed  time.Time `json:"last_viewed" db:"last_viewed"`
}

type Certificate struct {
	ID            int64       `json:"-" db:"id"`
	CertificateID string      `json:"certificate_id" db:"certificate_id"`
	StudentID     string      `json:"student_id" db:"student_id"`
	CourseID      int64       `json:"course_id" db:"course_id"`
	IssuedAt      time.Time   `json:"issued_at" db:"issued_at"` // UTC
	DocumentRef   null.String `json:"-" db:"document_ref"`
}

// CertificateData is what gets printed on a certificate document.
type CertificateData struct {
	CertificateID  string
	StudentName    string
	CourseTitle    string
	InstructorName string
	IssuedAt       time.Time
	SiteURL        string
}

// CertificateVerification is the public view of a certificate.
type CertificateVerification struct {
	CertificateID string    `json:"certificate_id"`
	StudentName   string    `json:"student_name"`
	CourseTitle   string    `json:"course_title"`
	IssuedAt      time.Time `json:"issued_at"`
}

type EnrolledCourse struct {
	Enrollment
	Course catalog.Course `json:"course"`
}

type LessonContent struct {
	catalog.Lesson
	EmbedURL  string `json:"embed_url"`
	Completed bool   `json:"completed"`
}

type SectionContent struct {
	catalog.Section
	Lessons []LessonContent `json:"lessons"`
}

// CourseContent is the course curriculum as seen by an enrolled student.
type CourseContent struct {
	Course     catalog.Course   `json:"course"`
	Enrollment Enrollment       `json:"enrollment"`
	Sections   []SectionContent `json:"sections"`
}

type LessonView struct {
	Lesson     LessonContent  `json:"lesson"`
	Progress   LessonProgress `json:"progress"`
	IsEnrolled bool           `json:"is_enrolled"`
}

type RecentLesson struct {
	LessonProgress
	LessonTitle string `json:"lesson_title"`
	CourseID    int64  `json:"course_id"`
}

type Dashboard struct {
	Enrollments   []EnrolledCourse `json:"enrollments"`
	Certificates  []Certificate    `json:"certificates"`
	RecentLessons []RecentLesson   `json:"recent_lessons"`
	LearningHours int              `json:"learning_hours"`
	Completed     int              `json:"completed_courses"`
	InProgress    int              `json:"in_progress_courses"`
}
