package coursework

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"

	"github.com/trezcool/darasa/core"
)

// EntityKind names the kinds of course content that can be assigned to students.
type EntityKind string

const (
	KindAssignment EntityKind = "assignment"
	KindQuiz       EntityKind = "quiz"
	KindMaterial   EntityKind = "material"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindAssignment, KindQuiz, KindMaterial:
		return true
	default:
		return false
	}
}

func (k EntityKind) NotFound() error {
	return core.NewNotFoundError(string(k))
}

// Submission statuses
const (
	SubmissionPending = "PENDING"
	SubmissionGraded  = "GRADED"
)

type Assignment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       null.Time `json:"due_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Assignment) TableName() string { return "assignments" }

type Quiz struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CourseID  string         `json:"course_id"`
	Title     string         `json:"title"`
	Questions datatypes.JSON `json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Quiz) TableName() string { return "quizzes" }

type Material struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	CourseID  string      `json:"course_id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	FileKey   null.String `json:"file_key"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Material) TableName() string { return "course_materials" }

// link rows; the composite primary keys make re-assignment a no-op.
type (
	StudentAssignment struct {
		UserID       string `gorm:"primaryKey"`
		AssignmentID string `gorm:"primaryKey"`
		CreatedAt    time.Time
	}

	StudentQuizAssignment struct {
		UserID    string `gorm:"primaryKey"`
		QuizID    string `gorm:"primaryKey"`
		CreatedAt time.Time
	}

	StudentMaterialAssignment struct {
		UserID     string `gorm:"primaryKey"`
		MaterialID string `gorm:"primaryKey"`
		CreatedAt  time.Time
	}
)

func (StudentAssignment) TableName() string         { return "student_assignments" }
func (StudentQuizAssignment) TableName() string     { return "student_quiz_assignments" }
func (StudentMaterialAssignment) TableName() string { return "student_material_assignments" }

// Resource is a file attached to an assignment. Deleting it leaves the object in storage.
type Resource struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	AssignmentID string    `json:"assignment_id"`
	FileKey      string    `json:"file_key"`
	Filename     string    `json:"filename"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Resource) TableName() string { return "assignment_resources" }

type Submission struct {
	ID           string      `json:"id" gorm:"primaryKey;size:36"`
	AssignmentID string      `json:"assignment_id"`
	UserID       string      `json:"user_id"`
	Content      string      `json:"content"`
	FileKey      null.String `json:"file_key"`
	Status       string      `json:"status"`
	Grade        null.Int    `json:"grade"`
	Feedback     null.String `json:"feedback"`
	CreatedAt    time.Time   `json:"created_at"`
	GradedAt     null.Time   `json:"graded_at"`
}

func (Submission) TableName() string { return "submissions" }

type AssignResult struct {
	AssignedCount int `json:"assigned_count"` // distinct students now assigned
	CreatedCount  int `json:"created_count"`  // of which newly assigned
}

type NewAssignment struct {
	CourseID    string     `json:"course_id" validate:"required,uuid"`
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
}

type Question struct {
	Prompt  string   `json:"prompt" validate:"required"`
	Options []string `json:"options" validate:"min=2,dive,required"`
	Answer  int      `json:"answer" validate:"gte=0"` // index in Options
}

type NewQuiz struct {
	CourseID  string     `json:"course_id" validate:"required,uuid"`
	Title     string     `json:"title" validate:"required,max=255"`
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

type NewMaterial struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	Title    string `json:"title" validate:"required,max=255"`
	Content  string `json:"content"`
	FileKey  string `json:"file_key"`
}

type AssignmentFilter struct {
	CourseID string `query:"course_id"`
}

var AssignmentOrderingFields = []string{"title", "due_at", "created_at"}

type ReserveUpload struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type"`
}

type UploadSlot struct {
	FileKey string         `json:"file_key"`
	Upload  core.SignedURL `json:"upload"`
}

type NewResource struct {
	FileKey  string `json:"file_key" validate:"required,max=512"`
	Filename string `json:"filename" validate:"required,max=255,filename"`
}

type NewSubmission struct {
	Content string `json:"content"`
	FileKey string `json:"file_key" validate:"max=512"`
}

type GradeSubmission struct {
	Grade    *int   `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string `json:"feedback"`
}

const resourceKeyPrefix = "assignments/"

var unsafeFilenameRgx = regexp.MustCompile(`[^\w.\-]+`)

// CleanFilename keeps the base name of fn with unsafe characters replaced by dashes.
func CleanFilename(fn string) string {
	fn = path.Base(strings.ReplaceAll(strings.TrimSpace(fn), `\`, "/"))
	if fn == "." || fn == "/" || fn == ".." {
		return ""
	}
	fn = unsafeFilenameRgx.ReplaceAllString(fn, "-")
	return strings.Trim(fn, "-")
}
