package course

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type Course struct {
	ID          string      `json:"id" gorm:"primaryKey;size:36"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug" gorm:"uniqueIndex"`
	Description null.String `json:"description"`
	Price       int64       `json:"price"` // minor currency units
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Modules     []Module    `json:"modules,omitempty" gorm:"foreignKey:CourseID"`
}

func (Course) TableName() string { return "courses" }

type Module struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	Lessons   []Lesson  `json:"lessons,omitempty" gorm:"foreignKey:ModuleID"`
}

func (Module) TableName() string { return "modules" }

type Lesson struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ModuleID  string    `json:"module_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (Lesson) TableName() string { return "lessons" }

type NewCourse struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"gte=0"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = strings.TrimSpace(nc.Description)
}

type NewModule struct {
	Title    string `json:"title" validate:"required,max=255"`
	Position *int   `json:"position" validate:"omitempty,gte=0"`
}

type NewLesson struct {
	Title    string `json:"title" validate:"required,max=255"`
	Content  string `json:"content"`
	Position *int   `json:"position" validate:"omitempty,gte=0"`
}

var (
	slugMaxLen  = 200
	slugDashRgx = regexp.MustCompile(`-+`)
)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	slug := slugDashRgx.ReplaceAllString(strings.Trim(b.String(), "-"), "-")
	if len(slug) > slugMaxLen {
		slug = strings.TrimRight(slug[:slugMaxLen], "-")
	}
	if slug == "" {
		slug = "course"
	}
	return slug
}
