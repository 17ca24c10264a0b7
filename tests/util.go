package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

var dbSeq int64

// Config returns a test configuration backed by a fresh in-memory SQLite database.
func Config() *core.Config {
	n := atomic.AddInt64(&dbSeq, 1)
	return &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "Darasa",
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:3000",
		ContactInbox:    "contact@darasa.test",
		Server: core.ServerConfig{
			JWTSecret: "secret",
		},
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Name:   fmt.Sprintf("file:darasa_test_%d?mode=memory&cache=shared&_foreign_keys=1", n),
		},
		Payment: core.PaymentConfig{
			Currency:  "IDR",
			ReturnURL: "http://localhost:3000/payments/verify?order_id={order_id}",
			OrderTTL:  24 * time.Hour,
		},
		Storage: core.StorageConfig{
			LocalDir:        "media",
			SignedURLExpiry: 15 * time.Minute,
		},
	}
}

// PrepareDB opens a migrated database that is closed when the test ends.
func PrepareDB(t *testing.T, conf ...*core.Config) *database.DB {
	t.Helper()

	c := Config()
	if len(conf) > 0 {
		c = conf[0]
	}
	db, err := database.Open(c)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}

func create(t *testing.T, db *database.DB, value interface{}) {
	t.Helper()
	if err := db.Gorm.Create(value).Error; err != nil {
		t.Fatalf("create(%T): %v", value, err)
	}
}

func tstamp(createdAt []time.Time) time.Time {
	if len(createdAt) > 0 {
		return createdAt[0].UTC()
	}
	return time.Now().UTC()
}

func CreateUser(t *testing.T, db *database.DB, name, email string, role user.Role, blocked bool, createdAt ...time.Time) user.User {
	ts := tstamp(createdAt)
	usr := user.User{
		ID:        core.NewID(),
		Name:      name,
		Email:     email,
		Role:      role,
		Blocked:   blocked,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	create(t, db, &usr)
	return usr
}

func CreateCourse(t *testing.T, db *database.DB, title string, price int64) course.Course {
	ts := time.Now().UTC()
	c := course.Course{
		ID:        core.NewID(),
		Title:     title,
		Slug:      course.Slugify(title) + "-" + core.NewID()[24:],
		Price:     price,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	create(t, db, &c)
	return c
}

func CreateAssignment(t *testing.T, db *database.DB, courseID, title string) coursework.Assignment {
	ts := time.Now().UTC()
	a := coursework.Assignment{
		ID:        core.NewID(),
		CourseID:  courseID,
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	create(t, db, &a)
	return a
}

func CreateEnrollment(t *testing.T, db *database.DB, userID, courseID string, createdAt ...time.Time) payment.Enrollment {
	ts := tstamp(createdAt)
	enr := payment.Enrollment{
		ID:        core.NewID(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    payment.EnrollmentActive,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	create(t, db, &enr)
	return enr
}

func CreateOrder(t *testing.T, db *database.DB, userID string, crs course.Course, createdAt ...time.Time) payment.Order {
	ts := tstamp(createdAt)
	o := payment.Order{
		ID:        core.NewID(),
		OrderID:   core.NewID(),
		UserID:    userID,
		CourseID:  crs.ID,
		Amount:    crs.Price,
		Currency:  "IDR",
		Provider:  "fake",
		Status:    payment.OrderPending,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	create(t, db, &o)
	return o
}
