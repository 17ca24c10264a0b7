package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/contact"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func TestCourseAPI(t *testing.T) {
	app := newTestApp(t)

	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false)
	student := testutil.CreateUser(t, app.db, "Student", "student@darasa.test", user.RoleStudent, false)
	token := app.token(t, admin)

	rec := app.do(http.MethodPost, "/api/admin/courses", app.token(t, student), []byte(`{"title": "Intro to Go"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/api/admin/courses", token, []byte(`{"price": 100}`))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"title": "this field is required"}`)}, rec)

	create := func(body string) course.Course {
		t.Helper()
		rec := app.do(http.MethodPost, "/api/admin/courses", token, []byte(body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var crs course.Course
		unmarchallObj(t, rec, &crs)
		return crs
	}
	crs := create(`{"title": "Intro to Go", "description": "Learn Go", "price": 150000}`)
	assert.Equal(t, "intro-to-go", crs.Slug)
	dup := create(`{"title": "Intro to  Go!"}`)
	assert.Equal(t, "intro-to-go-2", dup.Slug)

	addModule := func(courseID, body string) *httptest.ResponseRecorder {
		return app.do(http.MethodPost, "/api/admin/courses/"+courseID+"/modules", token, []byte(body))
	}
	rec = addModule(core.NewID(), `{"title": "Basics"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = addModule(crs.ID, `{"title": "Concurrency"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var concurrency course.Module
	unmarchallObj(t, rec, &concurrency)
	assert.Equal(t, 0, concurrency.Position)

	rec = addModule(crs.ID, `{"title": "Basics", "position": 0}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var basics course.Module
	unmarchallObj(t, rec, &basics)

	rec = app.do(http.MethodPost, "/api/admin/modules/"+basics.ID+"/lessons", token, []byte(`{"title": "Hello, world", "content": "package main"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/api/admin/modules/"+core.NewID()+"/lessons", token, []byte(`{"title": "Lost"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// public catalog
	rec = app.do(http.MethodGet, "/api/courses?ordering=-price", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []course.Course
	unmarchallObj(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, crs.ID, list[0].ID)

	rec = app.do(http.MethodGet, "/api/courses/INTRO-TO-GO", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail course.Course
	unmarchallObj(t, rec, &detail)
	require.Len(t, detail.Modules, 2)
	// same position: creation order
	assert.Equal(t, concurrency.ID, detail.Modules[0].ID)
	assert.Equal(t, basics.ID, detail.Modules[1].ID)
	require.Len(t, detail.Modules[1].Lessons, 1)
	assert.Equal(t, "Hello, world", detail.Modules[1].Lessons[0].Title)

	rec = app.do(http.MethodGet, "/api/courses/nope", "")
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"})}, rec)
}

func TestDashboardAPI(t *testing.T) {
	app := newTestApp(t)

	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false)
	crs := testutil.CreateCourse(t, app.db, "Intro to Go", 150000)
	testutil.CreateAssignment(t, app.db, crs.ID, "Hello, world")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	var enrollmentIDs []string
	for i := 0; i < 7; i++ {
		s := testutil.CreateUser(t, app.db, fmt.Sprintf("S%d", i), fmt.Sprintf("s%d@darasa.test", i), user.RoleStudent, false)
		e := testutil.CreateEnrollment(t, app.db, s.ID, crs.ID, base.Add(time.Duration(i)*time.Minute))
		enrollmentIDs = append(enrollmentIDs, e.ID)
	}

	rec := app.do(http.MethodGet, "/api/admin/dashboard-stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(http.MethodGet, "/api/admin/dashboard-stats", app.token(t, admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats dashboard.Stats
	unmarchallObj(t, rec, &stats)

	assert.Equal(t, int64(7), stats.StudentCount)
	assert.Equal(t, int64(7), stats.EnrollmentCount)
	assert.Equal(t, int64(0), stats.PaymentCount)
	assert.Equal(t, int64(1), stats.AssignmentCount)
	assert.Equal(t, int64(0), stats.PendingSubmissionCount)
	require.Len(t, stats.RecentEnrollments, dashboard.RecentLimit)
	for i, e := range stats.RecentEnrollments {
		assert.Equal(t, enrollmentIDs[6-i], e.ID)
	}
	assert.Equal(t, "Intro to Go", stats.RecentEnrollments[0].CourseTitle)
	assert.Equal(t, "S6", stats.RecentEnrollments[0].StudentName)
}

func TestContactAPI(t *testing.T) {
	app := newTestApp(t)

	runHttpTests(t, app, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/api/contact",
			body:     []byte(`{"name": "Jane", "email": "jane", "message": "Hi"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email": "email must be a valid email address"}`),
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/api/contact",
			body:     []byte(`{"email": "jane@darasa.test"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required", "message": "this field is required"}`),
		},
		{
			name: "invalid newsletter email", method: http.MethodPost, path: "/api/newsletter",
			body:     []byte(`{"email": "jane"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email": "email must be a valid email address"}`),
		},
	})
	assert.Empty(t, app.mailSvc.SentMessages())

	rec := app.do(http.MethodPost, "/api/contact", "", []byte(`{"name": " Jane ", "email": "Jane@Darasa.test", "subject": "Hello", "message": "Any Go course?"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub contact.Submission
	unmarchallObj(t, rec, &sub)
	assert.Equal(t, "Jane", sub.Name)
	assert.Equal(t, "jane@darasa.test", sub.Email)

	sent := app.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, app.conf.ContactInbox, sent[0].To[0].Address)
	assert.Equal(t, "jane@darasa.test", sent[0].ReplyTo.Address)

	for i := 0; i < 2; i++ {
		rec = app.do(http.MethodPost, "/api/newsletter", "", []byte(`{"email": "JANE@darasa.test"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	var subscriber contact.Subscriber
	unmarchallObj(t, rec, &subscriber)
	assert.Equal(t, "jane@darasa.test", subscriber.Email)
	assert.Equal(t, int64(1), countRows(t, app, &contact.Subscriber{}))
	assert.Len(t, app.mailSvc.SentMessages(), 2, "welcome email is sent once")
}

func TestFileAPI(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	key := "assignments/" + core.NewID() + "/brief.txt"
	upload, err := app.files.SignUpload(ctx, key, "text/plain")
	require.NoError(t, err)
	download, err := app.files.SignDownload(ctx, key, "brief.txt")
	require.NoError(t, err)

	requestURI := func(signed string) string {
		u, err := url.Parse(signed)
		require.NoError(t, err)
		return u.RequestURI()
	}
	do := func(method, target string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		app.server.ServeHTTP(rec, req)
		return rec
	}

	// not uploaded yet
	rec := do(http.MethodGet, requestURI(download.URL), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// an upload URL cannot be used to download and vice versa
	rec = do(http.MethodGet, requestURI(upload.URL), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(http.MethodPut, requestURI(download.URL), []byte("nope"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(http.MethodPut, requestURI(upload.URL), []byte("Write a hello world program."))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, requestURI(download.URL), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Write a hello world program.", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "brief.txt")

	// tampered key
	u, err := url.Parse(download.URL)
	require.NoError(t, err)
	u.Path = "/files/assignments/other/brief.txt"
	rec = do(http.MethodGet, u.RequestURI(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// expired
	app.files.NowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	rec = do(http.MethodGet, requestURI(download.URL), nil)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "url expired"})}, rec)
}
