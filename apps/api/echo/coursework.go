package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/coursework"
	"github.com/trezcool/darasa/core/user"
)

type SuccessResponse struct {
	Success string `json:"success"`
}

// AssignStudentsRequest carries the id of the entity under "<kind>_id".
type AssignStudentsRequest struct {
	AssignmentID string   `json:"assignment_id"`
	QuizID       string   `json:"quiz_id"`
	MaterialID   string   `json:"material_id"`
	StudentIDs   []string `json:"student_ids" validate:"ids"`
}

func (r AssignStudentsRequest) entityID(kind coursework.EntityKind) string {
	switch kind {
	case coursework.KindQuiz:
		return r.QuizID
	case coursework.KindMaterial:
		return r.MaterialID
	default:
		return r.AssignmentID
	}
}

var assignableKinds = map[string]coursework.EntityKind{
	"/assignments": coursework.KindAssignment,
	"/quizzes":     coursework.KindQuiz,
	"/materials":   coursework.KindMaterial,
}

type courseworkApi struct {
	svc *coursework.Service
}

func registerCourseworkAPI(g, admin *echo.Group, requireRoles roleMiddleware, svc *coursework.Service) {
	api := courseworkApi{svc: svc}
	adminOnly := requireRoles(user.RoleAdmin)

	admin.GET("/assignments", api.listAssignments)
	admin.POST("/assignments", api.createAssignment)
	admin.GET("/assignments/:id/resources", api.listResources)
	admin.GET("/assignments/:id/submissions", api.listSubmissions)
	admin.POST("/quizzes", api.createQuiz)
	admin.POST("/materials", api.createMaterial)
	admin.PATCH("/submissions/:id/grade", api.grade)

	for prefix, kind := range assignableKinds {
		g.POST(prefix+"/assign-students", api.assignStudents(kind), adminOnly)
		admin.GET(prefix+"/:id/students", api.assignedStudents(kind))
	}

	ag := g.Group("/assignments")
	ag.POST("/resources/sign", api.reserveUpload, adminOnly)
	ag.DELETE("/resources/:id", api.deleteResource, adminOnly)
	ag.POST("/:id/resources", api.addResource, adminOnly)
	ag.GET("/:id/resources/:resourceId/download", api.download, requireRoles(user.RoleStudent, user.RoleAdmin))
	ag.POST("/:id/submissions", api.submit, requireRoles(user.RoleStudent))
}

// Handlers

func (api *courseworkApi) assignStudents(kind coursework.EntityKind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data AssignStudentsRequest
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to AssignStudentsRequest")
		}
		entityID := data.entityID(kind)
		if entityID == "" {
			fld := string(kind) + "_id"
			return core.NewValidationError(nil, core.FieldError{Field: fld, Error: "this field is required"})
		}
		if err := core.ValidateStruct(data); err != nil {
			return err
		}

		res, err := api.svc.Assign(ctx.Request().Context(), kind, entityID, data.StudentIDs)
		if err != nil {
			return errors.Wrapf(err, "assigning %s", kind)
		}
		return ctx.JSON(http.StatusOK, res)
	}
}

func (api *courseworkApi) assignedStudents(kind coursework.EntityKind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ids, err := api.svc.AssignedUserIDs(ctx.Request().Context(), kind, ctx.Param("id"))
		if err != nil {
			return errors.Wrapf(err, "listing %s students", kind)
		}
		if ids == nil {
			ids = []string{}
		}
		return ctx.JSON(http.StatusOK, echo.Map{"student_ids": ids})
	}
}

func (api *courseworkApi) listAssignments(ctx echo.Context) error {
	var filter coursework.AssignmentFilter
	if err := echo.QueryParamsBinder(ctx).String("course_id", &filter.CourseID).BindError(); err != nil {
		return errors.Wrap(err, "binding to AssignmentFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.ListAssignments(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	if assignments == nil {
		assignments = []coursework.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *courseworkApi) createAssignment(ctx echo.Context) error {
	var data coursework.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}

	a, err := api.svc.CreateAssignment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *courseworkApi) createQuiz(ctx echo.Context) error {
	var data coursework.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}

	q, err := api.svc.CreateQuiz(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *courseworkApi) createMaterial(ctx echo.Context) error {
	var data coursework.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}

	m, err := api.svc.CreateMaterial(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseworkApi) reserveUpload(ctx echo.Context) error {
	var data coursework.ReserveUpload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReserveUpload")
	}

	slot, err := api.svc.ReserveUploadKey(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "reserving upload key")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *courseworkApi) addResource(ctx echo.Context) error {
	var data coursework.NewResource
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResource")
	}

	res, err := api.svc.AddResource(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding resource")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *courseworkApi) listResources(ctx echo.Context) error {
	resources, err := api.svc.ListResources(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing resources")
	}
	if resources == nil {
		resources = []coursework.Resource{}
	}
	return ctx.JSON(http.StatusOK, resources)
}

func (api *courseworkApi) deleteResource(ctx echo.Context) error {
	if err := api.svc.DeleteResource(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting resource")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Resource deleted."})
}

func (api *courseworkApi) download(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	signed, err := api.svc.ResourceDownloadURL(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("resourceId"))
	if err != nil {
		return errors.Wrap(err, "signing resource download")
	}
	return ctx.JSON(http.StatusOK, signed)
}

func (api *courseworkApi) submit(ctx echo.Context) error {
	var data coursework.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.Submit(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting work")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *courseworkApi) listSubmissions(ctx echo.Context) error {
	submissions, err := api.svc.ListSubmissions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if submissions == nil {
		submissions = []coursework.Submission{}
	}
	return ctx.JSON(http.StatusOK, submissions)
}

func (api *courseworkApi) grade(ctx echo.Context) error {
	var data coursework.GradeSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}

	s, err := api.svc.Grade(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, s)
}
