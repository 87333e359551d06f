package controllers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/controllers"
	mock_controllers "civicspot/controllers/mocks"
	middlewares "civicspot/middleware"
	"civicspot/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	citizen = models.Actor{ID: primitive.NewObjectID(), Role: models.RoleUser}
	admin   = models.Actor{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
)

type envelope struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Data        json.RawMessage   `json:"data"`
	Error       string            `json:"error"`
	Fields      map[string]string `json:"fields"`
	Count       int               `json:"count"`
	Total       int64             `json:"total"`
	Pages       int               `json:"pages"`
	CurrentPage int               `json:"currentPage"`
}

// as installs actor on every request, standing in for the auth gate.
func as(actor *models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor != nil {
			middlewares.SetActor(c, *actor)
		}
		c.Next()
	}
}

func newRouter(svc controllers.ReportService, actor *models.Actor, debug bool) *gin.Engine {
	rc := controllers.NewReportController(svc, 1<<20, debug)
	r := gin.New()
	r.NoRoute(controllers.NotFound)
	api := r.Group("/api/reports", as(actor))
	api.POST("", rc.Create)
	api.GET("", rc.List)
	api.GET("/mine", rc.Mine)
	api.GET("/stats", rc.Stats)
	api.GET("/:id", rc.Get)
	api.PUT("/:id", rc.Update)
	api.DELETE("/:id", rc.Delete)
	api.POST("/:id/comments", rc.AddComment)
	api.POST("/:id/upvote", rc.Upvote)
	api.PUT("/:id/status", rc.UpdateStatus)
	api.PUT("/:id/assign", rc.Assign)
	return r
}

func serve(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func jsonRequest(method, path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sampleView(reporter primitive.ObjectID) *models.ReportView {
	return &models.ReportView{
		Report: models.Report{
			ID:       primitive.NewObjectID(),
			Title:    "Streetlight not working",
			Category: models.CategoryStreetlight,
			Status:   models.StatusPending,
			Priority: models.PriorityMedium,
			IsActive: true,
		},
		ReportedBy: models.UserSummary{ID: reporter, Name: "Asha"},
		Comments:   []models.CommentView{},
	}
}

type formFile struct {
	name        string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, fields map[string]string, files []formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreate_Multipart(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	svc.EXPECT().Create(gomock.Any(), citizen, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, _ models.Actor, in models.CreateReportInput, files []models.Upload) (*models.ReportView, error) {
			assert.Equal(t, "Streetlight not working", in.Title)
			assert.Equal(t, "streetlight", in.Category)
			require.NotNil(t, in.Location)
			require.NotNil(t, in.Location.Coordinates)
			assert.Equal(t, 40.7128, *in.Location.Coordinates.Lat)
			require.Len(t, files, 2)
			assert.Equal(t, "a.jpg", files[0].Filename)
			assert.Equal(t, "image/jpeg", files[0].ContentType)
			body, err := io.ReadAll(files[1].Reader)
			require.NoError(t, err)
			assert.Equal(t, "png-bytes", string(body))
			return sampleView(citizen.ID), nil
		})

	req := multipartRequest(t, map[string]string{
		"title":       "Streetlight not working",
		"description": "The streetlight on 5th Ave has been out for a week",
		"category":    "streetlight",
		"location":    `{"address":"5th Ave","coordinates":{"lat":40.7128,"lng":-74.006}}`,
	}, []formFile{
		{"a.jpg", "image/jpeg", "jpeg-bytes"},
		{"b.png", "image/png", "png-bytes"},
	})

	w, env := serve(t, newRouter(svc, &citizen, false), req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Report submitted successfully", env.Message)
	assert.Contains(t, string(env.Data), `"status":"pending"`)
}

func TestCreate_RejectsBeforeCallingService(t *testing.T) {
	location := `{"address":"5th Ave","coordinates":{"lat":40.7,"lng":-74}}`
	tests := []struct {
		name    string
		fields  map[string]string
		files   []formFile
		message string
	}{
		{
			name:    "bad location json",
			fields:  map[string]string{"title": "Pothole here", "location": "{not json"},
			message: "Invalid location format",
		},
		{
			name:   "too many images",
			fields: map[string]string{"location": location},
			files: []formFile{
				{"1.jpg", "image/jpeg", "x"}, {"2.jpg", "image/jpeg", "x"}, {"3.jpg", "image/jpeg", "x"},
				{"4.jpg", "image/jpeg", "x"}, {"5.jpg", "image/jpeg", "x"}, {"6.jpg", "image/jpeg", "x"},
			},
			message: "Too many files. Maximum 5 images allowed",
		},
		{
			name:    "not an image",
			fields:  map[string]string{"location": location},
			files:   []formFile{{"notes.txt", "text/plain", "hello"}},
			message: "Only image files are allowed (jpeg, jpg, png, gif, webp)",
		},
		{
			name:    "image too large",
			fields:  map[string]string{"location": location},
			files:   []formFile{{"big.jpg", "image/jpeg", string(make([]byte, 1<<20+1))}},
			message: "File too large. Maximum size is 1MB",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mock_controllers.NewMockReportService(ctrl)

			w, env := serve(t, newRouter(svc, &citizen, false), multipartRequest(t, tc.fields, tc.files))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.message, env.Message)
		})
	}
}

func TestCreate_JSONValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)
	svc.EXPECT().Create(gomock.Any(), citizen, gomock.Any(), gomock.Len(0)).
		Return(nil, apperr.ValidationFields("Validation failed", map[string]string{"title": "title is required"}))

	w, env := serve(t, newRouter(svc, &citizen, false), jsonRequest(http.MethodPost, "/api/reports", map[string]any{
		"description": "no title given here",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title is required", env.Fields["title"])
}

func TestCreate_Unauthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	w, env := serve(t, newRouter(svc, nil, false), jsonRequest(http.MethodPost, "/api/reports", map[string]any{}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
}

func TestList(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	svc.EXPECT().List(gomock.Any(), models.ListFilter{
		Category: "pothole", Status: "pending", Page: "1", Limit: "10",
	}).Return(&models.ReportPage{
		Items: []models.ReportView{*sampleView(citizen.ID), *sampleView(citizen.ID)},
		Total: 12,
		Pages: 2,
		Page:  1,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/reports?category=pothole&status=pending&page=1&limit=10", nil)
	w, env := serve(t, newRouter(svc, nil, false), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, 2, env.Count)
	assert.Equal(t, int64(12), env.Total)
	assert.Equal(t, 2, env.Pages)
	assert.Equal(t, 1, env.CurrentPage)
}

func TestGet_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		debug   bool
		status  int
		message string
		detail  string
	}{
		{"not found", apperr.NotFound("Report not found"), false, http.StatusNotFound, "Report not found", ""},
		{"unexpected hides detail", errors.New("socket closed"), false, http.StatusInternalServerError, "Server Error", ""},
		{"unexpected in development", apperr.Wrap("find report", errors.New("socket closed")), true, http.StatusInternalServerError, "find report", "socket closed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mock_controllers.NewMockReportService(ctrl)
			svc.EXPECT().Get(gomock.Any(), "abc").Return(nil, tc.err)

			w, env := serve(t, newRouter(svc, nil, tc.debug), httptest.NewRequest(http.MethodGet, "/api/reports/abc", nil))
			assert.Equal(t, tc.status, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.message, env.Message)
			assert.Equal(t, tc.detail, env.Error)
		})
	}
}

func TestMine(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)
	svc.EXPECT().Mine(gomock.Any(), citizen).Return([]models.ReportView{*sampleView(citizen.ID)}, nil)

	w, env := serve(t, newRouter(svc, &citizen, false), httptest.NewRequest(http.MethodGet, "/api/reports/mine", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Count)
}

func TestUpdate_Forbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	title := "A better title"
	svc.EXPECT().Update(gomock.Any(), citizen, "r1", models.UpdateReportInput{Title: &title}).
		Return(nil, apperr.Authorization("Not authorized to update this report"))

	w, env := serve(t, newRouter(svc, &citizen, false), jsonRequest(http.MethodPut, "/api/reports/r1", map[string]any{"title": title}))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authorized to update this report", env.Message)
}

func TestUpdate_MalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	req := httptest.NewRequest(http.MethodPut, "/api/reports/r1", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w, env := serve(t, newRouter(svc, &citizen, false), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)
	svc.EXPECT().Delete(gomock.Any(), citizen, "r1").Return(nil)

	w, env := serve(t, newRouter(svc, &citizen, false), httptest.NewRequest(http.MethodDelete, "/api/reports/r1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Report deleted successfully", env.Message)
}

func TestAddComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)
	svc.EXPECT().AddComment(gomock.Any(), citizen, "r1", models.CommentInput{Text: "Same here"}).
		Return([]models.CommentView{{ID: primitive.NewObjectID(), Text: "Same here"}}, nil)

	w, env := serve(t, newRouter(svc, &citizen, false), jsonRequest(http.MethodPost, "/api/reports/r1/comments", map[string]any{"text": "Same here"}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(env.Data), "Same here")
}

func TestUpvote(t *testing.T) {
	for _, upvoted := range []bool{true, false} {
		ctrl := gomock.NewController(t)
		svc := mock_controllers.NewMockReportService(ctrl)
		svc.EXPECT().ToggleUpvote(gomock.Any(), citizen, "r1").Return(&models.UpvoteResult{UpvoteCount: 1, IsUpvoted: upvoted}, nil)

		w, env := serve(t, newRouter(svc, &citizen, false), httptest.NewRequest(http.MethodPost, "/api/reports/r1/upvote", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		if upvoted {
			assert.Equal(t, "Report upvoted", env.Message)
		} else {
			assert.Equal(t, "Upvote removed", env.Message)
		}
		assert.JSONEq(t, `{"upvoteCount":1,"isUpvoted":`+map[bool]string{true: "true", false: "false"}[upvoted]+`}`, string(env.Data))
	}
}

func TestUpdateStatusAndAssign(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	view := sampleView(citizen.ID)
	svc.EXPECT().UpdateStatus(gomock.Any(), admin, "r1", models.StatusInput{Status: "resolved", Remarks: "fixed"}).Return(view, nil)
	priority := "high"
	svc.EXPECT().Assign(gomock.Any(), admin, "r1", models.AssignInput{Priority: &priority}).Return(view, nil)

	r := newRouter(svc, &admin, false)

	w, env := serve(t, r, jsonRequest(http.MethodPut, "/api/reports/r1/status", map[string]any{"status": "resolved", "remarks": "fixed"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Report status updated successfully", env.Message)

	w, env = serve(t, r, jsonRequest(http.MethodPut, "/api/reports/r1/assign", map[string]any{"priority": "high"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Report assignment updated", env.Message)
}

func TestStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)
	svc.EXPECT().Stats(gomock.Any(), admin).Return(&models.ReportStats{Total: 3, Pending: 2, Resolved: 1}, nil)

	w, env := serve(t, newRouter(svc, &admin, false), httptest.NewRequest(http.MethodGet, "/api/reports/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"pending":2,"inProgress":0,"resolved":1,"rejected":0}`, string(env.Data))
}

func TestUnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_controllers.NewMockReportService(ctrl)

	w, env := serve(t, newRouter(svc, nil, false), httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", env.Message)
}
