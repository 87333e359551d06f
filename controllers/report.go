package controllers

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"civicspot/apperr"
	"civicspot/gcs"
	middlewares "civicspot/middleware"
	"civicspot/models"
	"civicspot/utils"
)

const imagesField = "images"

type ReportController struct {
	reports       ReportService
	maxImageBytes int64
	debug         bool
}

func NewReportController(reports ReportService, maxImageBytes int64, debug bool) *ReportController {
	if maxImageBytes <= 0 {
		maxImageBytes = gcs.DefaultMaxImageBytes
	}
	return &ReportController{reports: reports, maxImageBytes: maxImageBytes, debug: debug}
}

// Create accepts either a multipart form (fields plus up to five images,
// location as a JSON string) or a plain JSON body without images.
func (rc *ReportController) Create(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}

	var (
		in    models.CreateReportInput
		files []*multipart.FileHeader
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			rc.fail(c, apperr.Validation("Invalid multipart form"))
			return
		}
		in, err = createInputFromForm(form)
		if err != nil {
			rc.fail(c, err)
			return
		}
		files = form.File[imagesField]
	} else if err := c.ShouldBindJSON(&in); err != nil {
		rc.fail(c, apperr.Validation("Invalid request body"))
		return
	}

	if len(files) > models.MaxImages {
		rc.fail(c, apperr.ValidationFields(
			fmt.Sprintf("Too many files. Maximum %d images allowed", models.MaxImages),
			map[string]string{imagesField: fmt.Sprintf("cannot exceed %d files", models.MaxImages)},
		))
		return
	}

	uploads := make([]models.Upload, 0, len(files))
	for _, fh := range files {
		u := models.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size}
		if _, err := gcs.CheckUpload(u, rc.maxImageBytes); err != nil {
			rc.fail(c, err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			rc.fail(c, apperr.Unexpected("Failed to open image", err))
			return
		}
		defer f.Close()
		u.Reader = f
		uploads = append(uploads, u)
	}

	report, err := rc.reports.Create(c.Request.Context(), actor, in, uploads)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Report submitted successfully", report)
}

func (rc *ReportController) List(c *gin.Context) {
	var f models.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		rc.fail(c, apperr.Validation("Invalid query parameters"))
		return
	}
	page, err := rc.reports.List(c.Request.Context(), f)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.List(c, page.Items, len(page.Items), page.Total, page.Pages, page.Page)
}

func (rc *ReportController) Get(c *gin.Context) {
	report, err := rc.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "", report)
}

func (rc *ReportController) Mine(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	reports, err := rc.reports.Mine(c.Request.Context(), actor)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.List(c, reports, len(reports), int64(len(reports)), 1, 1)
}

func (rc *ReportController) Update(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	var in models.UpdateReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.fail(c, apperr.Validation("Invalid request body"))
		return
	}
	report, err := rc.reports.Update(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Report updated successfully", report)
}

func (rc *ReportController) UpdateStatus(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	var in models.StatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.fail(c, apperr.Validation("Invalid request body"))
		return
	}
	report, err := rc.reports.UpdateStatus(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Report status updated successfully", report)
}

func (rc *ReportController) Assign(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	var in models.AssignInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.fail(c, apperr.Validation("Invalid request body"))
		return
	}
	report, err := rc.reports.Assign(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Report assignment updated", report)
}

func (rc *ReportController) Delete(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	if err := rc.reports.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Report deleted successfully", nil)
}

func (rc *ReportController) AddComment(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	var in models.CommentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.fail(c, apperr.Validation("Invalid request body"))
		return
	}
	comments, err := rc.reports.AddComment(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Comment added successfully", comments)
}

func (rc *ReportController) Upvote(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	res, err := rc.reports.ToggleUpvote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	msg := "Upvote removed"
	if res.IsUpvoted {
		msg = "Report upvoted"
	}
	utils.Success(c, http.StatusOK, msg, res)
}

func (rc *ReportController) Stats(c *gin.Context) {
	actor, ok := rc.actor(c)
	if !ok {
		return
	}
	stats, err := rc.reports.Stats(c.Request.Context(), actor)
	if err != nil {
		rc.fail(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "", stats)
}

func (rc *ReportController) actor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middlewares.ActorFrom(c)
	if !ok {
		utils.Abort(c, http.StatusUnauthorized, "Not authorized. Please login to access this resource.")
	}
	return actor, ok
}

func (rc *ReportController) fail(c *gin.Context, err error) {
	utils.Fail(c, err, rc.debug)
}

func createInputFromForm(form *multipart.Form) (models.CreateReportInput, error) {
	in := models.CreateReportInput{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		Category:    formValue(form, "category"),
		Priority:    formValue(form, "priority"),
	}
	if raw := formValue(form, "location"); raw != "" {
		var loc models.LocationInput
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			return in, apperr.ValidationFields("Invalid location format", map[string]string{"location": "must be a JSON object"})
		}
		in.Location = &loc
	}
	return in, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
