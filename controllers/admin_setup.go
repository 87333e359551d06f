package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"civicspot/apperr"
	"civicspot/models"
	"civicspot/utils"
)

// AdminSetupController serves the bootstrap routes used to promote the
// first administrators. Routes are only mounted when enabled in config.
type AdminSetupController struct {
	setup AdminSetupService
	debug bool
}

func NewAdminSetupController(setup AdminSetupService, debug bool) *AdminSetupController {
	return &AdminSetupController{setup: setup, debug: debug}
}

func (ac *AdminSetupController) MakeAdmin(c *gin.Context) {
	var in models.MakeAdminInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.Fail(c, apperr.Validation("Please provide email"), ac.debug)
		return
	}
	user, err := ac.setup.MakeAdmin(c.Request.Context(), in)
	if err != nil {
		utils.Fail(c, err, ac.debug)
		return
	}
	utils.Success(c, http.StatusOK, fmt.Sprintf("User %s is now an admin!", user.Name), user)
}

func (ac *AdminSetupController) ListUsers(c *gin.Context) {
	users, err := ac.setup.ListUsers(c.Request.Context())
	if err != nil {
		utils.Fail(c, err, ac.debug)
		return
	}
	utils.List(c, users, len(users), int64(len(users)), 1, 1)
}
