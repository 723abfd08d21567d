package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/middleware"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/pkg/response"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// Create creates a project owned by the current user
// POST /projects/create
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), middleware.CurrentIdentity(c), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// All returns the projects the current user is a member of
// GET /projects/all
func (h *ProjectHandler) All(c *gin.Context) {
	projects, err := h.projectService.ListForUser(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get returns one project with its members, file tree and messages
// GET /projects/get-project/:projectId
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projectService.Get(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// AddUsers merges users into the member set
// PUT /projects/add-user
func (h *ProjectHandler) AddUsers(c *gin.Context) {
	var req services.AddUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	project, err := h.projectService.AddUsers(c.Request.Context(), middleware.CurrentIdentity(c), req.ProjectID, req.Users)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// UpdateFileTree overwrites the project's file tree
// PUT /projects/update-file-tree
func (h *ProjectHandler) UpdateFileTree(c *gin.Context) {
	var req services.UpdateFileTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	project, err := h.projectService.UpdateFileTree(c.Request.Context(), middleware.CurrentIdentity(c), req.ProjectID, req.FileTree)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project, "file_count": project.FileTree.FileCount()})
}

// SaveMessage appends a chat message for clients without a live connection
// POST /projects/save-message
func (h *ProjectHandler) SaveMessage(c *gin.Context) {
	var req services.SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	msg, err := h.projectService.SaveMessage(c.Request.Context(), middleware.CurrentIdentity(c), req.ProjectID, req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Delete removes a project
// DELETE /projects/:projectId
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projectService.Delete(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("projectId")); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}
