package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/internal/store"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/huangang/codecollab/backend/pkg/response"
)

var (
	errInvalidProjectID = response.NewBadRequest("invalid project id")
	errProjectNotFound  = response.NewNotFound("project not found")
	errNotMember        = response.NewForbidden("you are not a member of this project")
)

type ProjectService struct {
	store store.Store
}

func NewProjectService(s store.Store) *ProjectService {
	return &ProjectService{store: s}
}

type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddUsersRequest struct {
	ProjectID string   `json:"projectId" binding:"required"`
	Users     []string `json:"users" binding:"required,min=1"`
}

type UpdateFileTreeRequest struct {
	ProjectID string          `json:"projectId" binding:"required"`
	FileTree  models.FileTree `json:"fileTree" binding:"required"`
}

// SaveMessageRequest carries a chat line for the REST fallback. The sender
// field is accepted for compatibility but the caller's identity is stored.
type SaveMessageRequest struct {
	ProjectID string          `json:"projectId" binding:"required"`
	Sender    *models.UserRef `json:"sender"`
	Message   string          `json:"message" binding:"required"`
}

// Create persists a new project whose only member is the caller.
func (s *ProjectService) Create(ctx context.Context, id Identity, name string) (*models.Project, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, response.NewValidation("validation failed", []string{"name is required"})
	}

	admin, err := s.caller(ctx, id)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		Name:     name,
		Admin:    admin.Ref(),
		FileTree: models.FileTree{},
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, response.NewConflict("project name already exists")
		}
		return nil, err
	}
	if project.Messages == nil {
		project.Messages = []models.Message{}
	}

	logger.Info().Str("project_id", project.ID).Str("name", name).Str("admin", admin.ID).Msg("[Project] Created")
	return project, nil
}

// ListForUser returns the projects the caller belongs to.
func (s *ProjectService) ListForUser(ctx context.Context, id Identity) ([]models.Project, error) {
	projects, err := s.store.ListProjectsByMember(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// Get returns a project the caller belongs to.
func (s *ProjectService) Get(ctx context.Context, id Identity, projectID string) (*models.Project, error) {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasMember(id.UserID) {
		return nil, errNotMember
	}
	return project, nil
}

// CheckAccess verifies that projectID exists and the caller belongs to it.
func (s *ProjectService) CheckAccess(ctx context.Context, id Identity, projectID string) error {
	if !models.IsValidID(projectID) {
		return errInvalidProjectID
	}
	ok, err := s.store.IsMember(ctx, projectID, id.UserID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// distinguish a missing project from a foreign one
	if _, err := s.load(ctx, projectID); err != nil {
		return err
	}
	return errNotMember
}

// AddUsers merges userIDs into the member set. Existing members are ignored.
func (s *ProjectService) AddUsers(ctx context.Context, id Identity, projectID string, userIDs []string) (*models.Project, error) {
	if len(userIDs) == 0 {
		return nil, response.NewValidation("validation failed", []string{"users must contain at least one user id"})
	}
	unique := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		if !models.IsValidID(uid) {
			return nil, response.NewBadRequest("invalid user id: " + uid)
		}
		unique[uid] = struct{}{}
	}

	if err := s.CheckAccess(ctx, id, projectID); err != nil {
		return nil, err
	}

	count, err := s.store.CountUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if int(count) != len(unique) {
		return nil, response.NewBadRequest("one or more users do not exist")
	}

	if err := s.store.AddMembers(ctx, projectID, userIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errProjectNotFound
		}
		return nil, err
	}
	return s.load(ctx, projectID)
}

// UpdateFileTree replaces the whole tree. Concurrent updates are
// last-writer-wins.
func (s *ProjectService) UpdateFileTree(ctx context.Context, id Identity, projectID string, tree models.FileTree) (*models.Project, error) {
	if tree == nil {
		tree = models.FileTree{}
	}
	if err := tree.Validate(); err != nil {
		return nil, response.NewBadRequest(err.Error())
	}
	if err := s.CheckAccess(ctx, id, projectID); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceFileTree(ctx, projectID, tree); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errProjectNotFound
		}
		return nil, err
	}
	logger.Info().Str("project_id", projectID).Str("user", id.UserID).
		Int("file_count", tree.FileCount()).Msg("[Project] File tree replaced")
	logger.Debug().Str("project_id", projectID).Strs("paths", tree.Paths()).Msg("[Project] File tree paths")
	return s.load(ctx, projectID)
}

// SaveMessage appends a message from the caller to the project's log.
func (s *ProjectService) SaveMessage(ctx context.Context, id Identity, projectID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, response.NewValidation("validation failed", []string{"message is required"})
	}
	if err := s.CheckAccess(ctx, id, projectID); err != nil {
		return nil, err
	}
	sender, err := s.caller(ctx, id)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		Sender:    sender.Ref(),
		Text:      text,
		Timestamp: time.Now(),
	}
	if err := s.RecordMessage(ctx, projectID, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordMessage appends msg without an access check. The relay calls it for
// messages it has already accepted from joined members.
func (s *ProjectService) RecordMessage(ctx context.Context, projectID string, msg *models.Message) error {
	if err := s.store.AppendMessage(ctx, projectID, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errProjectNotFound
		}
		return err
	}
	return nil
}

// Delete removes a project. Only its admin may do so.
func (s *ProjectService) Delete(ctx context.Context, id Identity, projectID string) error {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if !project.IsAdmin(id.UserID) {
		return response.NewForbidden("only the project admin can delete this project")
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errProjectNotFound
		}
		return err
	}

	logger.Info().Str("project_id", projectID).Str("admin", id.UserID).Msg("[Project] Deleted")
	return nil
}

// Sender returns the snapshot stamped on messages from the caller.
func (s *ProjectService) Sender(ctx context.Context, id Identity) (models.UserRef, error) {
	user, err := s.caller(ctx, id)
	if err != nil {
		return models.UserRef{}, err
	}
	return user.Ref(), nil
}

func (s *ProjectService) load(ctx context.Context, projectID string) (*models.Project, error) {
	if !models.IsValidID(projectID) {
		return nil, errInvalidProjectID
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) caller(ctx context.Context, id Identity) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, response.NewUnauthorized("unauthorized: user no longer exists")
		}
		return nil, err
	}
	return user, nil
}
