package store

import (
	"context"
	"errors"

	"github.com/huangang/codecollab/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers returns every user except excludeID.
	ListUsers(ctx context.Context, excludeID string) ([]models.User, error)
	CountUsers(ctx context.Context, ids []string) (int64, error)
	UpdateUserName(ctx context.Context, id, name string) error
}

// ProjectStore persists projects, their members and their chat log.
// Writes are last-writer-wins; no method takes a version token.
type ProjectStore interface {
	// CreateProject inserts the project and makes its admin the only member.
	CreateProject(ctx context.Context, project *models.Project) error
	// GetProject returns the project with members and messages populated.
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// ListProjectsByMember returns projects the user belongs to, members
	// populated and messages omitted.
	ListProjectsByMember(ctx context.Context, userID string) ([]models.Project, error)
	// AddMembers merges userIDs into the member set.
	AddMembers(ctx context.Context, projectID string, userIDs []string) error
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
	ReplaceFileTree(ctx context.Context, projectID string, tree models.FileTree) error
	AppendMessage(ctx context.Context, projectID string, msg *models.Message) error
	DeleteProject(ctx context.Context, projectID string) error
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserStore
	ProjectStore
	Driver() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
