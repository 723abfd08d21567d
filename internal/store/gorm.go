package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps users and projects in a relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Driver() string {
	return s.db.Dialector.Name()
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close(ctx context.Context) error {
	return models.CloseDB(s.db)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// --- users ---

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	if user.ID == "" {
		user.ID = models.NewID()
	}
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	var users []models.User
	query := s.db.WithContext(ctx).Model(&models.User{})
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) CountUsers(ctx context.Context, ids []string) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

func (s *GormStore) UpdateUserName(ctx context.Context, id, name string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- projects ---

func (s *GormStore) CreateProject(ctx context.Context, project *models.Project) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("name = ?", project.Name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	if project.ID == "" {
		project.ID = models.NewID()
	}
	if project.FileTree == nil {
		project.FileTree = models.FileTree{}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(project).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProjectMember{
			ProjectID: project.ID,
			UserID:    project.Admin.ID,
		}).Error
	})
	if err != nil {
		return translate(err)
	}

	admin, err := s.GetUserByID(ctx, project.Admin.ID)
	if err == nil {
		project.Users = []models.User{*admin}
	}
	return nil
}

func (s *GormStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Users", func(db *gorm.DB) *gorm.DB { return db.Order("users.name ASC") }).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp ASC, id ASC") }).
		Where("id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, translate(err)
	}
	if project.FileTree == nil {
		project.FileTree = models.FileTree{}
	}
	return &project, nil
}

func (s *GormStore) ListProjectsByMember(ctx context.Context, userID string) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Preload("Users").
		Select("projects.*").
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *GormStore) AddMembers(ctx context.Context, projectID string, userIDs []string) error {
	if err := s.projectExists(ctx, projectID); err != nil {
		return err
	}
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	members := make([]models.ProjectMember, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, models.ProjectMember{ProjectID: projectID, UserID: id})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&members).Error
}

func (s *GormStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) ReplaceFileTree(ctx context.Context, projectID string, tree models.FileTree) error {
	if tree == nil {
		tree = models.FileTree{}
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"file_tree":  string(data),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendMessage(ctx context.Context, projectID string, msg *models.Message) error {
	if err := s.projectExists(ctx, projectID); err != nil {
		return err
	}
	msg.ID = 0
	msg.ProjectID = projectID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) DeleteProject(ctx context.Context, projectID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", projectID).Delete(&models.Project{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		return tx.Where("project_id = ?", projectID).Delete(&models.Message{}).Error
	})
}

func (s *GormStore) projectExists(ctx context.Context, projectID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
