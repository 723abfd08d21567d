package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection    = "users"
	projectsCollection = "projects"
)

// MongoStore keeps users and projects as documents. Project members are
// stored as user ids and populated on read; messages are embedded.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	projects *mongo.Collection
}

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	AuthType  string             `bson:"authType"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type projectDocument struct {
	ID        primitive.ObjectID   `bson:"_id"`
	Name      string               `bson:"name"`
	Admin     models.UserRef       `bson:"admin"`
	Users     []primitive.ObjectID `bson:"users"`
	FileTree  bson.Raw             `bson:"fileTree,omitempty"`
	Messages  []models.Message     `bson:"messages"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := NewMongoStore(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		projects: db.Collection(projectsCollection),
	}
}

// EnsureIndexes creates the unique indexes on user email and project name.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}
	if _, err := s.projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "users", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create projects index: %w", err)
	}
	return nil
}

func (s *MongoStore) Driver() string { return "mongo" }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func translateMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, ErrNotFound
		}
		out = append(out, oid)
	}
	return out, nil
}

func (d *userDocument) toModel() models.User {
	return models.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Password:  d.Password,
		AuthType:  d.AuthType,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// --- users ---

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	oid := primitive.NewObjectID()
	if user.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(user.ID)
		if err != nil {
			return fmt.Errorf("invalid user id %q", user.ID)
		}
		oid = parsed
	}
	now := time.Now()
	if user.AuthType == "" {
		user.AuthType = "local"
	}

	doc := userDocument{
		ID:        oid,
		Name:      user.Name,
		Email:     user.Email,
		Password:  user.Password,
		AuthType:  user.AuthType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return translateMongo(err)
	}
	user.ID = oid.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	user := doc.toModel()
	return &user, nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	filter := bson.M{}
	if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	return s.findUsers(ctx, filter)
}

func (s *MongoStore) findUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toModel())
	}
	return users, nil
}

func (s *MongoStore) CountUsers(ctx context.Context, ids []string) (int64, error) {
	oids, err := objectIDs(ids)
	if err != nil {
		return 0, nil
	}
	if len(oids) == 0 {
		return 0, nil
	}
	return s.users.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": oids}})
}

func (s *MongoStore) UpdateUserName(ctx context.Context, id, name string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	result, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"name": name, "updatedAt": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- projects ---

func (s *MongoStore) CreateProject(ctx context.Context, project *models.Project) error {
	adminID, err := primitive.ObjectIDFromHex(project.Admin.ID)
	if err != nil {
		return fmt.Errorf("invalid admin id %q", project.Admin.ID)
	}
	if project.FileTree == nil {
		project.FileTree = models.FileTree{}
	}
	tree, err := encodeTree(project.FileTree)
	if err != nil {
		return err
	}

	now := time.Now()
	doc := projectDocument{
		ID:        primitive.NewObjectID(),
		Name:      project.Name,
		Admin:     project.Admin,
		Users:     []primitive.ObjectID{adminID},
		FileTree:  tree,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.projects.InsertOne(ctx, doc); err != nil {
		return translateMongo(err)
	}

	project.ID = doc.ID.Hex()
	project.CreatedAt = now
	project.UpdatedAt = now
	project.Messages = []models.Message{}
	if admin, err := s.GetUserByID(ctx, project.Admin.ID); err == nil {
		project.Users = []models.User{*admin}
	}
	return nil
}

func (s *MongoStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc projectDocument
	if err := s.projects.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	return s.toProject(ctx, &doc)
}

func (s *MongoStore) ListProjectsByMember(ctx context.Context, userID string) ([]models.Project, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Project{}, nil
	}

	opts := options.Find().
		SetProjection(bson.M{"messages": 0}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.projects.Find(ctx, bson.M{"users": oid}, opts)
	if err != nil {
		return nil, err
	}
	var docs []projectDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(docs))
	for i := range docs {
		p, err := s.toProject(ctx, &docs[i])
		if err != nil {
			return nil, err
		}
		p.Messages = nil
		projects = append(projects, *p)
	}
	return projects, nil
}

func (s *MongoStore) AddMembers(ctx context.Context, projectID string, userIDs []string) error {
	pid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return ErrNotFound
	}
	oids, err := objectIDs(userIDs)
	if err != nil {
		return err
	}

	result, err := s.projects.UpdateOne(ctx, bson.M{"_id": pid}, bson.M{
		"$addToSet": bson.M{"users": bson.M{"$each": oids}},
		"$set":      bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	pid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return false, nil
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	count, err := s.projects.CountDocuments(ctx, bson.M{"_id": pid, "users": uid})
	return count > 0, err
}

func (s *MongoStore) ReplaceFileTree(ctx context.Context, projectID string, tree models.FileTree) error {
	pid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return ErrNotFound
	}
	if tree == nil {
		tree = models.FileTree{}
	}
	doc, err := tree.ToDocument()
	if err != nil {
		return err
	}

	result, err := s.projects.UpdateOne(ctx, bson.M{"_id": pid}, bson.M{
		"$set": bson.M{"fileTree": doc, "updatedAt": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, projectID string, msg *models.Message) error {
	pid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return ErrNotFound
	}
	msg.ProjectID = projectID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	result, err := s.projects.UpdateOne(ctx, bson.M{"_id": pid}, bson.M{
		// queued writes may land out of order; keep the log sorted by send time
		"$push": bson.M{"messages": bson.M{
			"$each": []*models.Message{msg},
			"$sort": bson.M{"timestamp": 1},
		}},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteProject(ctx context.Context, projectID string) error {
	pid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return ErrNotFound
	}
	result, err := s.projects.DeleteOne(ctx, bson.M{"_id": pid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) toProject(ctx context.Context, doc *projectDocument) (*models.Project, error) {
	tree, err := decodeTree(doc.FileTree)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", doc.ID.Hex(), err)
	}

	users := []models.User{}
	if len(doc.Users) > 0 {
		users, err = s.findUsers(ctx, bson.M{"_id": bson.M{"$in": doc.Users}})
		if err != nil {
			return nil, err
		}
	}

	messages := doc.Messages
	if messages == nil {
		messages = []models.Message{}
	}
	for i := range messages {
		messages[i].ProjectID = doc.ID.Hex()
	}

	return &models.Project{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		Admin:     doc.Admin,
		Users:     users,
		FileTree:  tree,
		Messages:  messages,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func encodeTree(tree models.FileTree) (bson.Raw, error) {
	doc, err := tree.ToDocument()
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return bson.Raw(data), nil
}

// decodeTree goes through relaxed extended JSON, which for a tree of plain
// strings and sub documents is ordinary JSON.
func decodeTree(raw bson.Raw) (models.FileTree, error) {
	if len(raw) == 0 {
		return models.FileTree{}, nil
	}
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	return models.ParseFileTree(data)
}
