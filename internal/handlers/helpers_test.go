package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/middleware"
	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/internal/store"
	"github.com/huangang/codecollab/backend/internal/utils"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCompleter answers every prompt with a fixed reply after delay.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	delay   time.Duration
	prompts []string
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.reply, nil
}

func (f *fakeCompleter) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type testEnv struct {
	router      *gin.Engine
	store       store.Store
	auth        *services.AuthService
	projects    *services.ProjectService
	hub         *services.Hub
	interceptor *services.AIInterceptor
	ai          *fakeCompleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, gormlogger.Silent)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	ai := &fakeCompleter{reply: `{"text":"here is a summary"}`, delay: 20 * time.Millisecond}
	auth := services.NewAuthService(st, services.NewMemoryBlacklist(), utils.NewTokenSigner("test-secret", 24), nil)
	projects := services.NewProjectService(st)

	queue := services.NewSyncQueue()
	queue.SetProcessor(services.PersistMessageProcessor(projects))
	interceptor := services.NewAIInterceptor("@ai", ai, time.Second)
	hub := services.NewHub(
		services.WithInterceptor(interceptor),
		services.WithSink(services.NewQueueSink(queue)),
	)

	env := &testEnv{
		store:       st,
		auth:        auth,
		projects:    projects,
		hub:         hub,
		interceptor: interceptor,
		ai:          ai,
	}
	env.router = env.buildRouter()

	t.Cleanup(func() {
		hub.Close()
		interceptor.Close()
		_ = st.Close(context.Background())
	})
	return env
}

func (e *testEnv) buildRouter() *gin.Engine {
	userHandler := NewUserHandler(e.auth)
	projectHandler := NewProjectHandler(e.projects)
	aiHandler := NewAIHandler(e.ai)
	collabHandler := NewCollabHandler(e.auth, e.projects, e.hub, &config.RealtimeConfig{MaxMessageBytes: 4096})
	healthHandler := NewHealthHandler(e.store, e.auth, services.NewSyncQueue(), e.hub)

	r := gin.New()
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/ws", collabHandler.ServeWS)
	r.GET("/ai/get-result", aiHandler.GetResult)
	r.POST("/users/register", userHandler.Register)
	r.POST("/users/login", userHandler.Login)

	protected := r.Group("", middleware.AuthRequired(e.auth))
	protected.GET("/users/logout", userHandler.Logout)
	protected.GET("/users/profile", userHandler.Profile)
	protected.GET("/users/me", userHandler.Me)
	protected.GET("/users/all", userHandler.All)
	protected.POST("/projects/create", projectHandler.Create)
	protected.GET("/projects/all", projectHandler.All)
	protected.GET("/projects/get-project/:projectId", projectHandler.Get)
	protected.PUT("/projects/add-user", projectHandler.AddUsers)
	protected.PUT("/projects/update-file-tree", projectHandler.UpdateFileTree)
	protected.POST("/projects/save-message", projectHandler.SaveMessage)
	protected.DELETE("/projects/:projectId", projectHandler.Delete)
	return r
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type session struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (e *testEnv) register(t *testing.T, name, email string) session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users/register", "", gin.H{
		"name":     name,
		"email":    email,
		"password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", email, w.Code, w.Body.String())
	}
	var s session
	decodeBody(t, w, &s)
	return s
}

func (e *testEnv) createProject(t *testing.T, token, name string) models.Project {
	t.Helper()
	w := e.do(t, http.MethodPost, "/projects/create", token, gin.H{"name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project %s: status = %d, body = %s", name, w.Code, w.Body.String())
	}
	var p models.Project
	decodeBody(t, w, &p)
	return p
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
}

type errorBody struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status, code int) errorBody {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, expected %d (body %s)", w.Code, status, w.Body.String())
	}
	var body errorBody
	decodeBody(t, w, &body)
	if body.Code != code {
		t.Errorf("code = %d, expected %d", body.Code, code)
	}
	return body
}
