package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/model"
	"machine-license/internal/service"
	"machine-license/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	app        *fiber.App
	authority  *license.Authority
	adminToken string
	userToken  string
}

func setupTestApp(t *testing.T, opts RouteOptions) *testEnv {
	t.Helper()
	return setupTestAppWithPolicy(t, opts, license.DefaultPolicy())
}

func setupTestAppWithPolicy(t *testing.T, opts RouteOptions, policy license.Policy) *testEnv {
	t.Helper()
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)
	util.InitJWT("test-secret", time.Hour)
	service.PasswordCost = bcrypt.MinCost

	signer, err := license.GenerateSigner()
	require.NoError(t, err)
	store := service.NewDBRevocationList()
	a, err := license.NewAuthority(policy, signer, license.WithRevocationChecker(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	InitLicenseService(a, store)
	SetSheetSync(nil)

	app := fiber.New()
	SetupRoutes(app, opts)

	return &testEnv{
		app:        app,
		authority:  a,
		adminToken: createTestUser(t, "admin", model.RoleAdmin),
		userToken:  createTestUser(t, "alice", model.RoleUser),
	}
}

func createTestUser(t *testing.T, username, role string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		Username: username,
		Password: string(hashed),
		Email:    username + "@example.com",
		Role:     role,
		Status:   "active",
	}
	require.NoError(t, database.DB.Create(user).Error)
	token, err := util.GenerateToken(user.ID)
	require.NoError(t, err)
	return token
}

// do 发送请求并解码 JSON 响应
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}
