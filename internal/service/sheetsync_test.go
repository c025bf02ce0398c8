package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeSheet 模拟 Sheets values 接口，只保存数据行（从第 2 行开始）
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]interface{}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := strings.Index(r.URL.Path, "/values/")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rng := r.URL.Path[idx+len("/values/"):]

	switch {
	case r.Method == http.MethodGet:
		values := f.rows
		if strings.HasSuffix(rng, "A2:A") {
			values = make([][]interface{}, len(f.rows))
			for i, row := range f.rows {
				values[i] = row[:1]
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"range": rng, "values": values})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	case r.Method == http.MethodPut:
		var row int
		if _, err := fmt.Sscanf(rng[strings.Index(rng, "!A")+2:], "%d", &row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows[row-2] = body.Values[0]
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func newTestSheetSync(t *testing.T) (*SheetSyncService, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSheetSyncServiceWithOptions(context.Background(), "sheet-id", "Licenses",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return s, fake
}

func TestSheetSyncDisabled(t *testing.T) {
	s, err := NewSheetSyncService(false, "", "", "")
	require.NoError(t, err)
	assert.Nil(t, s)

	// nil 服务的所有方法都是空操作
	assert.NoError(t, s.SyncLicense(context.Background(), &model.License{}))
	assert.NoError(t, s.BatchSyncLicenses(context.Background(), []*model.License{{}}))
	synced, err := s.SyncAll(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, synced)
	n, err := s.ImportRevocations(context.Background(), nil, 0)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSheetSyncLicense(t *testing.T) {
	s, fake := newTestSheetSync(t)
	ctx := context.Background()

	rec := &model.License{
		PublicID:   "lic-1",
		License:    "AAAAA-BBBBB",
		Brand:      "ACME",
		Status:     model.LicenseStatusActive,
		ExpireDays: 30,
		ExpiresAt:  time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, s.SyncLicense(ctx, rec))
	require.Len(t, fake.rows, 1)
	assert.Equal(t, "lic-1", fake.rows[0][0])
	assert.Equal(t, model.LicenseStatusActive, fake.rows[0][4])

	// 同一编号更新原有行
	rec.Status = model.LicenseStatusRevoked
	require.NoError(t, s.SyncLicense(ctx, rec))
	require.Len(t, fake.rows, 1)
	assert.Equal(t, model.LicenseStatusRevoked, fake.rows[0][4])

	require.NoError(t, s.BatchSyncLicenses(ctx, []*model.License{{PublicID: "lic-2"}, {PublicID: "lic-3"}}))
	assert.Len(t, fake.rows, 3)

	// 已过期的有效注册码显示为 expired
	expired := &model.License{PublicID: "lic-4", Status: model.LicenseStatusActive, ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.SyncLicense(ctx, expired))
	require.Len(t, fake.rows, 4)
	assert.Equal(t, model.LicenseStatusExpired, fake.rows[3][4])
}

func TestSheetSyncAll(t *testing.T) {
	a := setupService(t, NewDBRevocationList())
	s, fake := newTestSheetSync(t)
	ctx := context.Background()

	var ids []string
	for _, fp := range []string{"FP-ONE", "FP-TWO", "FP-THREE"} {
		rec, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: fp, ExpireDays: intPtr(30)}, 1)
		require.NoError(t, err)
		ids = append(ids, rec.PublicID)
	}
	// 第一条已经在工作表中
	var first model.License
	require.NoError(t, database.DB.Where("public_id = ?", ids[0]).First(&first).Error)
	require.NoError(t, s.SyncLicense(ctx, &first))

	n, err := s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, fake.rows, 3)
	for i, id := range ids {
		assert.Equal(t, id, fake.rows[i][0])
	}

	n, err = s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fake.rows, 3)
}

func TestSheetImportRevocations(t *testing.T) {
	store := NewDBRevocationList()
	a := setupService(t, store)
	s, fake := newTestSheetSync(t)
	ctx := context.Background()

	keep, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: "FP-KEEP", ExpireDays: intPtr(30)}, 1)
	require.NoError(t, err)
	drop, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: "FP-DROP", ExpireDays: intPtr(30)}, 1)
	require.NoError(t, err)
	require.NoError(t, s.BatchSyncLicenses(ctx, []*model.License{keep, drop}))

	// 在工作表里手工标记吊销，外加一行不完整数据和一行未知编号
	fake.rows[1][4] = model.LicenseStatusRevoked
	fake.rows = append(fake.rows, []interface{}{"short"}, []interface{}{"unknown", "", "", "", model.LicenseStatusRevoked})

	n, err := s.ImportRevocations(ctx, store, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, license.VerdictValid, a.VerifyLicense(keep.License, "FP-KEEP"))
	assert.Equal(t, license.VerdictRevoked, a.VerifyLicense(drop.License, "FP-DROP"))

	var stored model.License
	require.NoError(t, database.DB.First(&stored, drop.ID).Error)
	assert.Equal(t, model.LicenseStatusRevoked, stored.Status)

	// 再次导入不会重复吊销
	n, err = s.ImportRevocations(ctx, store, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}
