package sheetsync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/sheetsync"
	"github.com/realcrm/realty_backend/utils"
)

// fakeSource feeds the pipeline a fixed worksheet.
type fakeSource struct {
	headers []string
	rows    [][]string
}

func (s *fakeSource) Authenticate(ctx context.Context) error { return nil }

func (s *fakeSource) ReadAll(ctx context.Context) ([]string, [][]string, error) {
	return s.headers, s.rows, nil
}

func (s *fakeSource) ReadRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	return s.rows, nil
}

func TestSyncPipelineEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "realcrm_test")
	t.Setenv("DELETION_SYNC_ENABLED", "true")
	t.Setenv("DELETION_STRICT_VALIDATION", "false")
	t.Setenv("SYNC_BATCH_PAUSE_MS", "1")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	logger := config.GetLogger()

	// Store before the run: A1 with a stale phone, A2 in sync, A4 absent
	// from the sheet.
	seed := []models.Seller{
		{SellerNumber: "A1", Name: "Tanaka", Phone: "090-0000-0000", Status: models.SellerStatusProspect},
		{SellerNumber: "A2", Name: "Suzuki", Status: models.SellerStatusAssessing},
		{SellerNumber: "A4", Name: "Yamada", Status: models.SellerStatusCancelled},
	}
	for i := range seed {
		if err := db.WithContext(ctx).Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed seller %s: %v", seed[i].SellerNumber, err)
		}
	}
	property := models.Property{SellerId: seed[2].ID, PropertyNumber: "A4-P1", PropertyType: "Land"}
	if err := db.WithContext(ctx).Create(&property).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}

	source := &fakeSource{
		headers: []string{"Seller No.", "Name", "Phone"},
		rows: [][]string{
			{"A1", "Tanaka", "090-1111-2222"},
			{"A2", "Suzuki", ""},
			{"A3", "Sato", "080-3333-4444"},
		},
	}

	engine, err := sheetsync.NewEngine(db, source, logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run, err := engine.Scheduler.TriggerRun(ctx, sheetsync.RunOptions{TriggeredBy: models.SyncTriggeredManual})
	if err != nil {
		t.Fatalf("TriggerRun: %v", err)
	}
	if run.Status != models.SyncRunStatusSuccess {
		t.Fatalf("expected success run, got %s (errors=%d review=%d)", run.Status, run.ErrorCount, run.ManualReviewCount)
	}
	if run.Added != 1 || run.Updated != 1 || run.Deleted != 1 {
		t.Fatalf("expected 1/1/1 added/updated/deleted, got %d/%d/%d", run.Added, run.Updated, run.Deleted)
	}

	// A3 was inserted.
	created, err := models.GetSellerByNumber(ctx, db, "A3")
	if err != nil || created == nil {
		t.Fatalf("A3 not created: %v", err)
	}
	if created.Name != "Sato" || created.Phone != "080-3333-4444" {
		t.Fatalf("A3 fields wrong: %+v", created)
	}

	// A1's phone was updated in place.
	updated, err := models.GetSellerByNumber(ctx, db, "A1")
	if err != nil || updated == nil {
		t.Fatalf("A1 lookup: %v", err)
	}
	if updated.Phone != "090-1111-2222" {
		t.Fatalf("A1 phone not updated, got %q", updated.Phone)
	}
	if updated.Name != "Tanaka" {
		t.Fatalf("A1 name should be untouched, got %q", updated.Name)
	}

	// A4 was soft-deleted with an audit entry, dependents included.
	var gone models.Seller
	if err := db.WithContext(ctx).Where("seller_number = ?", "A4").Take(&gone).Error; err != nil {
		t.Fatalf("A4 row lookup: %v", err)
	}
	if gone.DeletedAt == nil {
		t.Fatal("A4 should be soft-deleted")
	}
	entry, err := models.GetOpenDeletionLog(ctx, db, "A4")
	if err != nil || entry == nil {
		t.Fatalf("A4 deletion log missing: %v", err)
	}
	if len(entry.SnapshotJSON) == 0 {
		t.Fatal("deletion log must carry a snapshot")
	}
	if entry.PropertiesDeleted != 1 {
		t.Fatalf("expected 1 cascaded property, got %d", entry.PropertiesDeleted)
	}
	var cascaded models.Property
	if err := db.WithContext(ctx).Where("id = ?", property.ID).Take(&cascaded).Error; err != nil {
		t.Fatalf("property lookup: %v", err)
	}
	if cascaded.DeletedAt == nil {
		t.Fatal("A4's property should be soft-deleted too")
	}

	var errorRows int64
	if err := db.WithContext(ctx).Model(&models.SheetSyncError{}).Where("sync_run_id = ?", run.ID).Count(&errorRows).Error; err != nil {
		t.Fatalf("count sync errors: %v", err)
	}
	if errorRows != 0 {
		t.Fatalf("expected no sync error rows, got %d", errorRows)
	}

	// The status endpoint reports the finished run and warms the redis
	// cache on the first hit.
	gin.SetMode(gin.TestMode)
	router := gin.New()
	engine.Handlers.Register(router.Group("/sync"))
	getStatus := func() sheetsync.StatusResponse {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint returned %d: %s", w.Code, w.Body.String())
		}
		var resp sheetsync.StatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode status response: %v", err)
		}
		return resp
	}

	status := getStatus()
	if status.LastRun == nil || status.LastRun.ID != run.ID {
		t.Fatalf("status should report run %d, got %+v", run.ID, status.LastRun)
	}
	var cachedRun sheetsync.SyncRunResponse
	if found, err := config.GetRedisObject("cache:sheet-sync:last-run", &cachedRun); err != nil || !found {
		t.Fatalf("status cache should be warm after a status call (found=%v err=%v)", found, err)
	}
	if cachedRun.ID != run.ID {
		t.Fatalf("cached run id %d, want %d", cachedRun.ID, run.ID)
	}

	// A second run over the same sheet must be a no-op for A1..A3, and must
	// not re-add or re-delete the soft-deleted A4.
	rerun, err := engine.Scheduler.TriggerRun(ctx, sheetsync.RunOptions{TriggeredBy: models.SyncTriggeredManual})
	if err != nil {
		t.Fatalf("second TriggerRun: %v", err)
	}
	if rerun.Added != 0 || rerun.Updated != 0 || rerun.Deleted != 0 {
		t.Fatalf("rerun should be a no-op, got %d/%d/%d", rerun.Added, rerun.Updated, rerun.Deleted)
	}

	// Finishing a run drops the cached status payload; the next status call
	// reads through and reports the newer run.
	if found, err := config.GetRedisObject("cache:sheet-sync:last-run", &cachedRun); err != nil || found {
		t.Fatalf("status cache should be dropped after a run finishes (found=%v err=%v)", found, err)
	}
	status = getStatus()
	if status.LastRun == nil || status.LastRun.ID != rerun.ID {
		t.Fatalf("status should report run %d after the rerun, got %+v", rerun.ID, status.LastRun)
	}

	// Operator recovery resurrects A4 and closes the audit entry.
	result, err := engine.Recovery.Recover(ctx, "A4", "tester")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if result.PropertiesRestored != 1 {
		t.Fatalf("expected 1 restored property, got %d", result.PropertiesRestored)
	}
	restored, err := models.GetSellerByNumber(ctx, db, "A4")
	if err != nil || restored == nil {
		t.Fatalf("A4 not restored: %v", err)
	}
	if entry, err := models.GetOpenDeletionLog(ctx, db, "A4"); err != nil || entry != nil {
		t.Fatalf("deletion log should be closed after recovery, got %+v (%v)", entry, err)
	}

	// Recovery is not replayable.
	if _, err := engine.Recovery.Recover(ctx, "A4", "tester"); err == nil {
		t.Fatal("second recovery should fail")
	} else if utils.KindOf(err) != utils.ErrorKindBusinessRule {
		t.Fatalf("expected business rule error, got %v", err)
	}
}

func TestTargetedResyncTouchesOnlyOneSeller(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "realcrm_test")
	t.Setenv("DELETION_SYNC_ENABLED", "true")
	t.Setenv("SYNC_BATCH_PAUSE_MS", "1")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	logger := config.GetLogger()

	stale := []models.Seller{
		{SellerNumber: "B1", Name: "Old Name", Status: models.SellerStatusProspect},
		{SellerNumber: "B2", Name: "Also Old", Status: models.SellerStatusProspect},
	}
	for i := range stale {
		if err := db.WithContext(ctx).Create(&stale[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	source := &fakeSource{
		headers: []string{"Seller No.", "Name"},
		rows: [][]string{
			{"B1", "New Name"},
			{"B2", "Should Not Apply"},
		},
	}

	engine, err := sheetsync.NewEngine(db, source, logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run, err := engine.Orchestrator.Run(ctx, sheetsync.RunOptions{
		TriggeredBy: models.SyncTriggeredResync,
		BusinessKey: "B1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Updated != 1 || run.Added != 0 || run.Deleted != 0 {
		t.Fatalf("targeted run expected 0/1/0, got %d/%d/%d", run.Added, run.Updated, run.Deleted)
	}

	b1, _ := models.GetSellerByNumber(ctx, db, "B1")
	if b1 == nil || b1.Name != "New Name" {
		t.Fatalf("B1 not updated: %+v", b1)
	}
	b2, _ := models.GetSellerByNumber(ctx, db, "B2")
	if b2 == nil || b2.Name != "Also Old" {
		t.Fatalf("B2 must be untouched by a targeted run: %+v", b2)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("realcrm-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("realcrm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=realcrm_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
