package workflow_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// End-to-end reconciliation tests against real MySQL + Redis in docker.
//
// Usage (requires Docker): INTEGRATION_TESTS=1 go test ./workflow -run Reconciliation -v

func TestReconciliationEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()
	logger := config.GetLogger()

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
	t.Setenv("DB_NAME", "easybudget_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	tenant, err := models.CreateTenant(ctx, &models.NewTenant{Name: "Integration Tenant"})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	tenantId := tenant.ID.String()

	provider, err := models.CreateProvider(ctx, tenantId, &models.NewProvider{Name: "Integration Provider"})
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	providerId := provider.ID.String()

	planA, err := models.CreatePlan(ctx, &models.NewPlan{Slug: "basic", Name: "Basic", Price: decimal.NewFromInt(990)})
	if err != nil {
		t.Fatalf("CreatePlan basic: %v", err)
	}
	planB, err := models.CreatePlan(ctx, &models.NewPlan{Slug: "professional", Name: "Professional", Price: decimal.NewFromInt(1990)})
	if err != nil {
		t.Fatalf("CreatePlan professional: %v", err)
	}

	// Existing active subscription on plan A.
	now := time.Now().UTC()
	end := models.SubscriptionEndDate(now)
	subA := models.PlanSubscription{
		TenantId:   tenantId,
		ProviderId: providerId,
		PlanId:     planA.ID,
		Status:     models.SubscriptionStatusActive,
		PricePaid:  planA.Price,
		StartDate:  now,
		EndDate:    &end,
	}
	if err := db.Create(&subA).Error; err != nil {
		t.Fatalf("seed active subscription: %v", err)
	}

	// New pending subscription on plan B, requested through the public op.
	subB, err := workflow.RequestSubscription(ctx, tenantId, providerId, &models.NewPlanSubscription{PlanId: planB.ID})
	if err != nil {
		t.Fatalf("RequestSubscription: %v", err)
	}
	if subB.Status != models.SubscriptionStatusPending {
		t.Fatalf("paid plan request should start pending, got %q", subB.Status)
	}

	processPayment := func(ev *models.PaymentEvent) *workflow.PaymentOutcome {
		t.Helper()
		var outcome *workflow.PaymentOutcome
		runErr := runEventTx(db, tenantId, func(tx *gorm.DB) error {
			var err error
			outcome, err = workflow.ProcessPaymentEvent(ctx, tx, logger, tenantId, providerId, ev)
			return err
		})
		if runErr != nil {
			t.Fatalf("ProcessPaymentEvent: %v", runErr)
		}
		return outcome
	}

	// Scenario 1: approved payment settles the pending plan-B subscription and
	// cancels the previously active plan-A subscription in one transaction.
	approved := &models.PaymentEvent{
		ExternalId:             "pay_001",
		VendorStatus:           "approved",
		PaymentMethod:          "credit_card",
		PlanSubscriptionId:     subB.ID,
		LastPlanSubscriptionId: subA.ID,
		PlanId:                 planB.ID,
		TransactionAmount:      planB.Price,
	}
	out := processPayment(approved)
	if out.AlreadyExists {
		t.Fatalf("first delivery should not be a duplicate")
	}
	firstPaymentRowId := out.Payment.ID

	reloadSub := func(id int) models.PlanSubscription {
		t.Helper()
		var s models.PlanSubscription
		if err := db.First(&s, id).Error; err != nil {
			t.Fatalf("reload subscription %d: %v", id, err)
		}
		return s
	}

	gotB := reloadSub(subB.ID)
	if gotB.Status != models.SubscriptionStatusActive {
		t.Fatalf("settled subscription status = %q, want active", gotB.Status)
	}
	if gotB.PaymentId == nil || *gotB.PaymentId != "pay_001" {
		t.Fatalf("settled subscription payment_id = %v, want pay_001", gotB.PaymentId)
	}
	if gotB.NextPaymentDate == nil || gotB.EndDate == nil {
		t.Fatalf("settled subscription should carry next payment and end dates")
	}
	gotA := reloadSub(subA.ID)
	if gotA.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("superseded subscription status = %q, want canceled", gotA.Status)
	}

	var activeCount int64
	if err := db.Model(&models.PlanSubscription{}).
		Where("tenant_id = ? AND provider_id = ? AND status = ?", tenantId, providerId, models.SubscriptionStatusActive).
		Count(&activeCount).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if activeCount != 1 {
		t.Fatalf("active subscriptions = %d, want exactly 1", activeCount)
	}

	// Scenario 2: identical redelivery is a pure no-op on the same row.
	out2 := processPayment(approved)
	if !out2.AlreadyExists {
		t.Fatalf("redelivery should be reported as already existing")
	}
	if out2.Payment.ID != firstPaymentRowId {
		t.Fatalf("redelivery returned row %d, want %d", out2.Payment.ID, firstPaymentRowId)
	}
	if got := reloadSub(subA.ID); got.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("superseded subscription flipped on redelivery: %q", got.Status)
	}
	if got := reloadSub(subB.ID); got.Status != models.SubscriptionStatusActive {
		t.Fatalf("active subscription regressed on redelivery: %q", got.Status)
	}

	// Scenario 3: a pending-mapped payment only populates metadata on a
	// pending subscription; status does not move.
	subC := models.PlanSubscription{
		TenantId:   tenantId,
		ProviderId: providerId,
		PlanId:     planA.ID,
		Status:     models.SubscriptionStatusPending,
		PricePaid:  planA.Price,
		StartDate:  now,
	}
	if err := db.Create(&subC).Error; err != nil {
		t.Fatalf("seed pending subscription: %v", err)
	}
	processPayment(&models.PaymentEvent{
		ExternalId:         "pay_002",
		VendorStatus:       "in_process",
		PaymentMethod:      "boleto",
		PlanSubscriptionId: subC.ID,
		TransactionAmount:  planA.Price,
	})
	gotC := reloadSub(subC.ID)
	if gotC.Status != models.SubscriptionStatusPending {
		t.Fatalf("pending subscription status = %q, want pending", gotC.Status)
	}
	if gotC.PaymentId == nil || *gotC.PaymentId != "pay_002" {
		t.Fatalf("pending subscription payment_id = %v, want pay_002", gotC.PaymentId)
	}
	if gotC.PaymentMethod != "boleto" {
		t.Fatalf("pending subscription payment_method = %q, want boleto", gotC.PaymentMethod)
	}

	// Scenario 4: pending-mapped payment on a past-due invoice writes overdue.
	invoice, err := models.CreateInvoice(ctx, tenantId, &models.NewInvoice{
		Code:              "inv_5",
		TransactionAmount: decimal.NewFromInt(500),
		DueDate:           now.AddDate(0, 0, -1),
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	err = runEventTx(db, tenantId, func(tx *gorm.DB) error {
		_, err := workflow.ProcessInvoicePaymentEvent(ctx, tx, logger, tenantId, &models.InvoicePaymentEvent{
			InvoiceCode:       "inv_5",
			ExternalId:        "pay_003",
			VendorStatus:      "pending",
			PaymentMethod:     "pix",
			TransactionAmount: decimal.NewFromInt(500),
		})
		return err
	})
	if err != nil {
		t.Fatalf("ProcessInvoicePaymentEvent: %v", err)
	}
	var gotInvoice models.Invoice
	if err := db.First(&gotInvoice, invoice.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	overdue, err := models.GetInvoiceStatusBySlug(db, models.InvoiceStatusSlugOverdue)
	if err != nil {
		t.Fatalf("lookup overdue status: %v", err)
	}
	if gotInvoice.InvoiceStatusId != overdue.ID {
		t.Fatalf("invoice status id = %d, want overdue (%d)", gotInvoice.InvoiceStatusId, overdue.ID)
	}

	// Scenario 5: identical merchant order redelivery is a no-op on the same row.
	orderEv := &models.MerchantOrderEvent{
		ExternalId:   "mo_7",
		VendorStatus: "opened",
		OrderStatus:  "payment_in_process",
		TotalAmount:  planB.Price,
	}
	var firstOrderId int
	err = runEventTx(db, tenantId, func(tx *gorm.DB) error {
		res, err := workflow.ProcessMerchantOrderEvent(ctx, tx, logger, tenantId, providerId, orderEv)
		if err == nil {
			firstOrderId = res.Order.ID
		}
		return err
	})
	if err != nil {
		t.Fatalf("ProcessMerchantOrderEvent: %v", err)
	}
	err = runEventTx(db, tenantId, func(tx *gorm.DB) error {
		res, err := workflow.ProcessMerchantOrderEvent(ctx, tx, logger, tenantId, providerId, orderEv)
		if err != nil {
			return err
		}
		if !res.AlreadyExists {
			t.Errorf("order redelivery should be a no-op")
		}
		if res.Order.ID != firstOrderId {
			t.Errorf("order redelivery returned row %d, want %d", res.Order.ID, firstOrderId)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessMerchantOrderEvent redelivery: %v", err)
	}

	// Outbox records were written inside the event transactions.
	var notifCount int64
	if err := db.Model(&models.NotificationRecord{}).
		Where("tenant_id = ? AND publish_status = ?", tenantId, models.NotificationPublishStatusPending).
		Count(&notifCount).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notifCount == 0 {
		t.Fatalf("expected pending notification records after settlements")
	}
}

func TestWebhookEventDedupe(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "easybudget_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const (
		tenantId = "tenant-dedupe"
		handler  = "payment_processor_webhook:payment"
		reqId    = "req-100"
	)

	skip, err := workflow.BeginWebhookEvent(db, tenantId, handler, reqId)
	if err != nil || skip {
		t.Fatalf("first BeginWebhookEvent = (skip=%v, err=%v), want fresh start", skip, err)
	}

	// Same delivery while the first is in flight: in-progress error.
	if _, err := workflow.BeginWebhookEvent(db, tenantId, handler, reqId); err != workflow.ErrWebhookEventInProgress {
		t.Fatalf("concurrent BeginWebhookEvent err = %v, want ErrWebhookEventInProgress", err)
	}

	if err := workflow.MarkWebhookEventSucceeded(db, tenantId, handler, reqId); err != nil {
		t.Fatalf("MarkWebhookEventSucceeded: %v", err)
	}

	// After success, redelivery is skipped.
	skip, err = workflow.BeginWebhookEvent(db, tenantId, handler, reqId)
	if err != nil || !skip {
		t.Fatalf("post-success BeginWebhookEvent = (skip=%v, err=%v), want skip", skip, err)
	}

	// A failed delivery is taken over on redelivery.
	const reqId2 = "req-101"
	if _, err := workflow.BeginWebhookEvent(db, tenantId, handler, reqId2); err != nil {
		t.Fatalf("BeginWebhookEvent req-101: %v", err)
	}
	if err := workflow.MarkWebhookEventFailed(db, tenantId, handler, reqId2, fmt.Errorf("boom")); err != nil {
		t.Fatalf("MarkWebhookEventFailed: %v", err)
	}
	skip, err = workflow.BeginWebhookEvent(db, tenantId, handler, reqId2)
	if err != nil || skip {
		t.Fatalf("redelivery after failure = (skip=%v, err=%v), want takeover", skip, err)
	}
}

func TestTenantReconcileLockRelease(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "easybudget_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const tenantId = "tenant-lock-release"
	lockName := "subrecon:" + tenantId

	// GET_LOCK is re-entrant per connection, so a leaked lock is invisible to
	// the pool that leaked it. Probe from a dedicated second connection.
	probe, err := sql.Open("mysql", fmt.Sprintf("root:testpw@tcp(127.0.0.1:%s)/easybudget_test", mysqlPort))
	if err != nil {
		t.Fatalf("open probe connection: %v", err)
	}
	defer probe.Close()

	lockIsFree := func() bool {
		t.Helper()
		var free int
		if err := probe.QueryRow("SELECT IS_FREE_LOCK(?)", lockName).Scan(&free); err != nil {
			t.Fatalf("IS_FREE_LOCK: %v", err)
		}
		return free == 1
	}

	// Commit path.
	if err := runEventTx(db, tenantId, func(tx *gorm.DB) error {
		return tx.Exec("SELECT 1").Error
	}); err != nil {
		t.Fatalf("runEventTx: %v", err)
	}
	if !lockIsFree() {
		t.Fatalf("advisory lock still held after committed event transaction")
	}

	// Rollback path.
	boom := errors.New("boom")
	if err := runEventTx(db, tenantId, func(tx *gorm.DB) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("runEventTx err = %v, want boom", err)
	}
	if !lockIsFree() {
		t.Fatalf("advisory lock still held after rolled-back event transaction")
	}

	// Two deliveries for the same tenant must serialize and finish; a leaked
	// lock makes the second one block the full GET_LOCK timeout and fail.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runEventTx(db, tenantId, func(tx *gorm.DB) error {
				return tx.Exec("SELECT SLEEP(1)").Error
			})
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatalf("concurrent event transactions did not finish")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent runEventTx: %v", err)
		}
	}
	if !lockIsFree() {
		t.Fatalf("advisory lock still held after concurrent event transactions")
	}
}

// runEventTx mirrors the ingress transaction shape: the advisory lock release
// runs inside the closure, on the live transaction, before commit or rollback.
func runEventTx(db *gorm.DB, tenantId string, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := workflow.AcquireTenantReconcileLock(tx, tenantId); err != nil {
			return err
		}
		defer workflow.ReleaseTenantReconcileLock(tx, tenantId)
		return fn(tx)
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("billing-test-redis-%d", time.Now().UnixNano())
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
	// wait until ready
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
	name := fmt.Sprintf("billing-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=easybudget_test",
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
	// wait until ready
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
	// Example: "127.0.0.1:49154\n"
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
