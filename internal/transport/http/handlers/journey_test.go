package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"payhub/internal/app/server"
	"payhub/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

func testConfig(t *testing.T, dbURL string) config.Config {
	t.Helper()
	return config.Config{
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		DataEncryptionKey:  "0123456789abcdef0123456789abcdef",
		Environment:        "test",
		StorageDir:         t.TempDir(),
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		EmailFrom:          "no-reply@test.local",
		RunMigrations:      true,
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		MaxLogoBytes:       2097152,
		RateLimitPerMinute: 1000,
		SessionTTL:         time.Hour,
	}
}

func TestPayrollJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	companyName := fmt.Sprintf("Journey Co %d", time.Now().UnixNano())
	companyID := createCompany(t, client, ts.URL, token, companyName)

	employeeID := createEmployee(t, client, ts.URL, token, companyID)

	runID, payslipID := createPayRun(t, client, ts.URL, token, companyID)
	if payslipID == "" {
		t.Fatal("expected a payslip for the active employee")
	}

	status := approvePayRun(t, client, ts.URL, token, runID)
	if status != "APPROVED" {
		t.Fatalf("expected pay run status APPROVED, got %s", status)
	}

	paymentID := createPayment(t, client, ts.URL, token, payslipID, 100000)
	if paymentID == "" {
		t.Fatal("expected payment id")
	}

	slip := getPayslip(t, client, ts.URL, token, payslipID)
	if slip["paymentStatus"] != "PARTIAL" {
		t.Fatalf("expected payslip status PARTIAL after partial payment, got %v", slip["paymentStatus"])
	}

	// The payment register export reflects the recorded payment.
	exportStatus, contentType, csvBody := getRaw(t, client, ts.URL+"/api/v1/reports/payments/export?companyId="+companyID, token)
	if exportStatus != http.StatusOK {
		t.Fatalf("expected 200 from payments export, got %d: %s", exportStatus, csvBody)
	}
	if !strings.HasPrefix(contentType, "text/csv") {
		t.Fatalf("expected text/csv export, got %q", contentType)
	}
	if !strings.HasPrefix(csvBody, "employee,amount,method,reference,paidAt") {
		t.Fatalf("expected csv header row, got %q", csvBody)
	}
	if !strings.Contains(csvBody, "Journey Tester") {
		t.Fatalf("expected exported payment row for the employee, got %q", csvBody)
	}

	// A malformed paidAt is a field-scoped validation failure, not silently
	// replaced by the current time.
	badDate := postJSONStatus(t, client, ts.URL+"/api/v1/payments", token, map[string]any{
		"payslipId":     payslipID,
		"amount":        1000,
		"paymentMethod": "CASH",
		"paidAt":        "not-a-date",
	}, http.StatusBadRequest)
	if badDate.Error == nil {
		t.Fatal("expected validation error for malformed paidAt")
	}

	closeStatus := closePayRun(t, client, ts.URL, token, runID)
	if closeStatus != "CLOSED" {
		t.Fatalf("expected pay run status CLOSED, got %s", closeStatus)
	}

	// Closed runs refuse further payments.
	resp := postJSONStatus(t, client, ts.URL+"/api/v1/payments", token, map[string]any{
		"payslipId":     payslipID,
		"amount":        50000,
		"paymentMethod": "CASH",
	}, http.StatusBadRequest)
	if resp.Error == nil {
		t.Fatal("expected error payload for payment against closed run")
	}

	// A closed run cannot be approved again.
	reApprove := doJSON(t, client, http.MethodPatch, ts.URL+"/api/v1/payruns/"+runID+"/approve", token, "", nil, http.StatusBadRequest)
	if reApprove.Error == nil {
		t.Fatal("expected error payload for approving a closed run")
	}

	_ = employeeID
}

func TestConcurrentPaymentsRespectBalance(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	companyID := createCompany(t, client, ts.URL, token, fmt.Sprintf("Race Co %d", time.Now().UnixNano()))
	createEmployee(t, client, ts.URL, token, companyID)
	runID, payslipID := createPayRun(t, client, ts.URL, token, companyID)
	approvePayRun(t, client, ts.URL, token, runID)

	// Net salary is 250000; two simultaneous 150000 payments would overpay,
	// so exactly one may land.
	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := json.Marshal(map[string]any{
				"payslipId":     payslipID,
				"amount":        150000,
				"paymentMethod": "CASH",
			})
			if err != nil {
				return
			}
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/payments", bytes.NewReader(raw))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := client.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range statuses {
		if code == http.StatusCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one payment to land, got statuses %v", statuses)
	}

	slip := getPayslip(t, client, ts.URL, token, payslipID)
	paid, _ := slip["paidAmount"].(float64)
	net, _ := slip["netSalary"].(float64)
	if paid != 150000 {
		t.Fatalf("expected paid amount 150000, got %v", paid)
	}
	if paid > net {
		t.Fatalf("paid amount %v exceeds net salary %v", paid, net)
	}
}

func TestPaymentIdempotencyReplay(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	companyID := createCompany(t, client, ts.URL, token, fmt.Sprintf("Replay Co %d", time.Now().UnixNano()))
	createEmployee(t, client, ts.URL, token, companyID)
	runID, payslipID := createPayRun(t, client, ts.URL, token, companyID)
	approvePayRun(t, client, ts.URL, token, runID)

	body := map[string]any{
		"payslipId":     payslipID,
		"amount":        50000,
		"paymentMethod": "BANK_TRANSFER",
		"reference":     "TRX-001",
	}
	key := fmt.Sprintf("replay-%d", time.Now().UnixNano())

	first := postJSONWithKey(t, client, ts.URL+"/api/v1/payments", token, key, body)
	second := postJSONWithKey(t, client, ts.URL+"/api/v1/payments", token, key, body)

	var firstPayload, secondPayload map[string]string
	if err := json.Unmarshal(first.Data, &firstPayload); err != nil {
		t.Fatalf("failed to decode first payment response: %v", err)
	}
	if err := json.Unmarshal(second.Data, &secondPayload); err != nil {
		t.Fatalf("failed to decode replay response: %v", err)
	}
	if firstPayload["id"] == "" || firstPayload["id"] != secondPayload["id"] {
		t.Fatalf("expected replay to return the original payment id, got %q and %q", firstPayload["id"], secondPayload["id"])
	}

	slip := getPayslip(t, client, ts.URL, token, payslipID)
	if paid, _ := slip["paidAmount"].(float64); paid != 50000 {
		t.Fatalf("expected paid amount 50000 after replay, got %v", slip["paidAmount"])
	}
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func createCompany(t *testing.T, client *http.Client, baseURL, token, name string) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", name)
	_ = mw.WriteField("address", "12 Test Street")
	_ = mw.WriteField("currency", "XOF")
	_ = mw.WriteField("periodType", "MONTHLY")
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to build form: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/company", &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode company response: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("failed to decode company payload: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected company id")
	}
	return id
}

func createEmployee(t *testing.T, client *http.Client, baseURL, token, companyID string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/employees", token, map[string]any{
		"companyId":    companyID,
		"fullName":     "Journey Tester",
		"position":     "Accountant",
		"contractType": "FIXED",
		"rateOrSalary": 250000,
		"bankDetails":  "CI001 0001 123456789",
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode employee response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected employee id")
	}
	return id
}

func createPayRun(t *testing.T, client *http.Client, baseURL, token, companyID string) (string, string) {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/payruns", token, map[string]any{
		"companyId":  companyID,
		"name":       "January 2026",
		"periodType": "MONTHLY",
		"startDate":  "2026-01-01",
		"endDate":    "2026-01-31",
	})
	var payload struct {
		ID       string `json:"id"`
		Payslips []struct {
			ID string `json:"id"`
		} `json:"payslips"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode pay run response: %v", err)
	}
	if payload.ID == "" {
		t.Fatal("expected pay run id")
	}
	var payslipID string
	if len(payload.Payslips) > 0 {
		payslipID = payload.Payslips[0].ID
	}
	return payload.ID, payslipID
}

func approvePayRun(t *testing.T, client *http.Client, baseURL, token, runID string) string {
	t.Helper()
	resp := patchJSON(t, client, baseURL+"/api/v1/payruns/"+runID+"/approve", token)
	var payload map[string]string
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode approve response: %v", err)
	}
	return payload["status"]
}

func closePayRun(t *testing.T, client *http.Client, baseURL, token, runID string) string {
	t.Helper()
	resp := patchJSON(t, client, baseURL+"/api/v1/payruns/"+runID+"/close", token)
	var payload map[string]string
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode close response: %v", err)
	}
	return payload["status"]
}

func createPayment(t *testing.T, client *http.Client, baseURL, token, payslipID string, amount float64) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/payments", token, map[string]any{
		"payslipId":     payslipID,
		"amount":        amount,
		"paymentMethod": "CASH",
	})
	var payload map[string]string
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode payment response: %v", err)
	}
	return payload["id"]
}

func getPayslip(t *testing.T, client *http.Client, baseURL, token, payslipID string) map[string]any {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/payslips/"+payslipID, token)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode payslip response: %v", err)
	}
	return payload
}

// getRaw fetches a non-JSON endpoint and returns status, content type and
// body as-is.
func getRaw(t *testing.T, client *http.Client, url, token string) (int, string, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(raw)
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPost, url, token, "", body, 0)
}

func postJSONWithKey(t *testing.T, client *http.Client, url, token, idempotencyKey string, body any) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPost, url, token, idempotencyKey, body, 0)
}

func postJSONStatus(t *testing.T, client *http.Client, url, token string, body any, want int) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPost, url, token, "", body, want)
}

func patchJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPatch, url, token, "", nil, 0)
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodGet, url, token, "", nil, 0)
}

func doJSON(t *testing.T, client *http.Client, method, url, token, idempotencyKey string, body any, wantStatus int) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if wantStatus != 0 {
		if resp.StatusCode != wantStatus {
			t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, string(raw))
		}
		return env
	}
	if resp.StatusCode >= 400 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return env
}
