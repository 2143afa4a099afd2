package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"ecycle/internal/api"
	"ecycle/internal/auth"
	"ecycle/internal/db"
	"ecycle/internal/model"
	"ecycle/internal/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (*httptest.Server, *db.Pool, func()) {
	dbPool, err := db.NewPool(TestDatabaseURL())
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{
		Addr: TestRedisAddr(),
	})

	logger, _ := zap.NewDevelopment()
	bus := pubsub.New(rdb, logger)

	// Mount API routes at /v1 like the real server does
	r := chi.NewRouter()
	r.Mount("/v1", api.Routes(api.Dependencies{
		DB:  dbPool,
		Bus: bus,
		Hub: nil,
		Log: logger,
		JWT: auth.NewJWTConfig(os.Getenv("JWT_SECRET")),
	}))

	server := httptest.NewServer(r)

	cleanup := func() {
		server.Close()
		dbPool.Close()
		rdb.Close()
	}

	return server, dbPool, cleanup
}

func migrateAndClean(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer testDB.Close()

	if err := RunMigrations(testDB); err != nil {
		t.Logf("Migration error (may be OK if already migrated): %v", err)
	}
	require.NoError(t, CleanupTestDB(testDB))
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		out = nil
	}
	return resp, out
}

func TestPickupCreditsPoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)

	resp, created := doJSON(t, "POST", server.URL+"/v1/pickups", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"items":    "old laptops",
			"quantity": 3,
			"address":  "12 Recycle Way",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(model.StatusPending), created["status"])
	assert.Equal(t, float64(3), created["quantity"])

	resp, me := doJSON(t, "GET", server.URL+"/v1/me", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(30), me["points"])
}

func TestRepairAssignmentRace(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)
	techA := TokenFor("tech-a", model.RoleTechnician)
	techB := TokenFor("tech-b", model.RoleTechnician)

	resp, created := doJSON(t, "POST", server.URL+"/v1/repairs", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"deviceType": "laptop",
			"issue":      "screen flickers",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	repairID := created["id"].(string)

	// First accept wins and records the handler.
	resp, accepted := doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/accept", techA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StatusAssigned), accepted["status"])
	assert.Equal(t, "tech-a", accepted["handlerId"])

	// A second technician cannot take it over.
	resp, errBody := doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/accept", techB, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "unauthorized", errBody["code"])

	// The record is unchanged.
	resp, fetched := doJSON(t, "GET", server.URL+"/v1/repairs/"+repairID, userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tech-a", fetched["handlerId"])
	assert.Equal(t, string(model.StatusAssigned), fetched["status"])
}

func TestCompletedRepairIsImmutable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)
	techToken := TokenFor("tech-a", model.RoleTechnician)

	resp, created := doJSON(t, "POST", server.URL+"/v1/repairs", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"deviceType": "phone",
			"issue":      "battery drains fast",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	repairID := created["id"].(string)

	resp, _ = doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/accept", techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, status := range []model.Status{model.StatusDiagnosing, model.StatusRepairing, model.StatusCompleted} {
		resp, _ = doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/status", techToken, map[string]interface{}{
			"status": status,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "advance to %s", status)
	}

	// Terminal requests reject estimate edits.
	resp, errBody := doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/estimate", techToken, map[string]interface{}{
		"field": "cost",
		"value": 49.9,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "terminal_state", errBody["code"])

	// And further transitions.
	resp, errBody = doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/cancel", userToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "terminal_state", errBody["code"])
}

func TestRedemptionGuardsBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)

	// Earn 50 points from a five-item pickup.
	resp, _ := doJSON(t, "POST", server.URL+"/v1/pickups", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"items":    "assorted cables",
			"quantity": 5,
			"address":  "12 Recycle Way",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Not enough for the voucher.
	resp, errBody := doJSON(t, "POST", server.URL+"/v1/rewards/rwd-voucher/redeem", userToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", errBody["code"])

	// Balance untouched by the failed redemption.
	resp, me := doJSON(t, "GET", server.URL+"/v1/me", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(50), me["points"])

	// The tote costs exactly 50.
	resp, redemption := doJSON(t, "POST", server.URL+"/v1/rewards/rwd-tote/redeem", userToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, redemption["code"])

	resp, me = doJSON(t, "GET", server.URL+"/v1/me", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), me["points"])
}

func TestCancelledPickupStaysCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)
	recyclerToken := TokenFor("rec-1", model.RoleRecycler)

	resp, created := doJSON(t, "POST", server.URL+"/v1/pickups", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"items":    "crt monitor",
			"quantity": 1,
			"address":  "12 Recycle Way",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pickupID := created["id"].(string)

	resp, cancelled := doJSON(t, "POST", server.URL+"/v1/pickups/"+pickupID+"/cancel", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StatusCancelled), cancelled["status"])

	// An accept that races in after the cancel loses.
	resp, errBody := doJSON(t, "POST", server.URL+"/v1/pickups/"+pickupID+"/accept", recyclerToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "terminal_state", errBody["code"])
}

func TestListVisibilityByRole(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	anaToken := TokenFor("user-ana", model.RoleUser)
	benToken := TokenFor("user-ben", model.RoleUser)
	techToken := TokenFor("tech-a", model.RoleTechnician)

	for _, token := range []string{anaToken, benToken} {
		resp, _ := doJSON(t, "POST", server.URL+"/v1/repairs", token, map[string]interface{}{
			"payload": map[string]interface{}{
				"deviceType": "tablet",
				"issue":      "cracked glass",
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", server.URL+"/v1/repairs", anaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, body = doJSON(t, "GET", server.URL+"/v1/repairs", techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 2)
}

func TestRepairNotesAndUnknownStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()
	migrateAndClean(t)

	userToken := TokenFor("user-ana", model.RoleUser)
	benToken := TokenFor("user-ben", model.RoleUser)

	resp, created := doJSON(t, "POST", server.URL+"/v1/repairs", userToken, map[string]interface{}{
		"payload": map[string]interface{}{
			"deviceType": "laptop",
			"issue":      "no sound",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	repairID := created["id"].(string)

	// A pickup-only status is rejected before it reaches the machine.
	resp, errBody := doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/status", userToken, map[string]interface{}{
		"status": "ACCEPTED",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errBody["code"])

	// The requester can annotate their own request; a stranger cannot.
	resp, note := doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/notes", userToken, map[string]interface{}{
		"text": "the charger is included",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "the charger is included", note["message"])

	resp, errBody = doJSON(t, "POST", server.URL+"/v1/repairs/"+repairID+"/notes", benToken, map[string]interface{}{
		"text": "drive-by comment",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "unauthorized", errBody["code"])

	// The note lands in the audit log after the creation entry.
	resp, events := doJSON(t, "GET", server.URL+"/v1/repairs/"+repairID+"/events", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := events["items"].([]interface{})
	require.Len(t, items, 2)
	last := items[1].(map[string]interface{})
	assert.Equal(t, "request.note", last["type"])
	assert.Equal(t, "the charger is included", last["message"])
}

func TestRequestsRequireAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	resp, err := http.Get(server.URL + "/v1/repairs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
