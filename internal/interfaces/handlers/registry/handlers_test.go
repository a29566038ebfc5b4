package registry

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	regsvc "carbon-registry/internal/application/registry"
	"carbon-registry/internal/domain"
	"carbon-registry/internal/infrastructure/database"
	"carbon-registry/internal/infrastructure/locking"
	"carbon-registry/internal/infrastructure/replay"
	"carbon-registry/internal/middleware"
	"carbon-registry/internal/pkg/signing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNow = 1_700_000_000

var testProgramID = domain.MustParsePubkey("6XkQn6ub71Drxp74UE6LrrvNH6K6GnCbxXwCH6NrDLb")

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

type harness struct {
	app  *fiber.App
	ts   int64
	seen int
}

func setupApp(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	svc := regsvc.NewService(db, testProgramID)
	svc.Now = func() time.Time { return time.Unix(testNow, 0) }

	h := &Handlers{Service: svc, LockWait: time.Second}
	sig := middleware.SignatureConfig{
		Window: 5 * time.Minute,
		Guard:  replay.NewMemoryGuard(),
		Now:    func() time.Time { return time.Unix(testNow, 0) },
	}
	app := fiber.New()
	ix := app.Group("/api/v1/instructions")
	ix.Post("/initialize", middleware.RequireSignedInstruction(regsvc.InstructionInitialize, sig), h.Initialize)
	ix.Post("/create-project", middleware.RequireSignedInstruction(regsvc.InstructionCreateProject, sig), h.CreateProject)
	ix.Post("/verify-project", middleware.RequireSignedInstruction(regsvc.InstructionVerifyProject, sig), h.VerifyProject)
	ix.Post("/suspend-project", middleware.RequireSignedInstruction(regsvc.InstructionSuspendProject, sig), h.SuspendProject)
	ix.Post("/issue-credits", middleware.RequireSignedInstruction(regsvc.InstructionIssueCredits, sig), h.IssueCredits)
	ix.Post("/retire-credits", middleware.RequireSignedInstruction(regsvc.InstructionRetireCredits, sig), h.RetireCredits)
	ix.Post("/transfer-credits", middleware.RequireSignedInstruction(regsvc.InstructionTransferCredits, sig), h.TransferCredits)
	app.Post("/api/v1/tokens/create-mint", middleware.RequireSignedInstruction(regsvc.InstructionCreateMint, sig), h.CreateMint)
	app.Get("/api/v1/program", h.Program)
	app.Get("/api/v1/projects/:id", h.Project)
	app.Get("/api/v1/batches/:id", h.Batch)
	app.Get("/api/v1/retirements/:batch/:holder", h.Retirement)
	app.Get("/api/v1/balances/:mint/:holder", h.Balance)
	app.Get("/api/v1/addresses/:kind", h.Address)
	app.Get("/api/v1/events", h.Events)
	return &harness{app: app, ts: testNow}
}

// envelope signs args for instruction. Each call uses a fresh timestamp so signatures
// never collide in the replay guard.
func (h *harness) envelope(t *testing.T, instruction string, args interface{}, keys ...ed25519.PrivateKey) []byte {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	h.seen++
	env, err := signing.Sign(signing.Payload{Instruction: instruction, Timestamp: h.ts + int64(h.seen%60), Args: raw}, keys...)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func (h *harness) do(t *testing.T, method, path string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func (h *harness) post(t *testing.T, path, instruction string, args interface{}, keys ...ed25519.PrivateKey) (int, map[string]interface{}) {
	t.Helper()
	return h.do(t, "POST", path, h.envelope(t, instruction, args, keys...))
}

func errorCode(out map[string]interface{}) float64 {
	e, _ := out["error"].(map[string]interface{})
	code, _ := e["code"].(float64)
	return code
}

func data(out map[string]interface{}) map[string]interface{} {
	d, _ := out["data"].(map[string]interface{})
	return d
}

type actors struct {
	authority, owner, holder ed25519.PrivateKey
	mint                     string
}

// bootstrap initializes the registry, registers and verifies project 1, and creates a mint.
func bootstrap(t *testing.T, h *harness) actors {
	t.Helper()
	a := actors{authority: newKey(t), owner: newKey(t), holder: newKey(t)}

	status, _ := h.post(t, "/api/v1/instructions/initialize", regsvc.InstructionInitialize, map[string]interface{}{}, a.authority)
	require.Equal(t, fiber.StatusCreated, status)

	status, out := h.post(t, "/api/v1/instructions/create-project", regsvc.InstructionCreateProject, map[string]interface{}{
		"project_id":            1,
		"name":                  "Amazon Reforestation",
		"description":           "Native species replanting",
		"location":              "Para, Brazil",
		"project_type":          "Reforestation",
		"verification_standard": "VCS",
		"estimated_credits":     10000,
	}, a.owner)
	require.Equal(t, fiber.StatusCreated, status, out)

	status, out = h.post(t, "/api/v1/instructions/verify-project", regsvc.InstructionVerifyProject, map[string]interface{}{"project_id": 1}, a.authority)
	require.Equal(t, fiber.StatusOK, status, out)

	status, out = h.post(t, "/api/v1/tokens/create-mint", regsvc.InstructionCreateMint, map[string]interface{}{"decimals": 0}, a.authority)
	require.Equal(t, fiber.StatusCreated, status, out)
	a.mint = data(out)["address"].(string)
	return a
}

func TestInstructions_IssueAndRetireScenario(t *testing.T) {
	h := setupApp(t)
	a := bootstrap(t, h)
	holder := signing.PubkeyOf(a.holder).String()

	status, out := h.post(t, "/api/v1/instructions/issue-credits", regsvc.InstructionIssueCredits, map[string]interface{}{
		"project_id":   1,
		"recipient":    holder,
		"mint":         a.mint,
		"amount":       1000,
		"vintage_year": 2024,
		"metadata_uri": "ipfs://batch-0",
	}, a.authority)
	require.Equal(t, fiber.StatusCreated, status, out)
	assert.Equal(t, float64(0), data(out)["batch_id"])

	status, out = h.post(t, "/api/v1/instructions/retire-credits", regsvc.InstructionRetireCredits, map[string]interface{}{
		"batch_id": 0,
		"mint":     a.mint,
		"amount":   500,
		"reason":   "2024 offsets",
	}, a.holder)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, float64(500), data(out)["amount"])

	status, out = h.do(t, "GET", "/api/v1/balances/"+a.mint+"/"+holder, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(500), data(out)["amount"])

	status, out = h.do(t, "GET", "/api/v1/batches/0", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(500), data(out)["retired_amount"])
	assert.Equal(t, float64(500), out["metadata"].(map[string]interface{})["live_balance"])

	status, out = h.do(t, "GET", "/api/v1/program", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1000), data(out)["total_credits_issued"])
	assert.Equal(t, float64(500), data(out)["total_credits_retired"])

	status, out = h.do(t, "GET", "/api/v1/retirements/0/"+holder, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2024 offsets", data(out)["reason"])

	status, out = h.do(t, "GET", "/api/v1/events?limit=2", nil)
	require.Equal(t, fiber.StatusOK, status)
	events := out["data"].([]interface{})
	require.Len(t, events, 2)
	assert.Equal(t, "CreditsRetired", events[0].(map[string]interface{})["event_type"])
}

func TestInstructions_ErrorMapping(t *testing.T) {
	h := setupApp(t)
	a := bootstrap(t, h)
	stranger := newKey(t)

	status, out := h.post(t, "/api/v1/instructions/initialize", regsvc.InstructionInitialize, map[string]interface{}{}, a.authority)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, float64(domain.ErrAlreadyInitialized.Code), errorCode(out))

	status, out = h.post(t, "/api/v1/instructions/suspend-project", regsvc.InstructionSuspendProject, map[string]interface{}{"project_id": 1}, stranger)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, float64(domain.ErrUnauthorized.Code), errorCode(out))

	status, out = h.post(t, "/api/v1/instructions/verify-project", regsvc.InstructionVerifyProject, map[string]interface{}{"project_id": 99}, a.authority)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, float64(domain.ErrProjectNotFound.Code), errorCode(out))

	status, out = h.post(t, "/api/v1/instructions/retire-credits", regsvc.InstructionRetireCredits, map[string]interface{}{
		"batch_id": 0, "mint": a.mint, "amount": 1, "reason": "none",
	}, a.holder)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, float64(domain.ErrBatchNotFound.Code), errorCode(out))

	status, out = h.post(t, "/api/v1/instructions/issue-credits", regsvc.InstructionIssueCredits, map[string]interface{}{
		"project_id": 1, "recipient": signing.PubkeyOf(a.holder).String(), "mint": a.mint,
		"amount": 10001, "vintage_year": 2024, "metadata_uri": "ipfs://x",
	}, a.authority)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, float64(domain.ErrExceedsEstimatedCredits.Code), errorCode(out))

	status, out = h.post(t, "/api/v1/instructions/create-project", regsvc.InstructionCreateProject, map[string]interface{}{
		"project_id": 2, "name": "x", "project_type": "Volcano", "estimated_credits": 1,
	}, a.owner)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, float64(domain.ErrInvalidProjectType.Code), errorCode(out))

	status, _ = h.post(t, "/api/v1/instructions/create-project", regsvc.InstructionCreateProject, `not-an-object`, a.owner)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestInstructions_SignatureChecks(t *testing.T) {
	h := setupApp(t)
	authority := newKey(t)

	body := h.envelope(t, regsvc.InstructionVerifyProject, map[string]interface{}{"project_id": 1}, authority)
	status, _ := h.do(t, "POST", "/api/v1/instructions/initialize", body)
	assert.Equal(t, fiber.StatusBadRequest, status)

	body = h.envelope(t, regsvc.InstructionInitialize, map[string]interface{}{}, authority)
	status, _ = h.do(t, "POST", "/api/v1/instructions/initialize", body)
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = h.do(t, "POST", "/api/v1/instructions/initialize", body)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	h.ts = testNow - 3600
	status, _ = h.post(t, "/api/v1/instructions/initialize", regsvc.InstructionInitialize, map[string]interface{}{}, authority)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestInstructions_TransferCredits(t *testing.T) {
	h := setupApp(t)
	a := bootstrap(t, h)
	holder := signing.PubkeyOf(a.holder).String()
	buyer := signing.PubkeyOf(newKey(t)).String()

	status, _ := h.post(t, "/api/v1/instructions/issue-credits", regsvc.InstructionIssueCredits, map[string]interface{}{
		"project_id": 1, "recipient": holder, "mint": a.mint,
		"amount": 300, "vintage_year": 2023, "metadata_uri": "ipfs://b",
	}, a.authority)
	require.Equal(t, fiber.StatusCreated, status)

	status, out := h.post(t, "/api/v1/instructions/transfer-credits", regsvc.InstructionTransferCredits, map[string]interface{}{
		"mint": a.mint, "recipient": buyer, "amount": 120,
	}, a.holder)
	require.Equal(t, fiber.StatusOK, status, out)

	status, out = h.do(t, "GET", "/api/v1/balances/"+a.mint+"/"+buyer, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(120), data(out)["amount"])

	status, out = h.post(t, "/api/v1/instructions/transfer-credits", regsvc.InstructionTransferCredits, map[string]interface{}{
		"mint": a.mint, "recipient": buyer, "amount": 1000,
	}, a.holder)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, float64(domain.ErrInsufficientCredits.Code), errorCode(out))
}

func TestQueries_Addresses(t *testing.T) {
	h := setupApp(t)
	holder := signing.PubkeyOf(newKey(t)).String()

	status, out := h.do(t, "GET", "/api/v1/addresses/program-state", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, domain.KindProgramState, data(out)["kind"])
	assert.NotEmpty(t, data(out)["address"])

	status, out = h.do(t, "GET", "/api/v1/addresses/project?project_id=7", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, domain.KindProject, data(out)["kind"])

	status, _ = h.do(t, "GET", "/api/v1/addresses/retirement?batch_id=0&holder="+holder, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(t, "GET", "/api/v1/addresses/project", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = h.do(t, "GET", "/api/v1/addresses/unknown", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestQueries_NotFound(t *testing.T) {
	h := setupApp(t)

	status, out := h.do(t, "GET", "/api/v1/program", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, float64(domain.ErrNotInitialized.Code), errorCode(out))

	status, _ = h.do(t, "GET", "/api/v1/projects/abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out = h.do(t, "GET", "/api/v1/projects/5", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, float64(domain.ErrProjectNotFound.Code), errorCode(out))

	status, _ = h.do(t, "GET", "/api/v1/balances/bad/key", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusBadRequest, StatusFor(domain.ErrNameTooLong))
	assert.Equal(t, fiber.StatusForbidden, StatusFor(domain.ErrMintAuthorityMismatch))
	assert.Equal(t, fiber.StatusNotFound, StatusFor(domain.ErrInvalidMint))
	assert.Equal(t, fiber.StatusConflict, StatusFor(domain.ErrProjectAlreadyVerified))
	assert.Equal(t, fiber.StatusUnprocessableEntity, StatusFor(domain.ErrInsufficientCredits))
	assert.Equal(t, fiber.StatusServiceUnavailable, StatusFor(locking.ErrLockTimeout))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(io.ErrUnexpectedEOF))
}
