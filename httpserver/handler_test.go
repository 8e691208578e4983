package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/contract-registry/api"
	"github.com/ruteri/contract-registry/audit"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/metrics"
	"github.com/ruteri/contract-registry/oracle"
	"github.com/ruteri/contract-registry/registry"
	"github.com/ruteri/contract-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t        *testing.T
	reg      *registry.Registry
	router   http.Handler
	ownerKey *ecdsa.PrivateKey
	owner    interfaces.Principal
	audit    *audit.Log
	metrics  *metrics.Metrics
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newTestEnv(t *testing.T, regOpts []registry.Option, handlerOpts ...HandlerOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ownerKey := newKey(t)
	owner := api.PrincipalFromKey(ownerKey)

	auditLog := audit.New(16, nil)
	m := metrics.New(prometheus.NewRegistry(), "test")
	regOpts = append(regOpts, registry.WithObserver(auditLog.Observer()), registry.WithObserver(m.Observer()))

	reg, err := registry.New(owner, regOpts...)
	require.NoError(t, err)

	fileBackend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	handlerOpts = append([]HandlerOption{WithStorage(fileBackend), WithAuditLog(auditLog), WithMetrics(m)}, handlerOpts...)
	handler := NewHandler(reg, logger, handlerOpts...)

	srv, err := New(&api.HTTPServerConfig{Log: logger}, handler, nil)
	require.NoError(t, err)

	return &testEnv{
		t:        t,
		reg:      reg,
		router:   srv.Router(),
		ownerKey: ownerKey,
		owner:    owner,
		audit:    auditLog,
		metrics:  m,
	}
}

// do sends a request, signed by key when key is not nil.
func (e *testEnv) do(method, path string, body []byte, key *ecdsa.PrivateKey) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if key != nil {
		require.NoError(e.t, api.SignRequest(req, body, key, time.Now()))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func entryPath(hash interfaces.ContractHash, suffix string) string {
	return "/api/v1/entries/" + hash.String() + suffix
}

func TestSubmitApproveValid(t *testing.T) {
	env := newTestEnv(t, nil)
	submitter := newKey(t)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, submitter)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[api.OperationResponse](t, w).Result)

	w = env.do(http.MethodGet, entryPath(hash, "/valid"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[api.ValidityResponse](t, w).Valid)

	w = env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, entryPath(hash, "/valid"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.ValidityResponse](t, w).Valid)

	w = env.do(http.MethodGet, entryPath(hash, ""), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entry := decode[interfaces.Entry](t, w)
	assert.Equal(t, api.PrincipalFromKey(submitter), entry.Submitter)
	assert.Equal(t, interfaces.StateActive, entry.State)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Operations.WithLabelValues("approve", metrics.OutcomeOK)))
}

func TestApproveUnknownHash(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("never submitted"))

	w := env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[api.OperationResponse](t, w).Result)

	w = env.do(http.MethodGet, entryPath(hash, ""), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeNotFound, decode[api.ErrorResponse](t, w).Code)
}

func TestOwnerOperationsRequireOwner(t *testing.T) {
	env := newTestEnv(t, nil)
	stranger := newKey(t)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, stranger)
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{entryPath(hash, "/approve"), entryPath(hash, "/reject"), "/api/v1/kill"} {
		w = env.do(http.MethodPost, path, nil, stranger)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, api.CodeUnauthorized, decode[api.ErrorResponse](t, w).Code)
	}

	w = env.do(http.MethodDelete, entryPath(hash, ""), nil, stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	entry, found, err := env.reg.Lookup(hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, interfaces.StatePending, entry.State)
	assert.False(t, env.reg.Killed())
}

func TestUnsignedMutationsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.CodeUnauthenticated, decode[api.ErrorResponse](t, w).Code)

	// A signature over another path does not authorize this one.
	req := httptest.NewRequest(http.MethodPost, entryPath(hash, "/approve"), nil)
	require.NoError(t, api.SignRequest(req, nil, env.ownerKey, time.Now()))
	req.URL.Path = entryPath(hash, "/reject")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectedIsHardFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("malicious"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t)).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/reject"), nil, env.ownerKey).Code)

	w := env.do(http.MethodGet, entryPath(hash, "/valid"), nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeRejected, decode[api.ErrorResponse](t, w).Code)
}

func TestStrictPolicyTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t)).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/reject"), nil, env.ownerKey).Code)

	w := env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeInvalidTransition, decode[api.ErrorResponse](t, w).Code)
}

func TestDeletePreconditions(t *testing.T) {
	env := newTestEnv(t, nil)
	own := interfaces.ComputeContractHash([]byte("owner submitted"))
	foreign := interfaces.ComputeContractHash([]byte("someone else"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(own, "/submit"), nil, env.ownerKey).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(foreign, "/submit"), nil, newKey(t)).Code)

	w := env.do(http.MethodDelete, entryPath(foreign, ""), nil, env.ownerKey)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = env.do(http.MethodDelete, entryPath(interfaces.ContractHash{0x01}, ""), nil, env.ownerKey)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, entryPath(own, ""), nil, env.ownerKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[api.OperationResponse](t, w).Result)

	_, found, err := env.reg.Lookup(own)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKill(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", nil, nil).Code)

	w := env.do(http.MethodPost, "/api/v1/kill", nil, env.ownerKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.KillResponse](t, w).Killed)

	w = env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t))
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, api.CodeKilled, decode[api.ErrorResponse](t, w).Code)

	w = env.do(http.MethodGet, entryPath(hash, "/valid"), nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)

	w = env.do(http.MethodGet, "/api/v1/owner", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[api.OwnerResponse](t, w)
	assert.Equal(t, env.owner, info.Owner)
	assert.True(t, info.Killed)
	assert.Equal(t, "strict", info.Policy)

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/readyz", nil, nil).Code)
}

func TestInvalidHash(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/entries/not-a-hash/valid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidHash, decode[api.ErrorResponse](t, w).Code)
}

func TestArtifactUploadAndFetch(t *testing.T) {
	env := newTestEnv(t, nil)
	submitter := newKey(t)
	bytecode := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15}

	w := env.do(http.MethodPost, "/api/v1/artifacts", bytecode, submitter)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[api.ArtifactResponse](t, w)
	assert.Equal(t, interfaces.ComputeContractHash(bytecode), resp.Hash)
	assert.Equal(t, len(bytecode), resp.Size)
	assert.True(t, resp.Submitted)

	entry, found, err := env.reg.Lookup(resp.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, api.PrincipalFromKey(submitter), entry.Submitter)

	w = env.do(http.MethodGet, "/api/v1/artifacts/"+resp.Hash.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bytecode, w.Body.Bytes())

	w = env.do(http.MethodGet, "/api/v1/artifacts/"+interfaces.ComputeContractHash([]byte("nope")).String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeContentNotFound, decode[api.ErrorResponse](t, w).Code)

	w = env.do(http.MethodPost, "/api/v1/artifacts", nil, submitter)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArtifactUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, nil, WithMaxArtifactSize(4))

	w := env.do(http.MethodPost, "/api/v1/artifacts", []byte("too large"), newKey(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitterIdentityRequired(t *testing.T) {
	member := newKey(t)
	outsider := newKey(t)
	members := oracle.Static{api.PrincipalFromKey(member): true}

	env := newTestEnv(t, []registry.Option{registry.WithIdentityOracle(members)}, WithSubmitterIdentity(true))
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, outsider)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeIdentityNotValid, decode[api.ErrorResponse](t, w).Code)

	w = env.do(http.MethodPost, "/api/v1/artifacts", []byte("code"), outsider)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, entryPath(hash, "/submit"), nil, member)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitterIdentityWithoutOracle(t *testing.T) {
	env := newTestEnv(t, nil, WithSubmitterIdentity(true))
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, api.CodeNoIdentityOracle, decode[api.ErrorResponse](t, w).Code)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, env.ownerKey).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey).Code)

	w := env.do(http.MethodGet, "/api/v1/events?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[api.EventsResponse](t, w)
	require.Len(t, events.Events, 1)
	assert.Equal(t, registry.EventApproved, events.Events[0].Kind)
	assert.Equal(t, uint64(2), events.Total)

	w = env.do(http.MethodGet, "/api/v1/events?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/livez", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/drain", nil, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/readyz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/undrain", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", nil, nil).Code)
}

func TestSignedRequestCannotBeReplayed(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := interfaces.ComputeContractHash([]byte("contract"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, env.ownerKey).Code)

	deleteReq := httptest.NewRequest(http.MethodDelete, entryPath(hash, ""), nil)
	require.NoError(t, api.SignRequest(deleteReq, nil, env.ownerKey, time.Now()))
	captured := deleteReq.Header.Clone()

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, deleteReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, env.ownerKey).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey).Code)

	replay := httptest.NewRequest(http.MethodDelete, entryPath(hash, ""), nil)
	replay.Header = captured
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, api.CodeUnauthenticated, decode[api.ErrorResponse](t, rec).Code)

	valid, err := env.reg.IsValid(hash)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSignedRequestBoundToHost(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "http://other-registry.internal/api/v1/kill", nil)
	require.NoError(t, api.SignRequest(req, nil, env.ownerKey, time.Now()))
	req.Host = "example.com"

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.reg.Killed())
}

// recordingSaver captures the registry state at every Save.
type recordingSaver struct {
	reg   *registry.Registry
	saves []registry.State
	err   error
}

func (s *recordingSaver) Save(context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, s.reg.Snapshot())
	return nil
}

func TestMutationsPersistedBeforeResponse(t *testing.T) {
	saver := &recordingSaver{}
	env := newTestEnv(t, []registry.Option{registry.WithPolicy(registry.PolicyPermissive)}, WithStateSaver(saver))
	saver.reg = env.reg
	hash := interfaces.ComputeContractHash([]byte("contract"))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t)).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/approve"), nil, env.ownerKey).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/reject"), nil, env.ownerKey).Code)
	require.Len(t, saver.saves, 3)
	last := saver.saves[2]
	require.Len(t, last.Entries, 1)
	assert.Equal(t, interfaces.StateRejected, last.Entries[0].State)

	// Reads do not write.
	env.do(http.MethodGet, entryPath(hash, "/valid"), nil, nil)
	require.Len(t, saver.saves, 3)

	// Approving an unknown hash changes nothing.
	unknown := interfaces.ComputeContractHash([]byte("unknown"))
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(unknown, "/approve"), nil, env.ownerKey).Code)
	require.Len(t, saver.saves, 3)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/kill", nil, env.ownerKey).Code)
	require.Len(t, saver.saves, 4)
	assert.True(t, saver.saves[3].Killed)
}

func TestPersistFailureReported(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	env := newTestEnv(t, nil, WithStateSaver(saver))
	hash := interfaces.ComputeContractHash([]byte("contract"))

	w := env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, api.CodeInternal, decode[api.ErrorResponse](t, w).Code)
}

func TestArtifactUploadOfRejectedHashNotStored(t *testing.T) {
	env := newTestEnv(t, nil)
	bytecode := []byte("known bad contract")
	hash := interfaces.ComputeContractHash(bytecode)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/submit"), nil, newKey(t)).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, entryPath(hash, "/reject"), nil, env.ownerKey).Code)

	w := env.do(http.MethodPost, "/api/v1/artifacts", bytecode, newKey(t))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeInvalidTransition, decode[api.ErrorResponse](t, w).Code)

	w = env.do(http.MethodGet, "/api/v1/artifacts/"+hash.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
