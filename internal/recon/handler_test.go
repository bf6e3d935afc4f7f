package recon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	actorIDs []int64
	failWith error
}

func (f *fakeEnqueuer) EnqueueAutoReconcile(ctx context.Context, actorID int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.actorIDs = append(f.actorIDs, actorID)
	return nil
}

func newTestReconRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestRunBatchEnqueuesWhenQueuePresent(t *testing.T) {
	repo := seedRepo()
	repo.bankTxs[1] = bankTx("1500.00", "Payment INV-2026-0001 Aurora Trading")
	svc, _ := newTestRecon(repo)
	handler := NewHandler(testLogger(), svc)
	enqueuer := &fakeEnqueuer{}
	handler.WithEnqueuer(enqueuer)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"actorId":7}`))
	newTestReconRouter(handler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"queued"`)
	require.Equal(t, []int64{7}, enqueuer.actorIDs)
	// The batch itself runs on the worker, not inside the request.
	require.Equal(t, BankTxPending, repo.bankTxs[1].Status)
}

func TestRunBatchQueueFailureReturns503(t *testing.T) {
	svc, _ := newTestRecon(seedRepo())
	handler := NewHandler(testLogger(), svc)
	handler.WithEnqueuer(&fakeEnqueuer{failWith: errors.New("queue down")})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"actorId":7}`))
	newTestReconRouter(handler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRunBatchRunsInProcessWithoutQueue(t *testing.T) {
	repo := seedRepo()
	repo.bankTxs[1] = bankTx("1500.00", "Payment INV-2026-0001 Aurora Trading")
	svc, _ := newTestRecon(repo)
	handler := NewHandler(testLogger(), svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"actorId":7}`))
	newTestReconRouter(handler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"matched":1`)
	require.Equal(t, BankTxMatched, repo.bankTxs[1].Status)
}
