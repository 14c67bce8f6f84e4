package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zoneadmin/internal/models"
	"zoneadmin/internal/momo"
	"zoneadmin/internal/repository"
)

// fakeStore emulates the repository contract in memory, including the
// all-or-nothing Complete migration and injectable insert faults.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	pending   map[int64]models.PendingTransaction
	completed map[int64]models.CompletedPayment

	failCreate          error
	failMarkInitiated   error
	failCompletedInsert error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:   make(map[int64]models.PendingTransaction),
		completed: make(map[int64]models.CompletedPayment),
	}
}

func (f *fakeStore) CreatePending(ctx context.Context, p *models.PendingTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return f.failCreate
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	f.pending[p.ID] = *p
	return nil
}

func (f *fakeStore) MarkInitiated(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failMarkInitiated != nil {
		return f.failMarkInitiated
	}
	p, ok := f.pending[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = models.StatusInitiated
	f.pending[id] = p
	return nil
}

func (f *fakeStore) Complete(ctx context.Context, id int64, finalize func(*models.PendingTransaction) (*models.CompletedPayment, error)) (*models.CompletedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	completed, err := finalize(&p)
	if err != nil {
		return nil, err
	}
	if f.failCompletedInsert != nil {
		// rollback: neither table changes
		return nil, f.failCompletedInsert
	}

	f.nextID++
	completed.ID = f.nextID
	completed.CompletedAt = time.Now()
	f.completed[completed.ID] = *completed
	delete(f.pending, id)
	return completed, nil
}

func (f *fakeStore) ListPending(ctx context.Context, filter repository.Filter) ([]models.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.PendingTransaction
	for _, p := range f.pending {
		if filter.ClientID > 0 && p.ClientID != filter.ClientID {
			continue
		}
		if filter.ChiefID > 0 && (!p.IsPaidByChief || p.PaidByChiefID != filter.ChiefID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) ListCompleted(ctx context.Context, filter repository.Filter) ([]models.CompletedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.CompletedPayment
	for _, c := range f.completed {
		if filter.ClientID > 0 && c.ClientID != filter.ClientID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeStore) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed)
}

type fakeProvider struct {
	requestToPay func(ctx context.Context, p momo.PaymentRequest) (string, error)
	status       func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error)

	mu           sync.Mutex
	requests     []momo.PaymentRequest
	statusCalls  int
}

func (f *fakeProvider) RequestToPay(ctx context.Context, p momo.PaymentRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, p)
	f.mu.Unlock()

	if f.requestToPay != nil {
		return f.requestToPay(ctx, p)
	}
	return p.ReferenceID, nil
}

func (f *fakeProvider) Status(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()

	if f.status != nil {
		return f.status(ctx, referenceID)
	}
	return &momo.PaymentStatus{Status: momo.StatusPending}, nil
}

type fakeDirectory struct {
	numbers map[int64]string
}

func (f *fakeDirectory) PhoneNumber(ctx context.Context, clientID int64) (string, error) {
	number, ok := f.numbers[clientID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return number, nil
}

func newTestService(store *fakeStore, provider *fakeProvider, dir *fakeDirectory) *PaymentService {
	if dir == nil {
		dir = &fakeDirectory{numbers: map[int64]string{}}
	}
	return NewPaymentService(store, dir, provider, zap.NewNop(), Defaults{
		Currency:    "RWF",
		CountryCode: "250",
		Provider:    "momo",
	})
}

func clientPrincipal(clientID int64) models.Principal {
	return models.Principal{UserID: 100 + clientID, ClientID: clientID, Role: models.RoleClient}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{}, nil)

	var valErr *ValidationError

	_, err := svc.Create(context.Background(), CreateInput{Amount: decimal.NewFromInt(10)})
	require.ErrorAs(t, err, &valErr)

	_, err = svc.Create(context.Background(), CreateInput{ClientID: 7})
	require.ErrorAs(t, err, &valErr)

	_, err = svc.Create(context.Background(), CreateInput{ClientID: 7, Amount: decimal.NewFromInt(-5)})
	require.ErrorAs(t, err, &valErr)
}

func TestCreateInitiatesPayment(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc := newTestService(store, provider, nil)

	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	require.NoError(t, err)

	assert.NotZero(t, tx.ID)
	assert.Equal(t, "250788000111", tx.PhoneNumber)
	assert.Equal(t, models.StatusInitiated, tx.Status)
	assert.Equal(t, "RWF", tx.Currency)
	assert.NotEmpty(t, tx.ExternalRef)
	assert.Contains(t, tx.Purpose, "Payment for ")

	require.Len(t, provider.requests, 1)
	assert.Equal(t, tx.ExternalRef, provider.requests[0].ReferenceID)
	assert.Equal(t, "250788000111", provider.requests[0].PhoneNumber)
}

func TestCreateFallsBackToStoredPhone(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{numbers: map[int64]string{7: "0788 123 456"}}
	svc := newTestService(store, &fakeProvider{}, dir)

	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:  7,
		Amount:    decimal.NewFromInt(100),
		Principal: clientPrincipal(7),
	})
	require.NoError(t, err)
	assert.Equal(t, "250788123456", tx.PhoneNumber)
}

func TestCreateChiefMustSupplyPhone(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{}, nil)
	chief := models.Principal{UserID: 42, Role: models.RoleChief}

	_, err := svc.Create(context.Background(), CreateInput{
		ClientID:  7,
		Amount:    decimal.NewFromInt(100),
		Principal: chief,
	})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(100),
		PhoneNumber: "0788000111",
		Principal:   chief,
	})
	require.NoError(t, err)
	assert.True(t, tx.IsPaidByChief)
	assert.Equal(t, int64(42), tx.PaidByChiefID)
}

func TestCreateSurvivesProviderFailure(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		requestToPay: func(ctx context.Context, p momo.PaymentRequest) (string, error) {
			return "", &momo.RequestError{Status: 503, Body: "unavailable"}
		},
	}
	svc := newTestService(store, provider, nil)

	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	require.NoError(t, err, "provider failure must not surface from Create")
	assert.NotZero(t, tx.ID)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, 1, store.pendingCount())
}

func TestCreateStoreFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.failCreate = errors.New("connection lost")
	svc := newTestService(store, &fakeProvider{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(100),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
}

func createPending(t *testing.T, svc *PaymentService) *models.PendingTransaction {
	t.Helper()
	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	require.NoError(t, err)
	return tx
}

func TestCompleteWithCallerStatusWhenProviderDown(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return nil, &momo.RequestError{Status: 500, Body: "boom"}
		},
	}
	svc := newTestService(store, provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{
		PendingID: tx.ID,
		Status:    models.StatusSuccess,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, completed.Status)
	assert.Empty(t, completed.TransactionID)
	assert.Equal(t, tx.ExternalRef, completed.ExternalRef)
	assert.Equal(t, 0, store.pendingCount())
	assert.Equal(t, 1, store.completedCount())
}

func TestCompleteAdoptsProviderStatus(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return &momo.PaymentStatus{
				Status:                 momo.StatusSuccessful,
				FinancialTransactionID: "fin-42",
			}, nil
		},
	}
	svc := newTestService(store, provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{PendingID: tx.ID})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, completed.Status)
	assert.Equal(t, "fin-42", completed.TransactionID)
}

func TestCompleteMapsProviderFailure(t *testing.T) {
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return &momo.PaymentStatus{Status: momo.StatusFailed}, nil
		},
	}
	svc := newTestService(newFakeStore(), provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{PendingID: tx.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, completed.Status)
}

func TestCompleteUnknownWhenProviderUnreachableAndNoCallerStatus(t *testing.T) {
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return nil, &momo.AuthError{Status: 401, Body: "denied"}
		},
	}
	svc := newTestService(newFakeStore(), provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{PendingID: tx.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, completed.Status, "provider silence must not mint success")
}

func TestCompleteCallerStatusBeatsProviderLookup(t *testing.T) {
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return &momo.PaymentStatus{Status: momo.StatusFailed, FinancialTransactionID: "fin-9"}, nil
		},
	}
	svc := newTestService(newFakeStore(), provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{
		PendingID: tx.ID,
		Status:    models.StatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, completed.Status)
	assert.Equal(t, "fin-9", completed.TransactionID, "settlement id is still adopted")
}

func TestCompleteSkipsLookupWhenTransactionIDSupplied(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(newFakeStore(), provider, nil)
	tx := createPending(t, svc)

	completed, err := svc.Complete(context.Background(), CompleteInput{
		PendingID:     tx.ID,
		TransactionID: "manual-1",
		Status:        models.StatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, "manual-1", completed.TransactionID)
	assert.Equal(t, 0, provider.statusCalls)
}

func TestCompleteReferenceMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{}, nil)
	tx := createPending(t, svc)

	_, err := svc.Complete(context.Background(), CompleteInput{
		PendingID:   tx.ID,
		ReferenceID: "some-other-ref",
	})
	require.ErrorIs(t, err, ErrReferenceMismatch)

	// both tables unchanged
	assert.Equal(t, 1, store.pendingCount())
	assert.Equal(t, 0, store.completedCount())
}

func TestCompleteNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{}, nil)

	_, err := svc.Complete(context.Background(), CompleteInput{PendingID: 999})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteAtMostOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{}, nil)
	tx := createPending(t, svc)

	const callers = 8
	results := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Complete(context.Background(), CompleteInput{
				PendingID: tx.ID,
				Status:    models.StatusSuccess,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, notFound int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one Complete may win")
	assert.Equal(t, callers-1, notFound)
	assert.Equal(t, 1, store.completedCount())
}

func TestCompleteRollsBackOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{}, nil)
	tx := createPending(t, svc)

	store.failCompletedInsert = errors.New("constraint violation")

	_, err := svc.Complete(context.Background(), CompleteInput{
		PendingID: tx.ID,
		Status:    models.StatusSuccess,
	})
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)

	assert.Equal(t, 1, store.pendingCount(), "pending row must survive the rollback")
	assert.Equal(t, 0, store.completedCount())

	// retry succeeds once the store recovers
	store.failCompletedInsert = nil
	completed, err := svc.Complete(context.Background(), CompleteInput{
		PendingID: tx.ID,
		Status:    models.StatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, completed.Status)
}

func TestScopedFilter(t *testing.T) {
	chief := models.Principal{UserID: 42, Role: models.RoleChief}
	admin := models.Principal{UserID: 1, Role: models.RoleAdmin}
	client := clientPrincipal(7)

	f, visible := scopedFilter(chief, QueryFilter{ChiefScope: true, Today: true})
	require.True(t, visible)
	assert.Equal(t, int64(42), f.ChiefID)
	assert.True(t, f.Today)

	f, visible = scopedFilter(client, QueryFilter{ChiefScope: true})
	require.True(t, visible)
	assert.Zero(t, f.ChiefID, "non-chiefs cannot claim chief scope")
	assert.Equal(t, client.ClientID, f.ClientID)

	f, visible = scopedFilter(admin, QueryFilter{})
	require.True(t, visible)
	assert.Zero(t, f.ClientID, "admins see everything by default")

	f, visible = scopedFilter(client, QueryFilter{})
	require.True(t, visible)
	assert.Equal(t, client.ClientID, f.ClientID, "clients are pinned to their own rows")

	f, visible = scopedFilter(client, QueryFilter{Limit: 25})
	require.True(t, visible)
	assert.Equal(t, 25, f.Limit, "row limit passes through to the store")

	// pinned principals without a client record have no visible rows
	_, visible = scopedFilter(chief, QueryFilter{})
	assert.False(t, visible, "chief without a client record must not get an unscoped filter")

	_, visible = scopedFilter(models.Principal{UserID: 9, Role: models.RoleClient}, QueryFilter{})
	assert.False(t, visible)

	_, visible = scopedFilter(models.Principal{UserID: 1, Role: models.RoleAdmin}, QueryFilter{Mine: true})
	assert.False(t, visible, "mine without a client record lists nothing, even for admins")
}

func TestListPendingPinsPrincipalsWithoutClientRecord(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{}, nil)

	for _, clientID := range []int64{7, 8} {
		_, err := svc.Create(context.Background(), CreateInput{
			ClientID:    clientID,
			Amount:      decimal.NewFromInt(1000),
			PhoneNumber: "0788000111",
			Principal:   clientPrincipal(clientID),
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, store.pendingCount())

	// a chief with no client record asking without chief scope sees nothing
	chief := models.Principal{UserID: 42, Role: models.RoleChief}
	txs, err := svc.ListPending(context.Background(), chief, QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	payments, err := svc.ListCompleted(context.Background(), chief, QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, payments)

	// chief scope still shows the chief's own proxy payments
	_, err = svc.Create(context.Background(), CreateInput{
		ClientID:    9,
		Amount:      decimal.NewFromInt(500),
		PhoneNumber: "0788000222",
		Principal:   chief,
	})
	require.NoError(t, err)

	txs, err = svc.ListPending(context.Background(), chief, QueryFilter{ChiefScope: true})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(9), txs[0].ClientID)
}

func TestCreateClientCannotPayForOtherClient(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		ClientID:    8,
		Amount:      decimal.NewFromInt(100),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 0, store.pendingCount())
}

func TestCompleteScenario(t *testing.T) {
	// End-to-end walk-through: create for client 7 with a local phone, then
	// complete with an explicit success while the provider is unreachable.
	store := newFakeStore()
	provider := &fakeProvider{
		status: func(ctx context.Context, referenceID string) (*momo.PaymentStatus, error) {
			return nil, &momo.RequestError{Status: 503, Body: "down"}
		},
	}
	svc := newTestService(store, provider, nil)

	tx, err := svc.Create(context.Background(), CreateInput{
		ClientID:    7,
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0788000111",
		Principal:   clientPrincipal(7),
	})
	require.NoError(t, err)
	require.NotZero(t, tx.ID)
	assert.Equal(t, "250788000111", tx.PhoneNumber)
	assert.Contains(t, []string{models.StatusPending, models.StatusInitiated}, tx.Status)

	completed, err := svc.Complete(context.Background(), CompleteInput{
		PendingID: tx.ID,
		Status:    models.StatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, completed.Status)
	assert.Empty(t, completed.TransactionID)
	assert.Equal(t, 0, store.pendingCount())
}
