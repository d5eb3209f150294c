package services

import (
	"context"
	"testing"

	"example.com/backstage/services/catalog/internal/catalog"
	"example.com/backstage/services/catalog/internal/models"
	"example.com/backstage/services/catalog/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProductStore struct {
	mock.Mock
}

func (m *MockProductStore) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductStore) Update(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProductStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*models.Product); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProductStore) List(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Product), args.Get(1).(int64), args.Error(2)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetProduct(ctx context.Context, id string) (catalog.Snapshot, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(catalog.Snapshot), args.Error(1)
}

func (m *MockCache) SetProduct(ctx context.Context, snapshot catalog.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockCache) InvalidateProduct(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) IndexProduct(ctx context.Context, product catalog.Snapshot) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockIndex) DeleteProduct(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIndex) SearchProducts(ctx context.Context, query string, size int) ([]catalog.Snapshot, error) {
	args := m.Called(ctx, query, size)
	return args.Get(0).([]catalog.Snapshot), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OnCreate(created catalog.Snapshot) {
	m.Called(created)
}

func (m *MockNotifier) OnUpdate(old, updated catalog.Snapshot) {
	m.Called(old, updated)
}

func (m *MockNotifier) OnDelete(entityID string) {
	m.Called(entityID)
}

func intPtr(v int) *int {
	return &v
}

func validInput() models.ProductInput {
	return models.ProductInput{
		Name:           "Espresso Beans",
		Description:    "Single origin",
		Price:          decimal.NewFromInt(80),
		InventoryCount: intPtr(8),
		Category:       "coffee",
	}
}

func TestCreateNotifiesPipeline(t *testing.T) {
	repo := new(MockProductStore)
	index := new(MockIndex)
	notifier := new(MockNotifier)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Product")).Return(nil)
	index.On("IndexProduct", mock.Anything, mock.Anything).Return(errors.New("index down"))
	notifier.On("OnCreate", mock.MatchedBy(func(s catalog.Snapshot) bool {
		return s.Name == "Espresso Beans" && s.InventoryCount == 8
	})).Return()

	svc := NewCatalogService(repo, nil, index, notifier, nil)

	created, err := svc.Create(context.Background(), validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	repo.AssertExpectations(t)
	index.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	repo := new(MockProductStore)
	notifier := new(MockNotifier)
	svc := NewCatalogService(repo, nil, nil, notifier, nil)

	cases := map[string]func(*models.ProductInput){
		"missing name":       func(in *models.ProductInput) { in.Name = "" },
		"missing inventory":  func(in *models.ProductInput) { in.InventoryCount = nil },
		"negative inventory": func(in *models.ProductInput) { in.InventoryCount = intPtr(-1) },
		"negative price":     func(in *models.ProductInput) { in.Price = decimal.NewFromInt(-1) },
		"sub-cent price":     func(in *models.ProductInput) { in.Price = decimal.RequireFromString("80.005") },
		"missing category":   func(in *models.ProductInput) { in.Category = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)

			_, err := svc.Create(context.Background(), in)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "OnCreate", mock.Anything)
}

func TestCreateStoreFailureSkipsPipeline(t *testing.T) {
	repo := new(MockProductStore)
	notifier := new(MockNotifier)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	svc := NewCatalogService(repo, nil, nil, notifier, nil)
	_, err := svc.Create(context.Background(), validInput())

	require.Error(t, err)
	notifier.AssertNotCalled(t, "OnCreate", mock.Anything)
}

func TestUpdatePassesBeforeAndAfterSnapshots(t *testing.T) {
	id := uuid.New()
	existing := &models.Product{
		ID:             id,
		Name:           "Espresso Beans",
		Description:    "Single origin",
		Price:          decimal.NewFromInt(100),
		InventoryCount: 12,
		Category:       "coffee",
	}

	repo := new(MockProductStore)
	cache := new(MockCache)
	notifier := new(MockNotifier)

	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Update", mock.Anything, existing).Return(nil)
	cache.On("InvalidateProduct", mock.Anything, id.String()).Return(nil)
	notifier.On("OnUpdate",
		mock.MatchedBy(func(old catalog.Snapshot) bool {
			return old.Price.Equal(decimal.NewFromInt(100)) && old.InventoryCount == 12
		}),
		mock.MatchedBy(func(updated catalog.Snapshot) bool {
			return updated.Price.Equal(decimal.NewFromInt(80)) && updated.InventoryCount == 8
		}),
	).Return()

	svc := NewCatalogService(repo, cache, nil, notifier, nil)
	updated, err := svc.Update(context.Background(), id.String(), validInput())

	require.NoError(t, err)
	assert.Equal(t, 8, updated.InventoryCount)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestUpdateRejectsSubCentPrice(t *testing.T) {
	id := uuid.New()
	repo := new(MockProductStore)
	notifier := new(MockNotifier)
	repo.On("GetByID", mock.Anything, id).Return(&models.Product{
		ID:             id,
		Name:           "Espresso Beans",
		Price:          decimal.RequireFromString("10.01"),
		InventoryCount: 8,
		Category:       "coffee",
	}, nil).Maybe()

	in := validInput()
	in.Price = decimal.RequireFromString("10.005")

	svc := NewCatalogService(repo, nil, nil, notifier, nil)
	_, err := svc.Update(context.Background(), id.String(), in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "decimal places")
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "OnUpdate", mock.Anything, mock.Anything)
}

func TestCreateAcceptsTwoDecimalPrice(t *testing.T) {
	repo := new(MockProductStore)
	notifier := new(MockNotifier)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Product")).Return(nil)
	notifier.On("OnCreate", mock.Anything).Return()

	in := validInput()
	in.Price = decimal.RequireFromString("79.90")

	svc := NewCatalogService(repo, nil, nil, notifier, nil)
	created, err := svc.Create(context.Background(), in)

	require.NoError(t, err)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("79.9")))
}

func TestUpdateInvalidatesCacheAroundWrite(t *testing.T) {
	id := uuid.New()
	existing := &models.Product{ID: id, Name: "Espresso Beans", Price: decimal.NewFromInt(100), InventoryCount: 12, Category: "coffee"}

	var calls []string
	repo := new(MockProductStore)
	cache := new(MockCache)
	notifier := new(MockNotifier)

	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Update", mock.Anything, existing).Run(func(mock.Arguments) {
		calls = append(calls, "update")
	}).Return(nil)
	cache.On("InvalidateProduct", mock.Anything, id.String()).Run(func(mock.Arguments) {
		calls = append(calls, "invalidate")
	}).Return(nil)
	notifier.On("OnUpdate", mock.Anything, mock.Anything).Return()

	svc := NewCatalogService(repo, cache, nil, notifier, nil)
	_, err := svc.Update(context.Background(), id.String(), validInput())

	require.NoError(t, err)
	assert.Equal(t, []string{"invalidate", "update", "invalidate"}, calls)
}

func TestUpdateStoreFailureStillDropsCachedProduct(t *testing.T) {
	id := uuid.New()
	existing := &models.Product{ID: id, Name: "Espresso Beans", Price: decimal.NewFromInt(100), InventoryCount: 12, Category: "coffee"}

	repo := new(MockProductStore)
	cache := new(MockCache)
	notifier := new(MockNotifier)

	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Update", mock.Anything, existing).Return(errors.New("db down"))
	cache.On("InvalidateProduct", mock.Anything, id.String()).Return(nil).Once()

	svc := NewCatalogService(repo, cache, nil, notifier, nil)
	_, err := svc.Update(context.Background(), id.String(), validInput())

	require.Error(t, err)
	cache.AssertNumberOfCalls(t, "InvalidateProduct", 1)
	notifier.AssertNotCalled(t, "OnUpdate", mock.Anything, mock.Anything)
}

func TestUpdateMissingProduct(t *testing.T) {
	id := uuid.New()
	repo := new(MockProductStore)
	notifier := new(MockNotifier)
	repo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrProductNotFound)

	svc := NewCatalogService(repo, nil, nil, notifier, nil)
	_, err := svc.Update(context.Background(), id.String(), validInput())

	assert.ErrorIs(t, err, repositories.ErrProductNotFound)
	notifier.AssertNotCalled(t, "OnUpdate", mock.Anything, mock.Anything)
}

func TestDeleteNotifiesPipeline(t *testing.T) {
	id := uuid.New()
	repo := new(MockProductStore)
	cache := new(MockCache)
	index := new(MockIndex)
	notifier := new(MockNotifier)

	repo.On("Delete", mock.Anything, id).Return(nil)
	cache.On("InvalidateProduct", mock.Anything, id.String()).Return(errors.New("redis down"))
	index.On("DeleteProduct", mock.Anything, id.String()).Return(nil)
	notifier.On("OnDelete", id.String()).Return()

	svc := NewCatalogService(repo, cache, index, notifier, nil)
	require.NoError(t, svc.Delete(context.Background(), id.String()))

	notifier.AssertExpectations(t)
	index.AssertExpectations(t)
	cache.AssertNumberOfCalls(t, "InvalidateProduct", 2)
}

func TestDeleteInvalidID(t *testing.T) {
	svc := NewCatalogService(new(MockProductStore), nil, nil, new(MockNotifier), nil)
	assert.ErrorIs(t, svc.Delete(context.Background(), "nope"), repositories.ErrProductNotFound)
}

func TestGetReadsThroughCache(t *testing.T) {
	id := uuid.New()
	stored := &models.Product{ID: id, Name: "Grinder", Price: decimal.NewFromInt(80), Category: "equipment"}

	repo := new(MockProductStore)
	cache := new(MockCache)
	cache.On("GetProduct", mock.Anything, id.String()).Return(catalog.Snapshot{}, errors.New("miss")).Once()
	repo.On("GetByID", mock.Anything, id).Return(stored, nil).Once()
	cache.On("SetProduct", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewCatalogService(repo, cache, nil, new(MockNotifier), nil)

	got, err := svc.Get(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, "Grinder", got.Name)

	cache.On("GetProduct", mock.Anything, id.String()).Return(got, nil).Once()
	again, err := svc.Get(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)

	repo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestListClampsPaging(t *testing.T) {
	repo := new(MockProductStore)
	repo.On("List", mock.Anything, maxPageSize, 0).Return([]models.Product{{ID: uuid.New(), Name: "Grinder"}}, int64(1), nil)

	svc := NewCatalogService(repo, nil, nil, new(MockNotifier), nil)
	page, err := svc.List(context.Background(), 1000, -5)

	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Len(t, page.Items, 1)
}

func TestSearch(t *testing.T) {
	svc := NewCatalogService(new(MockProductStore), nil, nil, new(MockNotifier), nil)
	_, err := svc.Search(context.Background(), "beans")
	assert.ErrorIs(t, err, ErrSearchUnavailable)

	index := new(MockIndex)
	index.On("SearchProducts", mock.Anything, "beans", maxPageSize).Return([]catalog.Snapshot{{ID: "prod-1"}}, nil)
	svc = NewCatalogService(new(MockProductStore), nil, index, new(MockNotifier), nil)

	results, err := svc.Search(context.Background(), "beans")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = svc.Search(context.Background(), "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
