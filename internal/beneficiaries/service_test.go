package beneficiaries

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRegistry struct {
	items  map[int64]*Beneficiary
	nextID int64
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{items: make(map[int64]*Beneficiary)}
}

func (r *memoryRegistry) List(ctx context.Context, activeOnly bool) ([]Beneficiary, error) {
	var out []Beneficiary
	for id := int64(1); id <= r.nextID; id++ {
		b, ok := r.items[id]
		if !ok {
			continue
		}
		if activeOnly && !b.Active {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRegistry) Get(ctx context.Context, id int64) (Beneficiary, error) {
	b, ok := r.items[id]
	if !ok {
		return Beneficiary{}, ErrNotFound
	}
	return *b, nil
}

func (r *memoryRegistry) Insert(ctx context.Context, in UpsertInput) (Beneficiary, error) {
	r.nextID++
	b := Beneficiary{ID: r.nextID, Name: in.Name, Category: in.Category, IBAN: in.IBAN, Weight: in.Weight, Active: true}
	r.items[b.ID] = &b
	return b, nil
}

func (r *memoryRegistry) Update(ctx context.Context, id int64, in UpsertInput) (Beneficiary, error) {
	b, ok := r.items[id]
	if !ok {
		return Beneficiary{}, ErrNotFound
	}
	b.Name, b.Category, b.IBAN, b.Weight = in.Name, in.Category, in.IBAN, in.Weight
	return *b, nil
}

func (r *memoryRegistry) SetActive(ctx context.Context, id int64, active bool) error {
	b, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	b.Active = active
	return nil
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(newMemoryRegistry())

	_, err := svc.Create(context.Background(), UpsertInput{Name: "", IBAN: "SA123", Weight: decimal.NewFromInt(1), ActorID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), UpsertInput{Name: "Orphans Fund", IBAN: "SA123", Weight: decimal.NewFromInt(-1), ActorID: 1})
	require.ErrorIs(t, err, ErrValidation)

	b, err := svc.Create(context.Background(), UpsertInput{Name: "Orphans Fund", IBAN: "SA123", Weight: decimal.NewFromInt(2), ActorID: 1})
	require.NoError(t, err)
	require.True(t, b.Active)
}

func TestSourceListsOnlyActive(t *testing.T) {
	svc := NewService(newMemoryRegistry())

	first, err := svc.Create(context.Background(), UpsertInput{Name: "Orphans Fund", IBAN: "SA1", Weight: decimal.NewFromInt(2), ActorID: 1})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), UpsertInput{Name: "Students Fund", IBAN: "SA2", Weight: decimal.NewFromInt(1), ActorID: 1})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(context.Background(), second.ID, false))

	source := NewSource(svc)
	active, err := source.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, first.ID, active[0].ID)
	require.Equal(t, "SA1", active[0].IBAN)
	require.True(t, active[0].Weight.Equal(decimal.NewFromInt(2)))
}
