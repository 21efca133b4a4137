package beneficiaries

import (
	"context"

	"github.com/amanah-erp/amanah-erp/internal/distribution"
)

// Repository is the persistence port for the registry.
type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]Beneficiary, error)
	Get(ctx context.Context, id int64) (Beneficiary, error)
	Insert(ctx context.Context, in UpsertInput) (Beneficiary, error)
	Update(ctx context.Context, id int64, in UpsertInput) (Beneficiary, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service manages the beneficiary registry.
type Service struct {
	repo Repository
}

// NewService constructs a beneficiaries Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns beneficiaries, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Beneficiary, error) {
	return s.repo.List(ctx, activeOnly)
}

// Get loads one beneficiary.
func (s *Service) Get(ctx context.Context, id int64) (Beneficiary, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new beneficiary.
func (s *Service) Create(ctx context.Context, in UpsertInput) (Beneficiary, error) {
	if err := in.Validate(); err != nil {
		return Beneficiary{}, err
	}
	return s.repo.Insert(ctx, in)
}

// Update replaces a beneficiary's registry data.
func (s *Service) Update(ctx context.Context, id int64, in UpsertInput) (Beneficiary, error) {
	if err := in.Validate(); err != nil {
		return Beneficiary{}, err
	}
	return s.repo.Update(ctx, id, in)
}

// SetActive toggles whether the beneficiary participates in
// distributions.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// Source adapts the registry to the distribution calculator's view.
type Source struct {
	service *Service
}

// NewSource wraps the service for the distribution module.
func NewSource(service *Service) *Source {
	return &Source{service: service}
}

// ListActive implements distribution.BeneficiarySource.
func (s *Source) ListActive(ctx context.Context) ([]distribution.Beneficiary, error) {
	registered, err := s.service.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]distribution.Beneficiary, 0, len(registered))
	for _, b := range registered {
		out = append(out, distribution.Beneficiary{
			ID:     b.ID,
			Name:   b.Name,
			IBAN:   b.IBAN,
			Weight: b.Weight,
		})
	}
	return out, nil
}
