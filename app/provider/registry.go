package provider

import (
	"errors"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var ErrFamilyNotSupported = errors.New("provider family is not supported")

type Registry struct {
	normalizers map[entity.ProviderFamily]Normalizer
}

func NewRegistry(normalizers ...Normalizer) *Registry {
	items := make(map[entity.ProviderFamily]Normalizer, len(normalizers))
	for _, n := range normalizers {
		items[n.Family()] = n
	}
	return &Registry{normalizers: items}
}

// NewDefaultRegistry registers a normalizer for every known family.
func NewDefaultRegistry(defaultCurrency string) *Registry {
	return NewRegistry(
		NewSTKCallbackNormalizer(defaultCurrency),
		NewGenericNormalizer(entity.FamilyMpesaC2B, defaultCurrency),
		NewGenericNormalizer(entity.FamilyBank, defaultCurrency),
	)
}

func (r *Registry) Get(family entity.ProviderFamily) (Normalizer, error) {
	normalizer, ok := r.normalizers[family]
	if !ok {
		return nil, ErrFamilyNotSupported
	}
	return normalizer, nil
}
