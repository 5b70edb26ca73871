package products

import (
	"fmt"
	"strings"

	"github.com/meridian-scm/meridian-scm/internal/platform/httpx"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Unit) == "" {
		return fmt.Errorf("%w: product unit is required", httpx.ErrValidation)
	}
	return nil
}
