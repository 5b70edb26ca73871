package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-scm/meridian-scm/internal/masterdata/products"
	"github.com/meridian-scm/meridian-scm/internal/masterdata/warehouses"
	"github.com/meridian-scm/meridian-scm/internal/transfer"
	"github.com/meridian-scm/meridian-scm/internal/vendors"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	TransferHandler  *transfer.Handler
	VendorHandler    *vendors.Handler
	WarehouseHandler *warehouses.Handler
	ProductHandler   *products.Handler
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		if params.VendorHandler != nil {
			r.Route("/vendors", params.VendorHandler.MountRoutes)
		}
		if params.WarehouseHandler != nil {
			r.Route("/masterdata/warehouses", params.WarehouseHandler.MountRoutes)
		}
		if params.ProductHandler != nil {
			r.Route("/masterdata/products", params.ProductHandler.MountRoutes)
		}
	})

	return r
}
