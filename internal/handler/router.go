package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/minimart-pos/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кассового сервиса.
// Запросы из браузера разрешены только с corsOrigins.
func (h *Handler) SetupRouter(corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", idempotencyHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger, h.metrics))
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/cashier/register", h.Register)
		r.Post("/cashier/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cashier/me", h.Me)
			r.Get("/cashiers", h.ListCashiers)
			r.Patch("/cashiers/{id}/role", h.ChangeCashierRole)

			r.Get("/products", h.ListProducts)
			r.Post("/products", h.CreateProduct)
			r.Get("/products/low-stock", h.ListLowStockProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/products/{id}/stock", h.AdjustStock)
			r.Get("/products/{id}/movements", h.ListStockMovements)

			r.Get("/customers", h.ListCustomers)
			r.Post("/customers", h.CreateCustomer)
			r.Get("/customers/{id}", h.GetCustomer)
			r.Put("/customers/{id}", h.UpdateCustomer)
			r.Delete("/customers/{id}", h.DeleteCustomer)

			r.Post("/checkout/quote", h.Quote)
			r.Post("/checkout", h.Checkout)

			r.Get("/transactions", h.ListTransactions)
			r.Get("/transactions/{id}", h.GetTransaction)
			r.Patch("/transactions/{id}", h.CorrectTransaction)
			r.Patch("/transactions/{id}/status", h.CorrectTransaction)
			r.Delete("/transactions/{id}", h.DeleteTransaction)

			r.Get("/sales/summary", h.SalesSummary)

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", http.StatusText(http.StatusNotFound), nil)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", http.StatusText(http.StatusMethodNotAllowed), nil)
	})

	return r
}
