package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/kassa-system/internal/middleware"
)

// SetupRouter настраивает маршруты API кассового сервиса.
func (h *Handler) SetupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		r.Get("/employees", h.GetEmployees)
		r.Post("/employees", h.CreateEmployee)

		r.Get("/test-date", h.GetTestDate)
		r.Post("/test-date", h.SetTestDate)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Middleware)

			r.Post("/auth/update-session", h.UpdateSession)

			r.Patch("/employees/{id}", h.UpdateEmployee)

			r.Get("/dashboard", h.GetDashboard)

			r.Get("/invoices", h.GetInvoices)
			r.Post("/invoices", h.CreateInvoice)
			r.Patch("/invoices/{id}", h.UpdateInvoice)

			r.Get("/archives", h.GetArchives)
			r.Post("/archives", h.CreateArchive)
			r.Get("/archives/{filename}", h.GetArchiveData)

			r.Get("/settings", h.GetSettings)
			r.Patch("/settings", h.UpdateSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
