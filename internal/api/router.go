package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/api/middleware"
)

func NewRouter(handlers *Handlers, webDir string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", handlers.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", handlers.Login)
		r.Post("/logout", handlers.Logout)
		r.Get("/session", handlers.GetSession)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(handlers.auth))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCart)
			r.Delete("/", handlers.ClearCart)
			r.Post("/items", handlers.AddToCart)
			r.Put("/items/{id}", handlers.UpdateCartItem)
			r.Delete("/items/{id}", handlers.RemoveFromCart)
			r.Post("/undo", handlers.UndoRemove)
			r.Post("/coupon", handlers.ApplyCoupon)
			r.Delete("/coupon", handlers.RemoveCoupon)
			r.Get("/summary", handlers.GetSummary)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", handlers.GetCheckout)
			r.Put("/shipping", handlers.SetShipping)
			r.Put("/delivery", handlers.SelectDelivery)
			r.Put("/payment", handlers.SelectPayment)
			r.Post("/next", handlers.NextStep)
			r.Post("/back", handlers.PreviousStep)
			r.Post("/place", handlers.RequestPlaceOrder)
			r.Post("/place/cancel", handlers.CancelPlaceOrder)
			r.Post("/confirm", handlers.ConfirmPlaceOrder)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/open", handlers.OpenChat)
			r.Post("/close", handlers.CloseChat)
			r.Post("/retry", handlers.RetryChat)
			r.Get("/messages", handlers.GetMessages)
			r.Post("/messages", handlers.SendMessage)
		})
	})

	// Static files (web UI)
	if webDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(webDir)))
	}

	return r
}
