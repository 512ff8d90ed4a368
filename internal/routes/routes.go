package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventis/backstage-api/internal/authz"
	"github.com/eventis/backstage-api/internal/handlers"
	"github.com/eventis/backstage-api/internal/models"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, notif *handlers.NotificationHandler, subscribe *handlers.SubscribeHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Everything below requires a valid token.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/notifications", notif.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/unread-count", notif.UnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notif.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/read-all", notif.MarkAllRead).Methods(http.MethodPost)
	api.Handle("/notifications", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(notif.Create))).Methods(http.MethodPost)

	// Live push, one long-lived websocket per connection.
	api.HandleFunc("/notifications/subscribe", subscribe.Notifications).Methods(http.MethodGet)
	api.HandleFunc("/tasks/subscribe", subscribe.Tasks).Methods(http.MethodGet)

	return router
}
