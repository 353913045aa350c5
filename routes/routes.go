package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"

	"github.com/pongarena/backend/handlers"
	"github.com/pongarena/backend/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	tournamentHandler *handlers.TournamentHandler,
	inviteHandler *handlers.InviteHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/tournaments", func(r chi.Router) {
		// Публичный маршрут для просмотра сетки
		r.Get("/{tournamentID}", tournamentHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/", tournamentHandler.Create)
			r.Post("/{tournamentID}/join", tournamentHandler.Join)
		})
	})

	router.Route("/invitations", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/", inviteHandler.Create)
		r.Post("/{invitationID}/accept", inviteHandler.Accept)
	})

	// Websocket endpoints authenticate inside the upgrade flow so a
	// rejected client still receives an error frame.
	router.Route("/ws", func(r chi.Router) {
		r.Get("/game/{gameID}", webSocketHandler.ServeGame)
		r.Get("/tournaments/{tournamentID}", webSocketHandler.ServeTournament)
		r.Get("/invitations/{room}", webSocketHandler.ServeInvitation)
		r.Get("/online", webSocketHandler.ServeOnlineStatus)
	})
}
