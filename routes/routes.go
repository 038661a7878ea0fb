package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/courtside/schedule-engine/handlers"
	"github.com/courtside/schedule-engine/middleware"
)

// SetupRoutes mounts the full API surface. Everything hangs off schedule
// versions except the run registry, which is addressed by run ID alone.
func SetupRoutes(
	router *chi.Mux,
	versionHandler *handlers.VersionHandler,
	assignmentHandler *handlers.AssignmentHandler,
	lockHandler *handlers.LockHandler,
	autoAssignHandler *handlers.AutoAssignHandler,
	policyHandler *handlers.PolicyHandler,
	reportHandler *handlers.ReportHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(nil))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthcheck", handlers.HealthcheckHandler)
	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Route("/versions", func(r chi.Router) {
		r.Post("/", versionHandler.CreateHandler)
		r.Get("/", versionHandler.ListHandler)

		r.Route("/{versionID}", func(r chi.Router) {
			r.Get("/", versionHandler.GetByIDHandler)
			r.Post("/clone", versionHandler.CloneHandler)
			r.Post("/finalize", versionHandler.FinalizeHandler)
			r.Put("/slots", versionHandler.RebuildSlotsHandler)
			r.Put("/matches", versionHandler.ImportMatchesHandler)

			r.Post("/assignments", assignmentHandler.AssignHandler)
			r.Delete("/assignments/{matchID}", assignmentHandler.UnassignHandler)

			r.Post("/match-locks", lockHandler.PinMatchHandler)
			r.Delete("/match-locks/{matchID}", lockHandler.UnpinMatchHandler)
			r.Post("/slot-locks", lockHandler.BlockSlotHandler)
			r.Delete("/slot-locks/{slotID}", lockHandler.UnblockSlotHandler)
			r.Get("/locks", lockHandler.ListLocksHandler)

			r.Post("/auto-assign", autoAssignHandler.RunHandler)
			r.Post("/auto-assign/preview", autoAssignHandler.PreviewHandler)

			r.Post("/policy-runs/preview", policyHandler.PreviewHandler)
			r.Post("/policy-runs/day", policyHandler.RunDayHandler)
			r.Post("/policy-runs/all_days", policyHandler.RunAllDaysHandler)
			r.Get("/policy-runs", policyHandler.ListRunsHandler)

			r.Get("/grid", reportHandler.GridHandler)
			r.Get("/report", reportHandler.ConflictReportHandler)
			r.Get("/quality", reportHandler.QualityReportHandler)
		})
	})

	router.Route("/policy-runs", func(r chi.Router) {
		r.Get("/diff", policyHandler.DiffHandler)
		r.Get("/{runID}", policyHandler.GetRunHandler)
		r.Post("/{runID}/replay", policyHandler.ReplayHandler)
	})

	router.Get("/ws/versions/{versionID}", webSocketHandler.ServeWs)
}
