package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steg2011/netvault/internal/api/handlers"
	mw "github.com/steg2011/netvault/internal/api/middleware"
)

type Dependencies struct {
	HealthHandler    *handlers.HealthHandler
	BackupsHandler   *handlers.BackupsHandler
	InventoryHandler *handlers.InventoryHandler
	WSHandler        *handlers.WSHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))

	// Health endpoints
	r.Get("/healthz", dep.HealthHandler.Liveness)
	r.Get("/readyz", dep.HealthHandler.Readiness)

	// Process metrics
	r.Handle("/metrics", promhttp.Handler())

	// Progress stream. Compression stays off this route: the upgrade needs
	// the raw http.Hijacker.
	r.Get("/ws/job/{id}", dep.WSHandler.JobProgress)

	r.Route("/api", func(api chi.Router) {
		api.Use(chimid.Compress(5))
		api.Route("/backups", func(br chi.Router) {
			br.Post("/jobs", dep.BackupsHandler.CreateJob)
			br.Get("/jobs", dep.BackupsHandler.ListJobs)
			br.Get("/jobs/{id}", dep.BackupsHandler.GetJob)
			br.Get("/device/{id}/history", dep.BackupsHandler.DeviceHistory)
			br.Get("/diff/{id}", dep.BackupsHandler.Diff)
		})

		api.Route("/inventory", func(ir chi.Router) {
			ir.Route("/sites", func(sr chi.Router) {
				sr.Get("/", dep.InventoryHandler.ListSites)
				sr.Post("/", dep.InventoryHandler.CreateSite)
				sr.Delete("/{id}", dep.InventoryHandler.DeleteSite)
			})
			ir.Route("/devices", func(dr chi.Router) {
				dr.Get("/", dep.InventoryHandler.ListDevices)
				dr.Post("/", dep.InventoryHandler.CreateDevice)
				dr.Get("/{id}", dep.InventoryHandler.GetDevice)
				dr.Put("/{id}", dep.InventoryHandler.UpdateDevice)
				dr.Delete("/{id}", dep.InventoryHandler.DeleteDevice)
			})
			ir.Route("/credentials", func(cr chi.Router) {
				cr.Get("/", dep.InventoryHandler.ListCredentialSets)
				cr.Post("/", dep.InventoryHandler.CreateCredentialSet)
				cr.Delete("/{id}", dep.InventoryHandler.DeleteCredentialSet)
			})
		})
	})

	return r
}
