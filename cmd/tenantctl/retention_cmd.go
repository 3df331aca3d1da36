package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	auditservices "github.com/iota-uz/tenantcore/modules/audit/services"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/middleware"
)

const shutdownTimeout = 5 * time.Second

func newRetentionCmd() *cobra.Command {
	var (
		addr string
		once bool
	)
	cmd := &cobra.Command{
		Use:   "audit-retention",
		Short: "Purge expired audit events of every active tenant, once or on AUDIT_PURGE_INTERVAL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				sweeper := auditservices.NewRetentionSweeper(a.audit, a.tenants, auditservices.SweeperOptions{
					Interval: a.conf.Audit.PurgeInterval,
					Logger:   a.logger,
				})
				if once {
					n, err := sweeper.SweepOnce(ctx)
					res := &purgeResult{Tenant: "*", Purged: n}
					if err != nil {
						return report(services.Failed(err, res), err)
					}
					return report(services.Succeeded(res), nil)
				}

				srv := &http.Server{Addr: addr, Handler: a.opsRouter(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.WithError(err).Error("ops server stopped")
						stop()
					}
				}()
				a.logger.WithField("addr", addr).Info("audit retention running")

				err := sweeper.Run(ctx)
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if serr := srv.Shutdown(shutdownCtx); serr != nil {
					a.logger.WithError(serr).Warn("ops server shutdown")
				}
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9102", "listen address for health and metrics")
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}

// opsRouter serves /healthz and, when enabled, the Prometheus registry.
func (a *app) opsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithLogger(a.conf.Logger(), middleware.LoggerOptions{RealIPHeader: a.conf.RealIPHeader}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := a.pool.Ping(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	if a.conf.Prometheus.Enabled {
		r.Handle(a.conf.Prometheus.Path, promhttp.Handler()).Methods(http.MethodGet)
	}
	return r
}
