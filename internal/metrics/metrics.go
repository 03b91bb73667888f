package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_reservations_created_total",
		Help: "Total number of reservations successfully created.",
	})

	ReservationsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_reservations_started_total",
		Help: "Total number of reservations moved to in_progress.",
	})

	ReservationsTerminatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_reservations_terminated_total",
		Help: "Total number of reservations terminated with an invoice.",
	})

	ReservationsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_reservations_cancelled_total",
		Help: "Total number of reservations cancelled, including substitution fallbacks.",
	})

	SubstitutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_substitutions_total",
		Help: "Total number of item replacements performed on live reservations.",
	})

	MaintenanceClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_maintenance_closed_total",
		Help: "Total number of maintenance records closed by the reconciler.",
	})

	SchedulerPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_scheduler_passes_total",
		Help: "Total number of completed reconciliation passes.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentflow_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	ReservationCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rentflow_reservation_cache_items",
		Help: "Current number of reservations held in the in-memory cache.",
	})
)
