// Package server exposes the booking engine over HTTP. Mutating routes sit
// behind staff basic auth; /metrics stays open for the scraper.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/rental"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type RentalService interface {
	CreateReservation(ctx context.Context, req rental.CreateRequest) (*repository.Reservation, error)
	ModifyReservation(ctx context.Context, id string, patch rental.Patch) (*repository.Reservation, error)
	StartReservation(ctx context.Context, id string) (*repository.Reservation, error)
	TerminateReservation(ctx context.Context, id string, req rental.TerminateRequest) (*repository.Invoice, error)
	DeleteReservation(ctx context.Context, id string) (*repository.Reservation, error)
	GetReservation(ctx context.Context, id string) (*repository.Reservation, error)
	ListReservations(ctx context.Context, filter repository.ReservationFilter) ([]*repository.Reservation, error)
	QueryAvailability(ctx context.Context, categoryID string, start, end time.Time, excludeReservationID string) (*rental.Availability, error)
	ListReparations(ctx context.Context, filter repository.MaintenanceFilter) ([]*repository.MaintenanceRecord, error)
	ListInvoices(ctx context.Context, filter repository.InvoiceFilter) ([]*repository.Invoice, error)
	ListNotifications(ctx context.Context, customerID string) ([]*repository.Notification, error)
	AcknowledgeNotification(ctx context.Context, id string) error
}

type ItemStorage interface {
	Create(ctx context.Context, item *repository.Item) error
	GetByID(ctx context.Context, id string) (*repository.Item, error)
	GetByCategory(ctx context.Context, categoryID string) ([]*repository.Item, error)
	List(ctx context.Context) ([]*repository.Item, error)
	UpdateCondition(ctx context.Context, id string, condition repository.Condition) error
	Delete(ctx context.Context, id string) error
}

type CategoryStorage interface {
	Create(ctx context.Context, category *repository.Category) error
	GetByID(ctx context.Context, id string) (*repository.Category, error)
	List(ctx context.Context) ([]*repository.Category, error)
	Delete(ctx context.Context, id string) error
}

type CustomerStorage interface {
	Create(ctx context.Context, customer *repository.Customer) error
	GetByID(ctx context.Context, id string) (*repository.Customer, error)
}

type StaffStorage interface {
	Create(ctx context.Context, s *repository.Staff, password string) error
	List(ctx context.Context) ([]*repository.Staff, error)
	ValidateCredentials(ctx context.Context, username, password string) (bool, error)
}

// ReservationGuard answers whether any reservation still references an
// item. Items with history are never hard-deleted.
type ReservationGuard interface {
	ExistsWithItem(ctx context.Context, itemID string) (bool, error)
}

type Server struct {
	rental       RentalService
	items        ItemStorage
	categories   CategoryStorage
	customers    CustomerStorage
	staff        StaffStorage
	reservations ReservationGuard
	logger       *zap.Logger
	server       *http.Server
}

func New(
	rentalService RentalService,
	items ItemStorage,
	categories CategoryStorage,
	customers CustomerStorage,
	staff StaffStorage,
	reservations ReservationGuard,
	logger *zap.Logger,
) *Server {
	return &Server{
		rental:       rentalService,
		items:        items,
		categories:   categories,
		customers:    customers,
		staff:        staff,
		reservations: reservations,
		logger:       logger,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/").Subrouter()
	api.Use(s.basicAuthMiddleware)

	api.HandleFunc("/items", s.handleCreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items", s.handleListItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", s.handleGetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", s.handleDeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/condition", s.handleUpdateItemCondition).Methods(http.MethodPut)

	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.handleGetCategory).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/customers", s.handleCreateCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/{id}", s.handleGetCustomer).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}/notifications", s.handleListNotifications).Methods(http.MethodGet)

	api.HandleFunc("/staff", s.handleCreateStaff).Methods(http.MethodPost)
	api.HandleFunc("/staff", s.handleListStaff).Methods(http.MethodGet)

	api.HandleFunc("/availability", s.handleQueryAvailability).Methods(http.MethodGet)

	api.HandleFunc("/reservations", s.handleCreateReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations", s.handleListReservations).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.handleGetReservation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.handleModifyReservation).Methods(http.MethodPatch)
	api.HandleFunc("/reservations/{id}", s.handleDeleteReservation).Methods(http.MethodDelete)
	api.HandleFunc("/reservations/{id}/start", s.handleStartReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/terminate", s.handleTerminateReservation).Methods(http.MethodPost)

	api.HandleFunc("/reparations", s.handleListReparations).Methods(http.MethodGet)
	api.HandleFunc("/invoices", s.handleListInvoices).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/check", s.handleAcknowledgeNotification).Methods(http.MethodPost)

	return router
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		valid, err := s.staff.ValidateCredentials(r.Context(), username, password)
		if err != nil || !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the failure taxonomy onto HTTP statuses. Unknown
// errors stay opaque 500s.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rental.ErrNotFound), errors.Is(err, repository.ErrObjectNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rental.ErrConflict),
		errors.Is(err, rental.ErrPriceChanged),
		errors.Is(err, rental.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rental.ErrInvalidCategory),
		errors.Is(err, rental.ErrMissingReparationWindow),
		errors.Is(err, rental.ErrItemMismatch),
		errors.Is(err, rental.ErrNoStaff):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rental.ErrInvalidInterval):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseDate accepts a plain date or a full RFC3339 timestamp.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
