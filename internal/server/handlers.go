package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dkhalmer/rentflow/internal/rental"
	"github.com/dkhalmer/rentflow/internal/repository"
)

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		CategoryID string `json:"category_id"`
		BasePrice  int    `json:"base_price"`
		Condition  string `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.CategoryID == "" {
		respondError(w, http.StatusBadRequest, "Missing name or category_id")
		return
	}

	condition := repository.Condition(req.Condition)
	if req.Condition == "" {
		condition = repository.ConditionPerfect
	}
	if !condition.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown condition: "+req.Condition)
		return
	}

	if _, err := s.categories.GetByID(r.Context(), req.CategoryID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	now := time.Now().UTC()
	item := &repository.Item{
		ID:         uuid.NewString(),
		Name:       req.Name,
		CategoryID: req.CategoryID,
		BasePrice:  req.BasePrice,
		Condition:  condition,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.items.Create(r.Context(), item); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	var (
		items []*repository.Item
		err   error
	)
	if categoryID := r.URL.Query().Get("category_id"); categoryID != "" {
		items, err = s.items.GetByCategory(r.Context(), categoryID)
	} else {
		items, err = s.items.List(r.Context())
	}
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleUpdateItemCondition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Condition string `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	condition := repository.Condition(req.Condition)
	if !condition.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown condition: "+req.Condition)
		return
	}

	if err := s.items.UpdateCondition(r.Context(), mux.Vars(r)["id"], condition); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Condition updated"})
}

// handleDeleteItem refuses to remove an item any reservation, past or
// present, still references. Invoices and history stay resolvable.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	referenced, err := s.reservations.ExistsWithItem(r.Context(), itemID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if referenced {
		respondError(w, http.StatusConflict, "Item is referenced by reservations")
		return
	}

	if err := s.items.Delete(r.Context(), itemID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Kind        string   `json:"kind"`
		Components  []string `json:"components"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Missing name")
		return
	}

	kind := repository.CategoryKind(req.Kind)
	switch kind {
	case repository.CategorySingle:
		if len(req.Components) != 0 {
			respondError(w, http.StatusBadRequest, "Single categories take no components")
			return
		}
	case repository.CategoryBundle:
		if len(req.Components) == 0 {
			respondError(w, http.StatusBadRequest, "Bundle categories need components")
			return
		}
		for _, componentID := range req.Components {
			component, err := s.categories.GetByID(r.Context(), componentID)
			if err != nil {
				s.respondServiceError(w, err)
				return
			}
			// Bundles of bundles are not allowed; one level keeps
			// pricing and substitution tractable.
			if component.Kind != repository.CategorySingle {
				respondError(w, http.StatusBadRequest, "Bundle components must be single categories")
				return
			}
		}
	default:
		respondError(w, http.StatusBadRequest, "Unknown kind: "+req.Kind)
		return
	}

	category := &repository.Category{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		Components:  req.Components,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.categories.Create(r.Context(), category); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.categories.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.categories.List(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := mux.Vars(r)["id"]

	items, err := s.items.GetByCategory(r.Context(), categoryID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if len(items) > 0 {
		respondError(w, http.StatusConflict, "Category still has items")
		return
	}

	if err := s.categories.Delete(r.Context(), categoryID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" {
		respondError(w, http.StatusBadRequest, "Missing username")
		return
	}

	customer := &repository.Customer{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.customers.Create(r.Context(), customer); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customers.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing username or password")
		return
	}

	member := &repository.Staff{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.staff.Create(r.Context(), member, req.Password); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.staff.List(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, staff)
}

func (s *Server) handleQueryAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	categoryID := query.Get("category_id")
	if categoryID == "" {
		respondError(w, http.StatusBadRequest, "Missing category_id")
		return
	}
	start, err := parseDate(query.Get("start"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid start date. Use YYYY-MM-DD")
		return
	}
	end, err := parseDate(query.Get("end"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid end date. Use YYYY-MM-DD")
		return
	}

	availability, err := s.rental.QueryAvailability(r.Context(), categoryID, start, end, query.Get("exclude_reservation_id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, availability)
}

type reservationRequest struct {
	CustomerID string   `json:"customer_id"`
	StaffID    string   `json:"staff_id"`
	CategoryID string   `json:"category_id"`
	ItemIDs    []string `json:"item_ids"`
	Price      int      `json:"price"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CustomerID == "" || req.CategoryID == "" || len(req.ItemIDs) == 0 {
		respondError(w, http.StatusBadRequest, "Missing customer_id, category_id or item_ids")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid start_date. Use YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid end_date. Use YYYY-MM-DD")
		return
	}

	resv, err := s.rental.CreateReservation(r.Context(), rental.CreateRequest{
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		CategoryID: req.CategoryID,
		ItemIDs:    req.ItemIDs,
		Price:      req.Price,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resv)
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	resv, err := s.rental.GetReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resv)
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.ReservationFilter{
		CustomerID: query.Get("customer_id"),
		StaffID:    query.Get("staff_id"),
		State:      repository.ReservationState(query.Get("state")),
	}
	if from := query.Get("from"); from != "" {
		t, err := parseDate(from)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid from date. Use YYYY-MM-DD")
			return
		}
		filter.From = &t
	}
	if to := query.Get("to"); to != "" {
		t, err := parseDate(to)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid to date. Use YYYY-MM-DD")
			return
		}
		filter.To = &t
	}

	resvs, err := s.rental.ListReservations(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resvs)
}

// handleModifyReservation distinguishes absent fields from zero values:
// only keys present in the body are changed.
func (s *Server) handleModifyReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID *string  `json:"customer_id"`
		StaffID    *string  `json:"staff_id"`
		CategoryID *string  `json:"category_id"`
		ItemIDs    []string `json:"item_ids"`
		Price      *int     `json:"price"`
		StartDate  *string  `json:"start_date"`
		EndDate    *string  `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := rental.Patch{
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		CategoryID: req.CategoryID,
		ItemIDs:    req.ItemIDs,
		Price:      req.Price,
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start_date. Use YYYY-MM-DD")
			return
		}
		patch.StartDate = &t
	}
	if req.EndDate != nil {
		t, err := parseDate(*req.EndDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end_date. Use YYYY-MM-DD")
			return
		}
		patch.EndDate = &t
	}

	resv, err := s.rental.ModifyReservation(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resv)
}

func (s *Server) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	resv, err := s.rental.DeleteReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resv)
}

func (s *Server) handleStartReservation(w http.ResponseWriter, r *http.Request) {
	resv, err := s.rental.StartReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resv)
}

func (s *Server) handleTerminateReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReturnedItems map[string]struct {
			Condition   string  `json:"condition"`
			RepairStart *string `json:"repair_start"`
			RepairEnd   *string `json:"repair_end"`
		} `json:"returned_items"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	returned := make(map[string]rental.ReturnedItem, len(req.ReturnedItems))
	for itemID, ret := range req.ReturnedItems {
		entry := rental.ReturnedItem{Condition: repository.Condition(ret.Condition)}
		if ret.RepairStart != nil {
			t, err := parseDate(*ret.RepairStart)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid repair_start. Use YYYY-MM-DD")
				return
			}
			entry.RepairStart = &t
		}
		if ret.RepairEnd != nil {
			t, err := parseDate(*ret.RepairEnd)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid repair_end. Use YYYY-MM-DD")
				return
			}
			entry.RepairEnd = &t
		}
		returned[itemID] = entry
	}

	invoice, err := s.rental.TerminateReservation(r.Context(), mux.Vars(r)["id"], rental.TerminateRequest{
		ReturnedItems: returned,
		Notes:         req.Notes,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, invoice)
}

func (s *Server) handleListReparations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.MaintenanceFilter{ItemID: query.Get("item_id")}
	if completed := query.Get("completed"); completed != "" {
		value := completed == "true"
		filter.Completed = &value
	}
	if from := query.Get("from"); from != "" {
		t, err := parseDate(from)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid from date. Use YYYY-MM-DD")
			return
		}
		filter.From = &t
	}
	if to := query.Get("to"); to != "" {
		t, err := parseDate(to)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid to date. Use YYYY-MM-DD")
			return
		}
		filter.To = &t
	}

	records, err := s.rental.ListReparations(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	invoices, err := s.rental.ListInvoices(r.Context(), repository.InvoiceFilter{
		CustomerID:    query.Get("customer_id"),
		StaffID:       query.Get("staff_id"),
		ReservationID: query.Get("reservation_id"),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.rental.ListNotifications(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleAcknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.rental.AcknowledgeNotification(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Notification checked"})
}
