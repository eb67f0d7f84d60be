package kds

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

type HandlerDeps struct {
	Service *TicketService
	Repo    TicketRepository
	Cache   *TicketStateCache
	SLA     *SLAEngine
	Hub     *EventHub
}

type Handler struct {
	service *TicketService
	repo    TicketRepository
	cache   *TicketStateCache
	sla     *SLAEngine
	hub     *EventHub
	logger  apt.Logger
	config  *apt.Config
	tlm     *telemetry.HTTP
}

func NewHandler(deps HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		service: deps.Service,
		repo:    deps.Repo,
		cache:   deps.Cache,
		sla:     deps.SLA,
		hub:     deps.Hub,
		logger:  logger,
		config:  config,
		tlm:     telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.CreateTickets)
		r.Get("/", h.ListTickets)
		r.Get("/{id}", h.GetTicket)
		r.Patch("/{id}/state", h.UpdateTicketState)
		r.Patch("/{id}/cancel", h.CancelTicket)
		r.Post("/{id}/reprint", h.ReprintTicket)
		r.Get("/{id}/sla", h.TicketSLA)
	})
	r.Route("/items", func(r chi.Router) {
		r.Patch("/state", h.BulkUpdateItems)
		r.Patch("/{id}/state", h.UpdateItemState)
		r.Get("/{id}/sla", h.ItemSLA)
	})
	r.Get("/stations/{id}/summary", h.StationSummary)
	if h.hub != nil {
		r.Get("/events/stream", h.hub.ServeSSE)
	}
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

// respondDomainError maps the domain error taxonomy onto HTTP status
// codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case IsValidation(err):
		apt.RespondError(w, http.StatusBadRequest, err.Error())
	case IsNotFound(err):
		apt.RespondError(w, http.StatusNotFound, err.Error())
	case IsInvalidTransition(err):
		apt.RespondError(w, http.StatusConflict, err.Error())
	default:
		apt.RespondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) CreateTickets(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateTickets")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var payload struct {
		OrderID string   `json:"order_id"`
		ItemIDs []string `json:"item_ids"`
		Actor   string   `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var selected []OrderItemID
	for _, raw := range payload.ItemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}
		selected = append(selected, id)
	}

	ticketIDs, err := h.service.CreateTickets(ctx, orderID, selected, payload.Actor)
	if err != nil {
		log.Errorf("cannot create tickets: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusCreated, map[string]interface{}{
		"ticket_ids": ticketIDs,
	}, nil)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTickets")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	if orderIDStr := r.URL.Query().Get("order_id"); orderIDStr != "" {
		orderID, err := uuid.Parse(orderIDStr)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}
		tickets, err := h.repo.ListByOrderID(ctx, orderID)
		if err != nil {
			log.Errorf("cannot list tickets: %v", err)
			apt.RespondError(w, http.StatusInternalServerError, "Could not list tickets")
			return
		}
		apt.Respond(w, http.StatusOK, map[string]interface{}{"tickets": tickets}, nil)
		return
	}

	station := r.URL.Query().Get("station")
	state := r.URL.Query().Get("state")

	var tickets []*Ticket
	switch {
	case h.cache == nil:
		tickets = nil
	case station != "" && state != "":
		tickets = h.cache.GetByStationAndState(station, state)
	case station != "":
		tickets = h.cache.GetByStation(station)
	case state != "":
		tickets = h.cache.GetByState(state)
	default:
		tickets = h.cache.GetAll()
	}

	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"tickets": tickets,
	}, nil)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTicket")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid ticket ID")
		return
	}

	if h.cache != nil {
		if ticket := h.cache.Get(id); ticket != nil {
			apt.Respond(w, http.StatusOK, ticket, nil)
			return
		}
	}

	ticket, err := h.repo.FindByID(ctx, id)
	if err != nil {
		log.Errorf("cannot find ticket: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, ticket, nil)
}

func (h *Handler) UpdateItemState(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateItemState")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	var payload struct {
		State string `json:"state"`
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	change, err := h.service.UpdateItemState(ctx, id, payload.State, payload.Actor)
	if err != nil {
		log.Errorf("cannot update item state: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, change, nil)
}

func (h *Handler) UpdateTicketState(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateTicketState")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid ticket ID")
		return
	}

	var payload struct {
		State string `json:"state"`
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	change, err := h.service.UpdateTicketState(ctx, id, payload.State, payload.Actor)
	if err != nil {
		log.Errorf("cannot update ticket state: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, change, nil)
}

func (h *Handler) BulkUpdateItems(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.BulkUpdateItems")
	defer finish()
	ctx := r.Context()

	var payload struct {
		ItemIDs []string `json:"item_ids"`
		State   string   `json:"state"`
		Actor   string   `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	if len(payload.ItemIDs) == 0 {
		apt.RespondError(w, http.StatusBadRequest, "No item IDs provided")
		return
	}

	itemIDs := make([]ItemID, 0, len(payload.ItemIDs))
	for _, raw := range payload.ItemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}
		itemIDs = append(itemIDs, id)
	}

	result := h.service.BulkUpdateItems(ctx, itemIDs, payload.State, payload.Actor)
	apt.Respond(w, http.StatusOK, result, nil)
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CancelTicket")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid ticket ID")
		return
	}

	var payload struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	change, err := h.service.CancelTicket(ctx, id, payload.Reason, payload.Actor)
	if err != nil {
		log.Errorf("cannot cancel ticket: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, change, nil)
}

func (h *Handler) ReprintTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReprintTicket")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid ticket ID")
		return
	}

	var payload struct {
		Printer string `json:"printer"`
		Copies  int    `json:"copies"`
		Actor   string `json:"actor"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	entry, err := h.service.ReprintTicket(ctx, id, payload.Printer, payload.Copies, payload.Actor)
	if err != nil {
		log.Errorf("cannot reprint ticket: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, entry, nil)
}

func (h *Handler) TicketSLA(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TicketSLA")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid ticket ID")
		return
	}

	ticket, err := h.repo.FindByID(ctx, id)
	if err != nil {
		log.Errorf("cannot find ticket: %v", err)
		respondDomainError(w, err)
		return
	}

	apt.Respond(w, http.StatusOK, h.sla.TicketSLA(ticket, time.Now()), nil)
}

func (h *Handler) ItemSLA(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ItemSLA")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}

	ticket, err := h.repo.FindByItemID(ctx, id)
	if err != nil {
		log.Errorf("cannot find item: %v", err)
		respondDomainError(w, err)
		return
	}

	item := ticket.ItemByID(id)
	if item == nil {
		apt.RespondError(w, http.StatusNotFound, "Item not found")
		return
	}

	apt.Respond(w, http.StatusOK, h.sla.ItemSLA(ticket, item, time.Now()), nil)
}

func (h *Handler) StationSummary(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.StationSummary")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	stationID := chi.URLParam(r, "id")
	if stationID == "" {
		apt.RespondError(w, http.StatusBadRequest, "Invalid station ID")
		return
	}

	var tickets []*Ticket
	if h.cache != nil && h.cache.Count() > 0 {
		tickets = h.cache.GetByStation(stationID)
	} else {
		stored, err := h.repo.List(ctx, TicketFilter{StationID: &stationID})
		if err != nil {
			log.Errorf("cannot list tickets for station %s: %v", stationID, err)
			apt.RespondError(w, http.StatusInternalServerError, "Could not load station tickets")
			return
		}
		for i := range stored {
			tickets = append(tickets, &stored[i])
		}
	}

	apt.Respond(w, http.StatusOK, h.sla.Summarize(stationID, tickets, time.Now()), nil)
}
