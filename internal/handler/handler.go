// Package handler содержит HTTP-обработчики API кассового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/kassa-system/internal/clock"
	"github.com/mmeshcher/kassa-system/internal/middleware"
	"github.com/mmeshcher/kassa-system/internal/model"
	"github.com/mmeshcher/kassa-system/internal/repository"
	"github.com/mmeshcher/kassa-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateInvoice(ctx context.Context, draft service.InvoiceDraft) (*model.Invoice, error)
	UpdateInvoice(ctx context.Context, id string, patch service.InvoicePatch) (*model.Invoice, error)
	ListInvoices(ctx context.Context, includeArchived bool) ([]model.Invoice, error)

	ArchiveDay(ctx context.Context, suppliedAmount, openingBalance float64, employeeID string) (*model.Archive, error)
	ListArchives(ctx context.Context) ([]model.Archive, error)
	GetArchiveData(ctx context.Context, filename string) (*model.ArchiveData, error)
	LoadDashboard(ctx context.Context) (*service.Dashboard, error)

	ListEmployees(ctx context.Context) ([]model.Employee, error)
	GetEmployee(ctx context.Context, id string) (*model.Employee, error)
	CreateEmployee(ctx context.Context, draft service.EmployeeDraft) (*model.Employee, error)
	UpdateEmployee(ctx context.Context, id string, patch service.EmployeePatch) (*model.Employee, error)

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error
}

// Handler реализует HTTP-обработчики API кассового сервиса.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
	clock    *clock.OverrideClock
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware, clk *clock.OverrideClock) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
		clock:    clk,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// respondError переводит ошибки сервиса в HTTP-статусы: ошибки валидации
// и доменных правил — 400 с конкретной причиной, отсутствие сущности —
// 404, остальное — 500 без деталей.
func (h *Handler) respondError(w http.ResponseWriter, err error, logMsg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrMissingEmployee),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrAmountExceedsSales):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrInvoiceNotFound),
		errors.Is(err, repository.ErrEmployeeNotFound),
		errors.Is(err, repository.ErrArchiveNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrArchiveExists):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(logMsg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type invoiceResponse struct {
	ID              string  `json:"id"`
	TransactionType string  `json:"transactionType"`
	CustomerName    string  `json:"customerName,omitempty"`
	Description     string  `json:"description,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
	EmployeeID      string  `json:"employeeId"`
	EmployeeName    string  `json:"employeeName"`
	EmployeeAvatar  string  `json:"employeeAvatar"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	IsArchived      bool    `json:"isArchived"`
}

func toInvoiceResponse(inv model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:              inv.ID,
		TransactionType: inv.TransactionType,
		CustomerName:    inv.CustomerName,
		Description:     inv.Description,
		Amount:          float64(inv.AmountCents) / 100,
		Status:          string(inv.Status),
		EmployeeID:      inv.EmployeeID,
		EmployeeName:    inv.EmployeeName,
		EmployeeAvatar:  inv.EmployeeAvatar,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       inv.UpdatedAt.Format(time.RFC3339),
		IsArchived:      inv.IsArchived,
	}
}

func toInvoiceResponses(invoices []model.Invoice) []invoiceResponse {
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv))
	}
	return resp
}

type archiveResponse struct {
	ID                      string  `json:"id"`
	Date                    string  `json:"date"`
	TotalSales              float64 `json:"totalSales"`
	SuppliedAmount          float64 `json:"suppliedAmount"`
	OpeningAmountForNextDay float64 `json:"openingAmountForNextDay"`
	EmployeeIDWhoArchived   string  `json:"employeeIdWhoArchived"`
	CreatedAt               string  `json:"createdAt"`
	Filename                string  `json:"filename"`
}

func toArchiveResponse(a model.Archive) archiveResponse {
	return archiveResponse{
		ID:                      a.ID,
		Date:                    a.Date,
		TotalSales:              float64(a.TotalSalesCents) / 100,
		SuppliedAmount:          float64(a.SuppliedAmountCents) / 100,
		OpeningAmountForNextDay: float64(a.OpeningForNextDayCents) / 100,
		EmployeeIDWhoArchived:   a.EmployeeIDWhoArchived,
		CreatedAt:               a.CreatedAt.Format(time.RFC3339),
		Filename:                a.Filename,
	}
}

type employeeResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toEmployeeResponse(emp model.Employee) employeeResponse {
	return employeeResponse{
		ID:        emp.ID,
		Name:      emp.Name,
		Avatar:    emp.Avatar,
		IsActive:  emp.IsActive,
		CreatedAt: emp.CreatedAt.Format(time.RFC3339),
		UpdatedAt: emp.UpdatedAt.Format(time.RFC3339),
	}
}

type loginRequest struct {
	EmployeeID string `json:"employeeId"`
}

// Login выполняет вход выбором сотрудника и устанавливает cookie сеанса.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.EmployeeID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	emp, err := h.service.GetEmployee(r.Context(), req.EmployeeID)
	if err != nil {
		h.respondError(w, err, "login error", zap.String("employeeID", req.EmployeeID))
		return
	}

	session := model.Session{
		EmployeeID:     emp.ID,
		EmployeeName:   emp.Name,
		EmployeeAvatar: emp.Avatar,
	}
	if err := h.sessions.SetSessionCookie(w, session); err != nil {
		h.logger.Error("set session cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Logout завершает сеанс сотрудника.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

// UpdateSession перечитывает данные сотрудника и обновляет cookie сеанса.
// Используется после редактирования имени или аватара.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	emp, err := h.service.GetEmployee(r.Context(), session.EmployeeID)
	if err != nil {
		h.respondError(w, err, "update session error", zap.String("employeeID", session.EmployeeID))
		return
	}

	updated := model.Session{
		EmployeeID:     emp.ID,
		EmployeeName:   emp.Name,
		EmployeeAvatar: emp.Avatar,
	}
	if err := h.sessions.SetSessionCookie(w, updated); err != nil {
		h.logger.Error("set session cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetEmployees возвращает список сотрудников.
func (h *Handler) GetEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.service.ListEmployees(r.Context())
	if err != nil {
		h.respondError(w, err, "get employees error")
		return
	}

	resp := make([]employeeResponse, 0, len(employees))
	for _, emp := range employees {
		resp = append(resp, toEmployeeResponse(emp))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createEmployeeRequest struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsActive *bool  `json:"isActive"`
}

// CreateEmployee добавляет нового сотрудника.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	emp, err := h.service.CreateEmployee(r.Context(), service.EmployeeDraft{
		Name:     req.Name,
		Avatar:   req.Avatar,
		IsActive: isActive,
	})
	if err != nil {
		h.respondError(w, err, "create employee error")
		return
	}

	writeJSON(w, http.StatusCreated, toEmployeeResponse(*emp))
}

type updateEmployeeRequest struct {
	Name     *string `json:"name"`
	Avatar   *string `json:"avatar"`
	IsActive *bool   `json:"isActive"`
}

// UpdateEmployee изменяет данные сотрудника.
func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	emp, err := h.service.UpdateEmployee(r.Context(), id, service.EmployeePatch{
		Name:     req.Name,
		Avatar:   req.Avatar,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.respondError(w, err, "update employee error", zap.String("employeeID", id))
		return
	}

	writeJSON(w, http.StatusOK, toEmployeeResponse(*emp))
}

type dashboardResponse struct {
	Invoices                   []invoiceResponse `json:"invoices"`
	SalesToday                 float64           `json:"salesToday"`
	SalesYesterday             float64           `json:"salesYesterday"`
	OpeningBalance             float64           `json:"openingBalance"`
	HasUnarchivedInvoicesToday bool              `json:"hasUnarchivedInvoicesToday"`
}

// GetDashboard возвращает данные главного экрана. Перед вычислением
// статистики сервис прогоняет автоматическую зачистку прошедших дней.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.LoadDashboard(r.Context())
	if err != nil {
		h.respondError(w, err, "load dashboard error")
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Invoices:                   toInvoiceResponses(dashboard.Invoices),
		SalesToday:                 dashboard.SalesToday,
		SalesYesterday:             dashboard.YesterdaySales,
		OpeningBalance:             dashboard.OpeningBalance,
		HasUnarchivedInvoicesToday: dashboard.HasUnarchivedToday,
	})
}

// GetInvoices возвращает список фактур. По умолчанию архивные включены;
// ?includeArchived=false оставляет только неархивные.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("includeArchived") != "false"

	invoices, err := h.service.ListInvoices(r.Context(), includeArchived)
	if err != nil {
		h.respondError(w, err, "get invoices error")
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponses(invoices))
}

type createInvoiceRequest struct {
	TransactionType string  `json:"transactionType"`
	CustomerName    string  `json:"customerName"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
}

// CreateInvoice создаёт фактуру от имени сотрудника текущего сеанса.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), service.InvoiceDraft{
		TransactionType: req.TransactionType,
		CustomerName:    req.CustomerName,
		Description:     req.Description,
		Amount:          req.Amount,
		Status:          model.InvoiceStatus(req.Status),
		EmployeeID:      session.EmployeeID,
		EmployeeName:    session.EmployeeName,
		EmployeeAvatar:  session.EmployeeAvatar,
	})
	if err != nil {
		h.respondError(w, err, "create invoice error")
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceResponse(*inv))
}

type updateInvoiceRequest struct {
	TransactionType *string  `json:"transactionType"`
	CustomerName    *string  `json:"customerName"`
	Description     *string  `json:"description"`
	Amount          *float64 `json:"amount"`
	Status          *string  `json:"status"`
}

// UpdateInvoice изменяет фактуру.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var status *model.InvoiceStatus
	if req.Status != nil {
		s := model.InvoiceStatus(*req.Status)
		status = &s
	}

	inv, err := h.service.UpdateInvoice(r.Context(), id, service.InvoicePatch{
		TransactionType: req.TransactionType,
		CustomerName:    req.CustomerName,
		Description:     req.Description,
		Amount:          req.Amount,
		Status:          status,
	})
	if err != nil {
		h.respondError(w, err, "update invoice error", zap.String("invoiceID", id))
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(*inv))
}

// GetArchives возвращает индекс архивов.
func (h *Handler) GetArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.service.ListArchives(r.Context())
	if err != nil {
		h.respondError(w, err, "get archives error")
		return
	}

	resp := make([]archiveResponse, 0, len(archives))
	for _, a := range archives {
		resp = append(resp, toArchiveResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createArchiveRequest struct {
	SuppliedAmount float64 `json:"suppliedAmount"`
	OpeningBalance float64 `json:"openingBalance"`
}

// CreateArchive закрывает сегодняшний день от имени сотрудника текущего сеанса.
func (h *Handler) CreateArchive(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	archive, err := h.service.ArchiveDay(r.Context(), req.SuppliedAmount, req.OpeningBalance, session.EmployeeID)
	if err != nil {
		h.respondError(w, err, "archive day error", zap.String("employeeID", session.EmployeeID))
		return
	}

	writeJSON(w, http.StatusCreated, toArchiveResponse(*archive))
}

type archiveDataResponse struct {
	archiveResponse
	Invoices []invoiceResponse `json:"invoices"`
}

// GetArchiveData возвращает снимок архива по имени файла.
func (h *Handler) GetArchiveData(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	data, err := h.service.GetArchiveData(r.Context(), filename)
	if err != nil {
		h.respondError(w, err, "get archive data error", zap.String("filename", filename))
		return
	}

	writeJSON(w, http.StatusOK, archiveDataResponse{
		archiveResponse: toArchiveResponse(data.Archive),
		Invoices:        toInvoiceResponses(data.Invoices),
	})
}

// GetSettings возвращает настройки приложения.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.respondError(w, err, "get settings error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings заменяет настройки приложения.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SaveSettings(r.Context(), settings); err != nil {
		h.respondError(w, err, "update settings error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type testDateResponse struct {
	FakeDate        *string `json:"fakeDate"`
	CurrentRealDate string  `json:"currentRealDate"`
}

// GetTestDate возвращает текущее переопределение часов.
func (h *Handler) GetTestDate(w http.ResponseWriter, r *http.Request) {
	resp := testDateResponse{
		CurrentRealDate: time.Now().Format(time.RFC3339),
	}
	if override, ok := h.clock.Override(); ok {
		v := override.Format(time.RFC3339)
		resp.FakeDate = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type setTestDateRequest struct {
	DateString string `json:"dateString"`
}

// SetTestDate устанавливает или сбрасывает переопределение часов.
// Пустая строка возвращает сервис к реальному времени.
func (h *Handler) SetTestDate(w http.ResponseWriter, r *http.Request) {
	var req setTestDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.DateString == "" {
		h.clock.Clear()
		writeJSON(w, http.StatusOK, testDateResponse{
			CurrentRealDate: time.Now().Format(time.RFC3339),
		})
		return
	}

	t, err := time.Parse(time.RFC3339, req.DateString)
	if err != nil {
		http.Error(w, "invalid date format", http.StatusBadRequest)
		return
	}

	h.clock.Set(t)
	v := t.Format(time.RFC3339)
	writeJSON(w, http.StatusOK, testDateResponse{
		FakeDate:        &v,
		CurrentRealDate: time.Now().Format(time.RFC3339),
	})
}
