// Package service реализует бизнес-логику кассового сервиса.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/kassa-system/internal/clock"
	"github.com/mmeshcher/kassa-system/internal/model"
	"github.com/mmeshcher/kassa-system/internal/repository"
	"github.com/mmeshcher/kassa-system/internal/validation"
)

// ErrValidation возвращается при некорректных входных данных.
var (
	ErrValidation = errors.New("validation failed")
	// ErrMissingEmployee возвращается, если для архивации не указан сотрудник.
	ErrMissingEmployee = errors.New("employee id is required")
	// ErrInvalidAmount возвращается при отрицательной или нечисловой сумме.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountExceedsSales возвращается, если сдаваемая сумма превышает продажи дня.
	ErrAmountExceedsSales = errors.New("supplied amount cannot exceed total sales")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	ListInvoices(ctx context.Context) ([]model.Invoice, error)
	ListUnarchivedInvoices(ctx context.Context) ([]model.Invoice, error)
	AddInvoice(ctx context.Context, inv model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	SaveInvoice(ctx context.Context, inv model.Invoice) error
	MarkInvoicesArchived(ctx context.Context, ids []string, updatedAt time.Time) error

	ListArchives(ctx context.Context) ([]model.Archive, error)
	AddArchive(ctx context.Context, data model.ArchiveData) error
	GetArchiveData(ctx context.Context, filename string) (*model.ArchiveData, error)

	ListEmployees(ctx context.Context) ([]model.Employee, error)
	GetEmployee(ctx context.Context, id string) (*model.Employee, error)
	AddEmployee(ctx context.Context, emp model.Employee) error
	SaveEmployee(ctx context.Context, emp model.Employee) error

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error
}

// Service содержит бизнес-логику кассового сервиса.
type Service struct {
	repo      Repository
	cal       *clock.Calendar
	logger    *zap.Logger
	validator *validation.Validator

	// archiveMu сериализует архивацию: два параллельных закрытия дня
	// не должны прочитать один и тот же набор неархивных фактур.
	archiveMu sync.Mutex
}

// NewService создаёт новый сервис с указанным репозиторием и календарём.
func NewService(repo Repository, cal *clock.Calendar, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		cal:       cal,
		logger:    logger,
		validator: validation.New(),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// poundsToCents переводит сумму в фунтах в пиастры.
func poundsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// centsToPounds переводит пиастры обратно в фунты.
func centsToPounds(c int64) float64 {
	return float64(c) / 100
}

// InvoiceDraft описывает данные новой фактуры. Amount — введённая
// пользователем положительная величина в фунтах.
type InvoiceDraft struct {
	TransactionType string  `validate:"required"`
	CustomerName    string
	Description     string
	Amount          float64             `validate:"required,gt=0"`
	Status          model.InvoiceStatus `validate:"required"`
	EmployeeID      string              `validate:"required"`
	EmployeeName    string              `validate:"required"`
	EmployeeAvatar  string
}

// CreateInvoice создаёт фактуру: присваивает идентификатор и отметки
// времени и нормализует знак суммы по статусу.
func (s *Service) CreateInvoice(ctx context.Context, draft InvoiceDraft) (*model.Invoice, error) {
	if err := s.validator.Struct(&draft); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !validation.IsValidInvoiceStatus(draft.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, draft.Status)
	}

	cents := poundsToCents(draft.Amount)
	if draft.Status == model.InvoiceStatusWithdrawn {
		cents = -cents
	}

	now := s.cal.Now()
	inv := model.Invoice{
		ID:              uuid.NewString(),
		TransactionType: draft.TransactionType,
		CustomerName:    draft.CustomerName,
		Description:     draft.Description,
		AmountCents:     cents,
		Status:          draft.Status,
		EmployeeID:      draft.EmployeeID,
		EmployeeName:    draft.EmployeeName,
		EmployeeAvatar:  draft.EmployeeAvatar,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.AddInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoicePatch описывает частичное изменение фактуры. Amount — введённая
// положительная величина; знак выставляется по итоговому статусу.
type InvoicePatch struct {
	TransactionType *string
	CustomerName    *string
	Description     *string
	Amount          *float64
	Status          *model.InvoiceStatus
}

// UpdateInvoice применяет изменения к фактуре и заново нормализует знак
// суммы, если статус переводится в изъятие или из него.
func (s *Service) UpdateInvoice(ctx context.Context, id string, patch InvoicePatch) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	// Отменённая фактура — терминальное состояние до архивации.
	if inv.Status == model.InvoiceStatusCanceled {
		return nil, fmt.Errorf("%w: canceled invoice cannot be edited", ErrValidation)
	}

	if patch.Status != nil && !validation.IsValidInvoiceStatus(*patch.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *patch.Status)
	}
	if patch.Amount != nil && *patch.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	if patch.TransactionType != nil {
		if *patch.TransactionType == "" {
			return nil, fmt.Errorf("%w: field TransactionType is required", ErrValidation)
		}
		inv.TransactionType = *patch.TransactionType
	}
	if patch.CustomerName != nil {
		inv.CustomerName = *patch.CustomerName
	}
	if patch.Description != nil {
		inv.Description = *patch.Description
	}
	if patch.Status != nil {
		inv.Status = *patch.Status
	}
	if patch.Amount != nil {
		inv.AmountCents = poundsToCents(*patch.Amount)
	}

	// Инвариант знака: изъятие хранится с отрицательной суммой,
	// остальные статусы — с неотрицательной. Величина сохраняется.
	if inv.Status == model.InvoiceStatusWithdrawn && inv.AmountCents > 0 {
		inv.AmountCents = -inv.AmountCents
	} else if inv.Status != model.InvoiceStatusWithdrawn && inv.AmountCents < 0 {
		inv.AmountCents = -inv.AmountCents
	}

	inv.UpdatedAt = s.cal.Now()

	if err := s.repo.SaveInvoice(ctx, *inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices возвращает фактуры, новые первыми. При includeArchived=false
// архивные фактуры отфильтровываются.
func (s *Service) ListInvoices(ctx context.Context, includeArchived bool) ([]model.Invoice, error) {
	if includeArchived {
		return s.repo.ListInvoices(ctx)
	}
	return s.repo.ListUnarchivedInvoices(ctx)
}

// EmployeeDraft описывает данные нового сотрудника.
type EmployeeDraft struct {
	Name     string `validate:"required"`
	Avatar   string
	IsActive bool
}

// CreateEmployee добавляет сотрудника.
func (s *Service) CreateEmployee(ctx context.Context, draft EmployeeDraft) (*model.Employee, error) {
	if err := s.validator.Struct(&draft); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	now := s.cal.Now()
	emp := model.Employee{
		ID:        uuid.NewString(),
		Name:      draft.Name,
		Avatar:    draft.Avatar,
		IsActive:  draft.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.AddEmployee(ctx, emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

// EmployeePatch описывает частичное изменение сотрудника.
type EmployeePatch struct {
	Name     *string
	Avatar   *string
	IsActive *bool
}

// UpdateEmployee применяет изменения к сотруднику.
func (s *Service) UpdateEmployee(ctx context.Context, id string, patch EmployeePatch) (*model.Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, fmt.Errorf("%w: field Name is required", ErrValidation)
		}
		emp.Name = *patch.Name
	}
	if patch.Avatar != nil {
		emp.Avatar = *patch.Avatar
	}
	if patch.IsActive != nil {
		emp.IsActive = *patch.IsActive
	}
	emp.UpdatedAt = s.cal.Now()

	if err := s.repo.SaveEmployee(ctx, *emp); err != nil {
		return nil, err
	}
	return emp, nil
}

// ListEmployees возвращает всех сотрудников.
func (s *Service) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

// GetEmployee возвращает сотрудника по идентификатору.
func (s *Service) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// GetSettings возвращает настройки, создавая документ с настройками по
// умолчанию при первом обращении.
func (s *Service) GetSettings(ctx context.Context) (*model.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, repository.ErrSettingsNotFound) {
		return nil, err
	}

	def := defaultSettings()
	if err := s.repo.SaveSettings(ctx, def); err != nil {
		return nil, err
	}
	return &def, nil
}

// SaveSettings заменяет документ настроек целиком.
func (s *Service) SaveSettings(ctx context.Context, settings model.Settings) error {
	if settings.Timezone == "" {
		return fmt.Errorf("%w: field Timezone is required", ErrValidation)
	}
	return s.repo.SaveSettings(ctx, settings)
}

func defaultSettings() model.Settings {
	return model.Settings{
		TransactionTypes: []model.TransactionType{
			{ID: uuid.NewString(), Name: "Product Sale", IsActive: true},
			{ID: uuid.NewString(), Name: "Subscription Renewal", IsActive: true},
			{ID: uuid.NewString(), Name: "Unspecified", IsActive: true},
		},
		Timezone: "Africa/Cairo",
		ArchiveOptions: model.ArchiveOptions{
			StoreSnapshots: true,
		},
	}
}
