package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/kassa-system/internal/model"
)

// SweepEmployeeID записывается в архивы, созданные автоматической
// зачисткой, вместо идентификатора сотрудника.
const SweepEmployeeID = "system"

// isArchivableStatus сообщает, попадает ли фактура с таким статусом в архив дня.
func isArchivableStatus(status model.InvoiceStatus) bool {
	return status == model.InvoiceStatusPaid ||
		status == model.InvoiceStatusCanceled ||
		status == model.InvoiceStatusWithdrawn
}

// countsTowardSales сообщает, входит ли фактура в фактические продажи.
// Отменённые фактуры дают ноль, изъятия входят с отрицательной суммой.
func countsTowardSales(status model.InvoiceStatus) bool {
	return status == model.InvoiceStatusPaid || status == model.InvoiceStatusWithdrawn
}

// ArchiveDay закрывает сегодняшний день: собирает неархивные фактуры за
// сегодня, создаёт запись архива со снимком и помечает фактуры архивными.
// suppliedAmount и openingBalance — в фунтах.
func (s *Service) ArchiveDay(ctx context.Context, suppliedAmount, openingBalance float64, employeeID string) (*model.Archive, error) {
	if employeeID == "" {
		return nil, ErrMissingEmployee
	}
	if suppliedAmount < 0 {
		return nil, fmt.Errorf("%w: supplied amount must be non-negative", ErrInvalidAmount)
	}
	if openingBalance < 0 {
		return nil, fmt.Errorf("%w: opening balance must be non-negative", ErrInvalidAmount)
	}

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	return s.archiveOneDay(ctx, archiveRequest{
		day:           s.cal.Today(),
		suppliedCents: poundsToCents(suppliedAmount),
		openingCents:  poundsToCents(openingBalance),
		employeeID:    employeeID,
		enforceGuard:  true,
		allStatuses:   false,
	})
}

type archiveRequest struct {
	day           string
	suppliedCents int64
	openingCents  int64
	employeeID    string
	// enforceGuard включает проверку «сдаваемая сумма не больше продаж».
	enforceGuard bool
	// allStatuses расширяет отбор на все статусы; используется зачисткой,
	// чтобы просроченные pending-фактуры не оставались неархивными вечно.
	allStatuses bool
}

// archiveOneDay выполняет шаги архивации для одного календарного дня.
// Вызывающий обязан держать archiveMu.
func (s *Service) archiveOneDay(ctx context.Context, req archiveRequest) (*model.Archive, error) {
	all, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}

	var selected []model.Invoice
	var actualCents int64
	for _, inv := range all {
		if inv.IsArchived {
			continue
		}
		if s.cal.DayString(inv.CreatedAt) != req.day {
			continue
		}
		if !req.allStatuses && !isArchivableStatus(inv.Status) {
			continue
		}
		selected = append(selected, inv)
		if countsTowardSales(inv.Status) {
			actualCents += inv.AmountCents
		}
	}

	totalCents := actualCents + req.openingCents

	if req.enforceGuard && req.suppliedCents > totalCents {
		return nil, ErrAmountExceedsSales
	}

	now := s.cal.Now()
	archiveID := uuid.NewString()

	archive := model.Archive{
		ID:                     archiveID,
		Date:                   req.day,
		TotalSalesCents:        totalCents,
		SuppliedAmountCents:    req.suppliedCents,
		OpeningForNextDayCents: totalCents - req.suppliedCents,
		EmployeeIDWhoArchived:  req.employeeID,
		CreatedAt:              now,
		Filename:               fmt.Sprintf("%s-%s.json", req.day, archiveID),
	}

	if err := s.repo.AddArchive(ctx, model.ArchiveData{Archive: archive, Invoices: selected}); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(selected))
	for _, inv := range selected {
		ids = append(ids, inv.ID)
	}

	// Снимок уже записан; пометка фактур — второй шаг двухфазной
	// последовательности. Пометка идемпотентна, поэтому её можно
	// безопасно повторять.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.repo.MarkInvoicesArchived(ctx, ids, now); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("archive snapshot written but invoices were not marked archived, manual reconciliation required",
			zap.String("archiveID", archive.ID),
			zap.String("date", archive.Date),
			zap.Strings("invoiceIDs", ids),
			zap.Error(err),
		)
		return nil, fmt.Errorf("mark invoices archived: %w", err)
	}

	return &archive, nil
}

// YesterdaySales возвращает продажи за вчерашний день по его архиву.
// Суммируются оплаченные фактуры и изъятия — та же формула, что и в
// фактических продажах при архивации. Без архива за вчера — ноль.
func (s *Service) YesterdaySales(ctx context.Context) (float64, error) {
	yesterday := s.cal.Yesterday()

	archive, err := s.latestArchiveForDay(ctx, yesterday)
	if err != nil {
		return 0, err
	}
	if archive == nil {
		return 0, nil
	}

	data, err := s.repo.GetArchiveData(ctx, archive.Filename)
	if err != nil {
		return 0, err
	}

	var sumCents int64
	for _, inv := range data.Invoices {
		if countsTowardSales(inv.Status) {
			sumCents += inv.AmountCents
		}
	}
	return centsToPounds(sumCents), nil
}

// TodaysOpeningBalance возвращает входящий остаток на сегодня.
func (s *Service) TodaysOpeningBalance(ctx context.Context) (float64, error) {
	cents, err := s.openingBalanceAsOf(ctx, s.cal.Today())
	if err != nil {
		return 0, err
	}
	return centsToPounds(cents), nil
}

// openingBalanceAsOf вычисляет входящий остаток на день day: берётся
// последний архив самого дня (день уже закрывался), иначе последний
// архив предыдущего дня, иначе ноль.
func (s *Service) openingBalanceAsOf(ctx context.Context, day string) (int64, error) {
	archive, err := s.latestArchiveForDay(ctx, day)
	if err != nil {
		return 0, err
	}
	if archive != nil {
		return archive.OpeningForNextDayCents, nil
	}

	prev, err := s.cal.PrevDay(day)
	if err != nil {
		return 0, err
	}

	archive, err = s.latestArchiveForDay(ctx, prev)
	if err != nil {
		return 0, err
	}
	if archive != nil {
		return archive.OpeningForNextDayCents, nil
	}
	return 0, nil
}

// latestArchiveForDay возвращает самый поздний по CreatedAt архив за день.
func (s *Service) latestArchiveForDay(ctx context.Context, day string) (*model.Archive, error) {
	archives, err := s.repo.ListArchives(ctx)
	if err != nil {
		return nil, err
	}

	var latest *model.Archive
	for i := range archives {
		if archives[i].Date != day {
			continue
		}
		if latest == nil || archives[i].CreatedAt.After(latest.CreatedAt) {
			latest = &archives[i]
		}
	}
	return latest, nil
}

// RunAutoArchiveSweep находит неархивные фактуры за прошедшие дни и
// принудительно закрывает каждый такой день с нулевой сдаваемой суммой.
// Вызывается перед каждой загрузкой дашборда; при отсутствии просроченных
// фактур ничего не делает.
func (s *Service) RunAutoArchiveSweep(ctx context.Context) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	unarchived, err := s.repo.ListUnarchivedInvoices(ctx)
	if err != nil {
		return err
	}

	staleDays := make(map[string]struct{})
	for _, inv := range unarchived {
		if s.cal.IsPastDay(inv.CreatedAt) {
			staleDays[s.cal.DayString(inv.CreatedAt)] = struct{}{}
		}
	}
	if len(staleDays) == 0 {
		return nil
	}

	// Дни закрываются по возрастанию, чтобы входящий остаток
	// переносился по цепочке от дня к дню.
	days := make([]string, 0, len(staleDays))
	for day := range staleDays {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		openingCents, err := s.openingBalanceAsOf(ctx, day)
		if err != nil {
			return err
		}

		archive, err := s.archiveOneDay(ctx, archiveRequest{
			day:           day,
			suppliedCents: 0,
			openingCents:  openingCents,
			employeeID:    SweepEmployeeID,
			// Нулевая сдаваемая сумма не изымает денег из кассы, а при
			// отрицательных продажах дня проверка заблокировала бы
			// зачистку навсегда.
			enforceGuard: false,
			allStatuses:  true,
		})
		if err != nil {
			return fmt.Errorf("auto archive day %s: %w", day, err)
		}

		s.logger.Info("auto-archived stale day",
			zap.String("date", day),
			zap.String("archiveID", archive.ID),
			zap.Int64("totalSalesCents", archive.TotalSalesCents),
		)
	}

	return nil
}

// Dashboard содержит данные главного экрана кассы.
type Dashboard struct {
	Invoices           []model.Invoice
	SalesToday         float64
	YesterdaySales     float64
	OpeningBalance     float64
	HasUnarchivedToday bool
}

// LoadDashboard прогоняет автоматическую зачистку и собирает статистику
// дашборда. Зачистка обязана завершиться до вычисления цифр: они
// предполагают, что неархивных фактур за прошлые дни не осталось.
func (s *Service) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	if err := s.RunAutoArchiveSweep(ctx); err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListUnarchivedInvoices(ctx)
	if err != nil {
		return nil, err
	}

	openingBalance, err := s.TodaysOpeningBalance(ctx)
	if err != nil {
		return nil, err
	}

	yesterdaySales, err := s.YesterdaySales(ctx)
	if err != nil {
		return nil, err
	}

	var salesTodayCents int64
	hasUnarchived := false
	for _, inv := range invoices {
		if !s.cal.IsToday(inv.CreatedAt) {
			continue
		}
		if inv.Status == model.InvoiceStatusPaid {
			salesTodayCents += inv.AmountCents
		}
		if isArchivableStatus(inv.Status) {
			hasUnarchived = true
		}
	}

	return &Dashboard{
		Invoices:           invoices,
		SalesToday:         centsToPounds(salesTodayCents) + openingBalance,
		YesterdaySales:     yesterdaySales,
		OpeningBalance:     openingBalance,
		HasUnarchivedToday: hasUnarchived,
	}, nil
}

// ListArchives возвращает индекс архивов.
func (s *Service) ListArchives(ctx context.Context) ([]model.Archive, error) {
	return s.repo.ListArchives(ctx)
}

// GetArchiveData возвращает снимок архива по имени файла.
func (s *Service) GetArchiveData(ctx context.Context, filename string) (*model.ArchiveData, error) {
	return s.repo.GetArchiveData(ctx, filename)
}
