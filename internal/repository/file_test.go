package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmeshcher/kassa-system/internal/model"
)

func newTestRepo(t *testing.T) *FileRepository {
	t.Helper()

	repo, err := NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new file repository: %v", err)
	}
	return repo
}

func TestFileRepository_InvoiceLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := model.Invoice{ID: "inv-1", AmountCents: 100, Status: model.InvoiceStatusPaid}
	second := model.Invoice{ID: "inv-2", AmountCents: 200, Status: model.InvoiceStatusPending}

	if err := repo.AddInvoice(ctx, first); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := repo.AddInvoice(ctx, second); err != nil {
		t.Fatalf("add second: %v", err)
	}

	// Новые фактуры идут первыми.
	invoices, err := repo.ListInvoices(ctx)
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 2 || invoices[0].ID != "inv-2" || invoices[1].ID != "inv-1" {
		t.Fatalf("unexpected order: %+v", invoices)
	}

	got, err := repo.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if got.AmountCents != 100 {
		t.Errorf("amount = %d, want 100", got.AmountCents)
	}

	got.AmountCents = 150
	if err := repo.SaveInvoice(ctx, *got); err != nil {
		t.Fatalf("save invoice: %v", err)
	}
	got, err = repo.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.AmountCents != 150 {
		t.Errorf("amount after save = %d, want 150", got.AmountCents)
	}

	if _, err := repo.GetInvoice(ctx, "missing"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("get missing: err = %v, want ErrInvoiceNotFound", err)
	}
	if err := repo.SaveInvoice(ctx, model.Invoice{ID: "missing"}); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("save missing: err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestFileRepository_MarkInvoicesArchived(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.AddInvoice(ctx, model.Invoice{ID: id}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	markedAt := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	if err := repo.MarkInvoicesArchived(ctx, []string{"a", "b"}, markedAt); err != nil {
		t.Fatalf("mark: %v", err)
	}

	unarchived, err := repo.ListUnarchivedInvoices(ctx)
	if err != nil {
		t.Fatalf("list unarchived: %v", err)
	}
	if len(unarchived) != 1 || unarchived[0].ID != "c" {
		t.Fatalf("unarchived = %+v, want only c", unarchived)
	}

	// Повторная пометка — no-op, UpdatedAt не сдвигается.
	later := markedAt.Add(time.Hour)
	if err := repo.MarkInvoicesArchived(ctx, []string{"a", "b"}, later); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	inv, err := repo.GetInvoice(ctx, "a")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !inv.UpdatedAt.Equal(markedAt) {
		t.Errorf("UpdatedAt = %v, want %v (repeat mark is a no-op)", inv.UpdatedAt, markedAt)
	}
}

func TestFileRepository_ArchiveSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	data := model.ArchiveData{
		Archive: model.Archive{
			ID:              "a1",
			Date:            "2026-03-10",
			TotalSalesCents: 12000,
			Filename:        "2026-03-10-a1.json",
		},
		Invoices: []model.Invoice{
			{ID: "inv-1", AmountCents: 12000, Status: model.InvoiceStatusPaid},
		},
	}

	if err := repo.AddArchive(ctx, data); err != nil {
		t.Fatalf("add archive: %v", err)
	}

	archives, err := repo.ListArchives(ctx)
	if err != nil {
		t.Fatalf("list archives: %v", err)
	}
	if len(archives) != 1 || archives[0].ID != "a1" {
		t.Fatalf("archives = %+v", archives)
	}

	got, err := repo.GetArchiveData(ctx, "2026-03-10-a1.json")
	if err != nil {
		t.Fatalf("get archive data: %v", err)
	}
	if len(got.Invoices) != 1 || got.Invoices[0].ID != "inv-1" {
		t.Fatalf("snapshot invoices = %+v", got.Invoices)
	}

	// Повторная запись того же снимка отклоняется.
	if err := repo.AddArchive(ctx, data); !errors.Is(err, ErrArchiveExists) {
		t.Errorf("duplicate archive: err = %v, want ErrArchiveExists", err)
	}

	if _, err := repo.GetArchiveData(ctx, "missing.json"); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("missing snapshot: err = %v, want ErrArchiveNotFound", err)
	}
	// Имя с путём не должно выходить за пределы директории снимков.
	if _, err := repo.GetArchiveData(ctx, "../invoices.json"); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("traversal attempt: err = %v, want ErrArchiveNotFound", err)
	}
}

func TestFileRepository_Employees(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	emp := model.Employee{ID: "emp-1", Name: "Ali", IsActive: true}
	if err := repo.AddEmployee(ctx, emp); err != nil {
		t.Fatalf("add employee: %v", err)
	}

	got, err := repo.GetEmployee(ctx, "emp-1")
	if err != nil {
		t.Fatalf("get employee: %v", err)
	}
	if got.Name != "Ali" {
		t.Errorf("name = %q, want Ali", got.Name)
	}

	got.Name = "Mona"
	if err := repo.SaveEmployee(ctx, *got); err != nil {
		t.Fatalf("save employee: %v", err)
	}
	got, err = repo.GetEmployee(ctx, "emp-1")
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.Name != "Mona" {
		t.Errorf("name after save = %q, want Mona", got.Name)
	}

	if _, err := repo.GetEmployee(ctx, "missing"); !errors.Is(err, ErrEmployeeNotFound) {
		t.Errorf("get missing: err = %v, want ErrEmployeeNotFound", err)
	}
}

func TestFileRepository_Settings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetSettings(ctx); !errors.Is(err, ErrSettingsNotFound) {
		t.Fatalf("empty settings: err = %v, want ErrSettingsNotFound", err)
	}

	settings := model.Settings{
		Timezone: "Africa/Cairo",
		TransactionTypes: []model.TransactionType{
			{ID: "t1", Name: "Product Sale", IsActive: true},
		},
		ArchiveOptions: model.ArchiveOptions{StoreSnapshots: true},
	}
	if err := repo.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	got, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.Timezone != "Africa/Cairo" || len(got.TransactionTypes) != 1 {
		t.Fatalf("settings = %+v", got)
	}
}

func TestFileRepository_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("new file repository: %v", err)
	}

	if err := repo.AddInvoice(context.Background(), model.Invoice{ID: "inv-1"}); err != nil {
		t.Fatalf("add invoice: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if matched, _ := filepath.Match("*.tmp-*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
