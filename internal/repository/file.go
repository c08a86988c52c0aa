// Package repository содержит реализации доступа к данным: файловое
// JSON-хранилище и PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmeshcher/kassa-system/internal/model"
)

const (
	invoicesFile  = "invoices.json"
	archivesFile  = "archives.json"
	employeesFile = "employees.json"
	settingsFile  = "settings.json"
	archivesDir   = "archives"
)

// FileRepository хранит все коллекции в JSON-документах на диске:
// по одному файлу на коллекцию и по одному неизменяемому файлу-снимку
// на каждый архив. Каждая запись выполняется во временный файл с
// последующим атомарным переименованием, чтобы читатель никогда не
// увидел усечённый документ.
type FileRepository struct {
	mu  sync.Mutex
	dir string
}

// NewFileRepository создаёт файловое хранилище в указанной директории.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Join(dir, archivesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dirs: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

// Close освобождает ресурсы хранилища.
func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) readDoc(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fs.ErrNotExist
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (r *FileRepository) writeDoc(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(r.dir, name)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp for %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (r *FileRepository) readInvoices() ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := r.readDoc(invoicesFile, &invoices); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return invoices, nil
}

// ListInvoices возвращает все фактуры, новые первыми.
func (r *FileRepository) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readInvoices()
}

// ListUnarchivedInvoices возвращает фактуры, ещё не попавшие в архив.
func (r *FileRepository) ListUnarchivedInvoices(ctx context.Context) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoices, err := r.readInvoices()
	if err != nil {
		return nil, err
	}

	res := make([]model.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.IsArchived {
			res = append(res, inv)
		}
	}
	return res, nil
}

// AddInvoice вставляет фактуру в начало списка: порядок «новые первыми»
// является наблюдаемым контрактом хранилища.
func (r *FileRepository) AddInvoice(ctx context.Context, inv model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoices, err := r.readInvoices()
	if err != nil {
		return err
	}

	invoices = append([]model.Invoice{inv}, invoices...)
	return r.writeDoc(invoicesFile, invoices)
}

// GetInvoice возвращает фактуру по идентификатору.
func (r *FileRepository) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoices, err := r.readInvoices()
	if err != nil {
		return nil, err
	}

	for i := range invoices {
		if invoices[i].ID == id {
			inv := invoices[i]
			return &inv, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

// SaveInvoice заменяет фактуру с тем же идентификатором целиком.
func (r *FileRepository) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoices, err := r.readInvoices()
	if err != nil {
		return err
	}

	for i := range invoices {
		if invoices[i].ID == inv.ID {
			invoices[i] = inv
			return r.writeDoc(invoicesFile, invoices)
		}
	}
	return ErrInvoiceNotFound
}

// MarkInvoicesArchived массово выставляет фактурам признак архивности.
// Повторная пометка уже архивной фактуры — безопасный no-op.
func (r *FileRepository) MarkInvoicesArchived(ctx context.Context, ids []string, updatedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	invoices, err := r.readInvoices()
	if err != nil {
		return err
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	changed := false
	for i := range invoices {
		if _, ok := idSet[invoices[i].ID]; !ok {
			continue
		}
		if invoices[i].IsArchived {
			continue
		}
		invoices[i].IsArchived = true
		invoices[i].UpdatedAt = updatedAt
		changed = true
	}

	if !changed {
		return nil
	}
	return r.writeDoc(invoicesFile, invoices)
}

// ListArchives возвращает индекс архивов в порядке их создания.
func (r *FileRepository) ListArchives(ctx context.Context) ([]model.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var archives []model.Archive
	if err := r.readDoc(archivesFile, &archives); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return archives, nil
}

// AddArchive записывает файл-снимок архива и добавляет запись в индекс.
// Снимок пишется первым: лишний файл без записи в индексе безопаснее,
// чем запись в индексе без файла.
func (r *FileRepository) AddArchive(ctx context.Context, data model.ArchiveData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshotName := filepath.Join(archivesDir, data.Filename)
	if _, err := os.Stat(filepath.Join(r.dir, snapshotName)); err == nil {
		return fmt.Errorf("%w: %s", ErrArchiveExists, data.Filename)
	}

	if err := r.writeDoc(snapshotName, data); err != nil {
		return err
	}

	var archives []model.Archive
	if err := r.readDoc(archivesFile, &archives); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	archives = append(archives, data.Archive)
	return r.writeDoc(archivesFile, archives)
}

// GetArchiveData возвращает снимок архива по имени файла.
func (r *FileRepository) GetArchiveData(ctx context.Context, filename string) (*model.ArchiveData, error) {
	// Имя файла приходит из URL; не даём выйти за пределы директории снимков.
	if filepath.Base(filename) != filename {
		return nil, ErrArchiveNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var data model.ArchiveData
	if err := r.readDoc(filepath.Join(archivesDir, filename), &data); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}
	return &data, nil
}

func (r *FileRepository) readEmployees() ([]model.Employee, error) {
	var employees []model.Employee
	if err := r.readDoc(employeesFile, &employees); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return employees, nil
}

// ListEmployees возвращает всех сотрудников.
func (r *FileRepository) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readEmployees()
}

// GetEmployee возвращает сотрудника по идентификатору.
func (r *FileRepository) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	employees, err := r.readEmployees()
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].ID == id {
			emp := employees[i]
			return &emp, nil
		}
	}
	return nil, ErrEmployeeNotFound
}

// AddEmployee добавляет сотрудника.
func (r *FileRepository) AddEmployee(ctx context.Context, emp model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	employees, err := r.readEmployees()
	if err != nil {
		return err
	}
	employees = append(employees, emp)
	return r.writeDoc(employeesFile, employees)
}

// SaveEmployee заменяет сотрудника с тем же идентификатором целиком.
func (r *FileRepository) SaveEmployee(ctx context.Context, emp model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	employees, err := r.readEmployees()
	if err != nil {
		return err
	}
	for i := range employees {
		if employees[i].ID == emp.ID {
			employees[i] = emp
			return r.writeDoc(employeesFile, employees)
		}
	}
	return ErrEmployeeNotFound
}

// GetSettings возвращает документ настроек.
func (r *FileRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var settings model.Settings
	if err := r.readDoc(settingsFile, &settings); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &settings, nil
}

// SaveSettings заменяет документ настроек целиком.
func (r *FileRepository) SaveSettings(ctx context.Context, settings model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeDoc(settingsFile, settings)
}
