// Package model содержит доменные сущности кассового сервиса.
package model

import "time"

// InvoiceStatus описывает статус фактуры.
type InvoiceStatus string

const (
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusCanceled InvoiceStatus = "canceled"
	// InvoiceStatusWithdrawn — изъятие денег из кассы. Литерал сохранён
	// в исходном виде ради совместимости с накопленными данными.
	InvoiceStatusWithdrawn InvoiceStatus = "مسحوب"
)

// KnownInvoiceStatuses перечисляет все допустимые статусы фактуры.
var KnownInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPaid,
	InvoiceStatusPending,
	InvoiceStatusCanceled,
	InvoiceStatusWithdrawn,
}

// Invoice описывает одну фактуру (транзакцию) кассы.
// Суммы хранятся в пиастрах (сотых долях фунта); для статуса
// InvoiceStatusWithdrawn сумма всегда отрицательная, для остальных —
// неотрицательная.
type Invoice struct {
	ID              string        `json:"id"`
	TransactionType string        `json:"transactionType"`
	CustomerName    string        `json:"customerName,omitempty"`
	Description     string        `json:"description,omitempty"`
	AmountCents     int64         `json:"amountCents"`
	Status          InvoiceStatus `json:"status"`
	EmployeeID      string        `json:"employeeId"`
	EmployeeName    string        `json:"employeeName"`
	EmployeeAvatar  string        `json:"employeeAvatar"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	IsArchived      bool          `json:"isArchived"`
}

// Archive описывает запись закрытия одного календарного дня.
// Date — день в формате YYYY-MM-DD в канонической тайм-зоне сервиса.
type Archive struct {
	ID                     string    `json:"id"`
	Date                   string    `json:"date"`
	TotalSalesCents        int64     `json:"totalSalesCents"`
	SuppliedAmountCents    int64     `json:"suppliedAmountCents"`
	OpeningForNextDayCents int64     `json:"openingAmountForNextDayCents"`
	EmployeeIDWhoArchived  string    `json:"employeeIdWhoArchived"`
	CreatedAt              time.Time `json:"createdAt"`
	Filename               string    `json:"filename"`
}

// ArchiveData — неизменяемый снимок архива вместе с попавшими в него фактурами.
type ArchiveData struct {
	Archive
	Invoices []Invoice `json:"invoices"`
}

// Employee описывает сотрудника кассы.
type Employee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransactionType — настраиваемая метка типа транзакции.
type TransactionType struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// ArchiveOptions содержит настройки архивации.
type ArchiveOptions struct {
	StoreSnapshots bool `json:"storeSnapshots"`
}

// Settings — единственный документ настроек приложения.
type Settings struct {
	TransactionTypes []TransactionType `json:"transactionTypes"`
	Timezone         string            `json:"timezone"`
	ArchiveOptions   ArchiveOptions    `json:"archiveOptions"`
}

// Session содержит снимок личности выбранного сотрудника.
type Session struct {
	EmployeeID     string `json:"employeeId"`
	EmployeeName   string `json:"employeeName"`
	EmployeeAvatar string `json:"employeeAvatar"`
}
