package repository

import "errors"

// ErrInvoiceNotFound возвращается, если фактура с указанным идентификатором не найдена.
var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrEmployeeNotFound возвращается, если сотрудник не найден.
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrArchiveNotFound возвращается, если снимок архива не найден.
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrSettingsNotFound возвращается, если документ настроек ещё не создан.
	ErrSettingsNotFound = errors.New("settings not found")
	// ErrArchiveExists возвращается при попытке записать архив с уже занятым именем файла.
	ErrArchiveExists = errors.New("archive already exists")
)
