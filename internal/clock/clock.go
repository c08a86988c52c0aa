// Package clock отвечает за текущее время и календарные сравнения дат.
//
// Все проверки «сегодня/вчера/в прошлом» выполняются сравнением строк
// вида YYYY-MM-DD, отрендеренных в одной фиксированной тайм-зоне.
// Сравнение сырых моментов времени около полуночи давало бы разный
// результат в зависимости от смещения и перевода часов.
package clock

import (
	"fmt"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Clock предоставляет текущий момент времени.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает реальное системное время.
type SystemClock struct{}

// Now возвращает текущее системное время.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// OverrideClock — часы с переопределяемым значением. Пока переопределение
// установлено, Now возвращает его; после Clear часы снова идут по
// системному времени. Используется тестовой страницей и тестами.
type OverrideClock struct {
	mu       sync.RWMutex
	override *time.Time
}

// NewOverrideClock создаёт часы без активного переопределения.
func NewOverrideClock() *OverrideClock {
	return &OverrideClock{}
}

// Now возвращает переопределённый момент, если он задан, иначе системное время.
func (c *OverrideClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.override != nil {
		return *c.override
	}
	return time.Now()
}

// Set устанавливает переопределение текущего времени.
func (c *OverrideClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = &t
}

// Clear снимает переопределение.
func (c *OverrideClock) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = nil
}

// Override возвращает активное переопределение, если оно есть.
func (c *OverrideClock) Override() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.override == nil {
		return time.Time{}, false
	}
	return *c.override, true
}

// Calendar выполняет календарные сравнения в фиксированной тайм-зоне.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar создаёт календарь для указанной IANA тайм-зоны.
func NewCalendar(clock Clock, timezone string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", timezone, err)
	}
	return &Calendar{clock: clock, loc: loc}, nil
}

// Now возвращает текущий момент по внутренним часам.
func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// DayString возвращает календарный день момента t в канонической тайм-зоне.
func (c *Calendar) DayString(t time.Time) string {
	return t.In(c.loc).Format(dayLayout)
}

// Today возвращает сегодняшний календарный день.
func (c *Calendar) Today() string {
	return c.DayString(c.clock.Now())
}

// Yesterday возвращает вчерашний календарный день.
func (c *Calendar) Yesterday() string {
	return c.DayString(c.clock.Now().AddDate(0, 0, -1))
}

// PrevDay возвращает день, предшествующий дню day (в формате YYYY-MM-DD).
func (c *Calendar) PrevDay(day string) (string, error) {
	t, err := time.ParseInLocation(dayLayout, day, c.loc)
	if err != nil {
		return "", fmt.Errorf("parse day %q: %w", day, err)
	}
	return t.AddDate(0, 0, -1).Format(dayLayout), nil
}

// IsToday сообщает, приходится ли момент t на сегодняшний день.
func (c *Calendar) IsToday(t time.Time) bool {
	return c.DayString(t) == c.Today()
}

// IsPastDay сообщает, приходится ли момент t на день строго раньше сегодняшнего.
// Формат YYYY-MM-DD сравнивается лексикографически.
func (c *Calendar) IsPastDay(t time.Time) bool {
	return c.DayString(t) < c.Today()
}
