package database

import (
	"errors"

	"krampus/internal/domain"

	"gorm.io/gorm"
)

type EventFilter struct {
	MachineID string
	Decision  string
	Page      int
	Limit     int
}

const (
	defaultEventPageSize = 50
	maxEventPageSize     = 500
)

// CreateEvents appends a batch of execution events.
func CreateEvents(events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	return DB.Create(&events).Error
}

func GetEvent(id uint64) (*domain.Event, error) {
	var event domain.Event
	err := DB.First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns one page of events, newest executions first, plus the
// total row count for the filter.
func ListEvents(filter EventFilter) ([]domain.Event, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultEventPageSize
	}
	if filter.Limit > maxEventPageSize {
		filter.Limit = maxEventPageSize
	}

	query := DB.Model(&domain.Event{})
	if filter.MachineID != "" {
		query = query.Where("machine_id = ?", filter.MachineID)
	}
	if filter.Decision != "" {
		query = query.Where("decision = ?", filter.Decision)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []domain.Event
	err := query.
		Order("execution_time DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
