package repository

import (
	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

// registrationRepository implements RegistrationRepository using GORM
type registrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository creates a new registration repository instance
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) Create(reg *models.Registration) error {
	return r.db.Create(reg).Error
}

func (r *registrationRepository) GetByID(id uint) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.First(&reg, id).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepository) Update(reg *models.Registration) error {
	return r.db.Save(reg).Error
}

func (r *registrationRepository) CountConfirmedByEvent(eventID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Registration{}).
		Where("event_id = ? AND status = ?", eventID, models.RegistrationStatusConfirmed).
		Count(&count).Error
	return count, err
}

// eventRepository implements EventRepository using GORM
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) GetByID(id uint) (*models.Event, error) {
	var event models.Event
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) GetBySlug(slug string) (*models.Event, error) {
	var event models.Event
	if err := r.db.Where("slug = ?", slug).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) Create(event *models.Event) error {
	return r.db.Create(event).Error
}

func (r *eventRepository) Update(event *models.Event) error {
	return r.db.Save(event).Error
}
