package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository implementations
type Repositories struct {
	Event        EventRepository
	Registration RegistrationRepository
	Lock         LockRepository
	Payment      PaymentTransactionRepository
	Webhook      WebhookEventRepository
	Setting      SettingRepository
}

// NewRepositories creates all repositories from a single DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Event:        NewEventRepository(db),
		Registration: NewRegistrationRepository(db),
		Lock:         NewLockRepository(db),
		Payment:      NewPaymentTransactionRepository(db),
		Webhook:      NewWebhookEventRepository(db),
		Setting:      NewSettingRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetFactory returns the global repository factory
func GetFactory() *Factory {
	return globalFactory
}
