package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/unipayment"
)

// In-memory repository fakes backing the handler tests. They mirror the
// conditional-insert semantics of the real implementations.

type memEventRepo struct {
	events map[uint]*models.Event
}

func (r *memEventRepo) GetByID(id uint) (*models.Event, error) {
	if e, ok := r.events[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memEventRepo) GetBySlug(slug string) (*models.Event, error) {
	for _, e := range r.events {
		if e.Slug == slug {
			return e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memEventRepo) Create(event *models.Event) error {
	event.ID = uint(len(r.events) + 1)
	r.events[event.ID] = event
	return nil
}

func (r *memEventRepo) Update(event *models.Event) error {
	r.events[event.ID] = event
	return nil
}

type memRegistrationRepo struct {
	regs map[uint]*models.Registration
}

func (r *memRegistrationRepo) Create(reg *models.Registration) error {
	reg.ID = uint(len(r.regs) + 1)
	r.regs[reg.ID] = reg
	return nil
}

func (r *memRegistrationRepo) GetByID(id uint) (*models.Registration, error) {
	if reg, ok := r.regs[id]; ok {
		return reg, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRegistrationRepo) Update(reg *models.Registration) error {
	r.regs[reg.ID] = reg
	return nil
}

func (r *memRegistrationRepo) CountConfirmedByEvent(eventID uint) (int64, error) {
	var n int64
	for _, reg := range r.regs {
		if reg.EventID == eventID && reg.Status == models.RegistrationStatusConfirmed {
			n++
		}
	}
	return n, nil
}

type memLockRepo struct {
	locks map[string]*models.RegistrationLock
}

func lockKey(email, phone string, eventID uint) string {
	return fmt.Sprintf("%s|%s|%d", email, phone, eventID)
}

func (r *memLockRepo) CreateIfAbsent(lock *models.RegistrationLock) (bool, error) {
	k := lockKey(lock.Email, lock.Phone, lock.EventID)
	if _, ok := r.locks[k]; ok {
		return false, nil
	}
	lock.ID = uint(len(r.locks) + 1)
	r.locks[k] = lock
	return true, nil
}

func (r *memLockRepo) Find(email, phone string, eventID uint) (*models.RegistrationLock, error) {
	if lock, ok := r.locks[lockKey(email, phone, eventID)]; ok {
		return lock, nil
	}
	return nil, nil
}

func (r *memLockRepo) DeleteByToken(email, phone string, eventID uint, token string) (int64, error) {
	k := lockKey(email, phone, eventID)
	if lock, ok := r.locks[k]; ok && lock.Token == token {
		delete(r.locks, k)
		return 1, nil
	}
	return 0, nil
}

func (r *memLockRepo) DeleteByKey(email, phone string, eventID uint) (int64, error) {
	k := lockKey(email, phone, eventID)
	if _, ok := r.locks[k]; ok {
		delete(r.locks, k)
		return 1, nil
	}
	return 0, nil
}

func (r *memLockRepo) DeleteExpiredByKey(email, phone string, eventID uint, before time.Time) (int64, error) {
	k := lockKey(email, phone, eventID)
	if lock, ok := r.locks[k]; ok && !lock.ExpiresAt.After(before) {
		delete(r.locks, k)
		return 1, nil
	}
	return 0, nil
}

func (r *memLockRepo) DeleteExpired(before time.Time) (int64, error) {
	var n int64
	for k, lock := range r.locks {
		if !lock.ExpiresAt.After(before) {
			delete(r.locks, k)
			n++
		}
	}
	return n, nil
}

type memPaymentRepo struct {
	txns []*models.PaymentTransaction
}

func (r *memPaymentRepo) Create(txn *models.PaymentTransaction) error {
	txn.ID = uint(len(r.txns) + 1)
	txn.UpdatedAt = time.Now()
	r.txns = append(r.txns, txn)
	return nil
}

func (r *memPaymentRepo) GetByID(id uint) (*models.PaymentTransaction, error) {
	for _, t := range r.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPaymentRepo) GetByProviderTxnID(provider, providerTxnID string) (*models.PaymentTransaction, error) {
	for _, t := range r.txns {
		if t.Provider == provider && t.ProviderTxnID == providerTxnID {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPaymentRepo) Update(txn *models.PaymentTransaction) error {
	txn.UpdatedAt = time.Now()
	return nil
}

func (r *memPaymentRepo) ExistsWithStatusSince(provider, providerTxnID, status string, since time.Time) (bool, error) {
	for _, t := range r.txns {
		if t.Provider == provider && t.ProviderTxnID == providerTxnID && t.Status == status && t.UpdatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

type memWebhookRepo struct {
	events map[string]*models.WebhookEvent
	nextID uint
}

func (r *memWebhookRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, event, nil
}

func (r *memWebhookRepo) MarkProcessed(id uint, processingError string) error { return nil }

func (r *memWebhookRepo) LastReceivedAt(provider string) (*time.Time, error) { return nil, nil }

type memSettingRepo struct {
	rows    map[uint]*models.UniPaymentSetting
	current *models.UniPaymentSetting
}

func (r *memSettingRepo) GetCurrent() (*models.UniPaymentSetting, error) {
	if r.current == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.current, nil
}

func (r *memSettingRepo) Save(setting *models.UniPaymentSetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	if setting.ID == 0 {
		setting.ID = uint(len(r.rows) + 1)
	}
	r.rows[setting.ID] = setting
	return nil
}

func (r *memSettingRepo) MakeCurrent(id uint) error {
	// Mirrors the transactional flag flip: updating a missing id affects
	// zero rows without erroring.
	for _, s := range r.rows {
		s.IsCurrent = false
	}
	if s, ok := r.rows[id]; ok {
		s.IsCurrent = true
		r.current = s
	}
	return nil
}

func (r *memSettingRepo) RecordWebhookTest(id uint, at time.Time, ok bool) error {
	if s, found := r.rows[id]; found {
		s.LastWebhookTestAt = &at
		s.LastWebhookTestOK = ok
		return nil
	}
	if r.current != nil && r.current.ID == id {
		r.current.LastWebhookTestAt = &at
		r.current.LastWebhookTestOK = ok
	}
	return nil
}

func newMemRepositories() *repository.Repositories {
	return &repository.Repositories{
		Event:        &memEventRepo{events: make(map[uint]*models.Event)},
		Registration: &memRegistrationRepo{regs: make(map[uint]*models.Registration)},
		Lock:         &memLockRepo{locks: make(map[string]*models.RegistrationLock)},
		Payment:      &memPaymentRepo{},
		Webhook:      &memWebhookRepo{events: make(map[string]*models.WebhookEvent)},
		Setting:      &memSettingRepo{rows: make(map[uint]*models.UniPaymentSetting)},
	}
}

// stubInvoiceCreator returns a canned invoice or error.
type stubInvoiceCreator struct {
	invoice *unipayment.Invoice
	err     error
	calls   int
}

func (s *stubInvoiceCreator) CreateInvoice(ctx context.Context, in unipayment.CreateInvoiceRequest) (*unipayment.Invoice, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.invoice != nil {
		return s.invoice, nil
	}
	return &unipayment.Invoice{
		InvoiceID:     "INV-STUB",
		OrderID:       in.OrderID,
		Status:        "New",
		PriceAmount:   in.PriceAmount,
		PriceCurrency: in.PriceCurrency,
		CheckoutURL:   "https://sandbox.unipayment.io/i/INV-STUB",
	}, nil
}

var errStubProviderDown = errors.New("provider connection refused")
