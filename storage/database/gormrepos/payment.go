package gormrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/storage/database"
)

// errEnrollmentRace means a concurrent transaction created the ACTIVE enrollment first.
var errEnrollmentRace = errors.New("active enrollment created concurrently")

type paymentRepository struct {
	db *gorm.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *database.DB) *paymentRepository {
	return &paymentRepository{db: db.Gorm}
}

func (repo *paymentRepository) CreateOrder(ctx context.Context, o payment.Order) (payment.Order, error) {
	err := repo.db.WithContext(ctx).Create(&o).Error
	return o, errors.Wrap(err, "creating order")
}

func (repo *paymentRepository) DeleteOrder(ctx context.Context, id string) error {
	err := repo.db.WithContext(ctx).Where("id = ?", id).Delete(&payment.Order{}).Error
	return errors.Wrap(err, "deleting order")
}

func (repo *paymentRepository) SetCheckoutURL(ctx context.Context, id, url string) error {
	err := repo.db.WithContext(ctx).Model(&payment.Order{}).Where("id = ?", id).
		Updates(map[string]interface{}{"checkout_url": url, "updated_at": time.Now().UTC()}).Error
	return errors.Wrap(err, "storing checkout url")
}

func (repo *paymentRepository) GetOrderByOrderID(ctx context.Context, orderID string) (payment.Order, error) {
	var o payment.Order
	if err := repo.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&o).Error; err != nil {
		if isNotFound(err) {
			return payment.Order{}, payment.ErrOrderNotFound
		}
		return payment.Order{}, errors.Wrap(err, "getting order")
	}
	return o, nil
}

func (repo *paymentRepository) PendingOrders(ctx context.Context, since time.Time) ([]payment.Order, error) {
	orders := make([]payment.Order, 0)
	err := repo.db.WithContext(ctx).
		Where("status = ? AND created_at > ?", payment.OrderPending, since.UTC()).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	return orders, errors.Wrap(err, "listing pending orders")
}

func (repo *paymentRepository) PaymentExists(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&payment.Payment{}).Where("order_id = ?", orderID).Count(&n).Error
	return n > 0, errors.Wrap(err, "checking payment")
}

func (repo *paymentRepository) HasActiveEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	var n int64
	err := repo.db.WithContext(ctx).Model(&payment.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, payment.EnrollmentActive).
		Count(&n).Error
	return n > 0, errors.Wrap(err, "checking enrollment")
}

func (repo *paymentRepository) RecordPayment(ctx context.Context, o payment.Order, p payment.Payment, enr payment.Enrollment) (bool, error) {
	// a lost enrollment race is retried once: the winner has committed by then
	created, err := repo.recordPayment(ctx, o, p, enr)
	if err == errEnrollmentRace {
		created, err = repo.recordPayment(ctx, o, p, enr)
	}
	if err == errEnrollmentRace {
		return false, errors.Wrap(err, "recording payment")
	}
	return created, err
}

func (repo *paymentRepository) recordPayment(ctx context.Context, o payment.Order, p payment.Payment, enr payment.Enrollment) (bool, error) {
	var created bool
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []payment.Enrollment
		err := tx.Where("user_id = ? AND course_id = ? AND status = ?", o.UserID, o.CourseID, payment.EnrollmentActive).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return errors.Wrap(err, "getting enrollment")
		}

		if len(existing) > 0 {
			enr = existing[0]
		} else {
			if err = tx.Create(&enr).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return errEnrollmentRace
				}
				return errors.Wrap(err, "creating enrollment")
			}
			created = true
		}

		p.EnrollmentID = enr.ID
		if err = tx.Create(&p).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return payment.ErrPaymentExists
			}
			return errors.Wrap(err, "creating payment")
		}

		err = tx.Model(&payment.Order{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
			"status":     payment.OrderPaid,
			"updated_at": p.CreatedAt,
		}).Error
		return errors.Wrap(err, "updating order")
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
