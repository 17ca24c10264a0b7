package paymentsvc

import (
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
)

// NewGateway returns the gateway of the configured provider.
func NewGateway(conf *core.Config) (payment.Gateway, error) {
	switch conf.Payment.Provider {
	case "midtrans":
		return NewMidtransGateway(conf), nil
	case "cashfree":
		return NewCashfreeGateway(conf), nil
	}
	return nil, errors.Errorf("unknown payment provider %q", conf.Payment.Provider)
}
