package store

import (
	"fmt"

	"github.com/campusrewards/ledger-service/internal/domain"
)

func accountNotFound(id string) error {
	return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
}

func transactionNotFound(id int64) error {
	return fmt.Errorf("%w: %d", domain.ErrTransactionNotFound, id)
}

func promotionNotFound(id int64) error {
	return fmt.Errorf("%w: %d", domain.ErrPromotionNotFound, id)
}

func eventNotFound(id int64) error {
	return fmt.Errorf("%w: %d", domain.ErrEventNotFound, id)
}
