package interfaces

import (
	"context"

	"github.com/m-mizutani/hearth/pkg/model"
)

// RetentionPolicy returns deny reasons for an exchange. An empty result means
// the exchange may proceed to scoring.
type RetentionPolicy interface {
	Deny(ctx context.Context, ex model.Exchange) ([]string, error)
}
