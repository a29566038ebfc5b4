package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"carbon-registry/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// event is staged by a handler and appended to the ledger log on commit.
type event struct {
	Type string
	Data map[string]interface{}
}

// execution is what a handler sees: the signers of the instruction and a transactional
// view of the record store.
type execution struct {
	*view
	instruction string
	signers     []domain.Pubkey
	events      []event
}

func (e *execution) caller() domain.Pubkey {
	return e.signers[0]
}

func (e *execution) emit(eventType string, data map[string]interface{}) {
	e.events = append(e.events, event{Type: eventType, Data: data})
}

// execute holds exclusive locks on every declared address, then runs fn and the event
// appends in one transaction. Any error from fn rolls back every write it staged.
func (s *Service) execute(ctx context.Context, instruction string, signers []domain.Pubkey, keys []domain.Pubkey, fn func(e *execution) error) error {
	if len(signers) == 0 {
		return domain.ErrUnauthorized
	}
	lockKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		lockKeys = append(lockKeys, k.String())
	}
	unlock, err := s.Locker.Lock(ctx, lockKeys...)
	if err != nil {
		return fmt.Errorf("%s: %w", instruction, err)
	}
	defer unlock()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e := &execution{
			view:        &view{tx: tx, addresses: s.Addresses},
			instruction: instruction,
			signers:     signers,
		}
		if err := fn(e); err != nil {
			return err
		}
		for _, ev := range e.events {
			data, err := json.Marshal(ev.Data)
			if err != nil {
				return err
			}
			if err := tx.Create(&domain.LedgerEvent{
				Instruction: instruction,
				EventType:   ev.Type,
				Signer:      e.caller().String(),
				EventData:   datatypes.JSON(data),
			}).Error; err != nil {
				return fmt.Errorf("append %s event: %w", ev.Type, err)
			}
		}
		return nil
	})

	logger := log.With().Str("instruction", instruction).Str("signer", signers[0].String()).Logger()
	if err != nil {
		if kind := domain.KindOf(err); kind != "" {
			logger.Info().Str("kind", string(kind)).Err(err).Msg("instruction rejected")
		} else {
			logger.Error().Err(err).Msg("instruction failed")
		}
		return err
	}
	logger.Info().Msg("instruction applied")
	return nil
}
