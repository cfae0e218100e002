package services

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const withdrawalsDisabledKey = "withdrawals:disabled"

// KillSwitch is a platform-wide flag that disables outbound
// withdrawals, set automatically when the system threshold breaches
// and cleared by an operator. The flag is advisory: reads fail open
// because every withdrawal still passes the fail-closed per-request
// checks even when redis is down.
type KillSwitch struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewKillSwitch(rdb *redis.Client, log *zap.Logger) *KillSwitch {
	return &KillSwitch{rdb: rdb, log: log}
}

func (k *KillSwitch) WithdrawalsDisabled(ctx context.Context) (bool, error) {
	val, err := k.rdb.Get(ctx, withdrawalsDisabledKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		k.log.Warn("kill switch read failed", zap.Error(err))
		return false, err
	}
	return val == "1", nil
}

func (k *KillSwitch) DisableWithdrawals(ctx context.Context) error {
	// No TTL. The flag stays until an operator clears it.
	return k.rdb.Set(ctx, withdrawalsDisabledKey, "1", 0).Err()
}

func (k *KillSwitch) EnableWithdrawals(ctx context.Context) error {
	return k.rdb.Del(ctx, withdrawalsDisabledKey).Err()
}
