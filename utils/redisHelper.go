package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/marginworks/costbooks_backend/config"
)

// UploadLock guards a single upload against concurrent parsing. Tier-1
// batches carry no natural key, so a double parse would duplicate them;
// transform runs, by contrast, are idempotent and take no lock.
func UploadLock(ctx context.Context, businessId string, uploadId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when the Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", businessId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}

	lockKey := fmt.Sprintf("upload-parse:%s:%d", businessId, uploadId)
	lock, err := locker.Obtain(ctx, lockKey, 5*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain upload parse lock", lockKey, err)
		return nil, errors.New("upload is already being parsed")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining upload parse lock", lockKey, err)
		return nil, err
	}

	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}
