package config

import (
	"os"
	"strconv"
	"sync"
)

var (
	txRetry     int
	txRetryOnce sync.Once
)

// GetTxRetry returns how many times a failing transaction is attempted,
// read once from MCSYNC_TX_RETRY and never less than 3.
func GetTxRetry() int {
	txRetryOnce.Do(func() {
		count, err := strconv.Atoi(os.Getenv("MCSYNC_TX_RETRY"))
		if err != nil || count < 3 {
			count = 3
		}
		txRetry = count
	})

	return txRetry
}
