package synod

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a text logger writing to out at the named level
// ("debug", "info", "warn", "error", ...).
func NewLogger(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrInvalidConfig, level)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func randInt(r *rand.Rand, min int, max int) int {
	return min + r.Intn(max-min)
}

// pickDistinct returns k distinct elements of from, chosen uniformly.
func pickDistinct(r *rand.Rand, from []int, k int) []int {
	pool := append([]int(nil), from...)
	for i := 0; i < k && i < len(pool); i++ {
		j := randInt(r, i, len(pool))
		pool[i], pool[j] = pool[j], pool[i]
	}
	if k > len(pool) {
		k = len(pool)
	}
	return pool[:k]
}
