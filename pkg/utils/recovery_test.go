package utils

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"go.uber.org/zap/zaptest"
)

func setupTestLogger(t *testing.T) {
	original := logger.Log
	logger.Log = zaptest.NewLogger(t)
	t.Cleanup(func() { logger.Log = original })
}

func TestSafeGo(t *testing.T) {
	setupTestLogger(t)

	done := make(chan struct{})
	SafeGo(func() { close(done) }, nil)
	<-done

	var wg sync.WaitGroup
	wg.Add(1)
	var recovered interface{}
	SafeGo(func() {
		panic("boom")
	}, func(r interface{}, _ []byte) {
		recovered = r
		wg.Done()
	})
	wg.Wait()
	assert.Equal(t, "boom", recovered)
}

func TestWrapWithRecovery(t *testing.T) {
	setupTestLogger(t)

	assert.NoError(t, WrapWithRecovery(func() error { return nil })())
	assert.EqualError(t, WrapWithRecovery(func() error { return errors.New("plain") })(), "plain")
	assert.EqualError(t, WrapWithRecovery(func() error { panic("kaboom") })(), "panic recovered: kaboom")
}
