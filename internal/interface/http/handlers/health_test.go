package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker_AllHealthy(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")
	c.AddCheck("storage", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddCheck("cache", NewPingCheck(pingFunc(func(context.Context) error { return nil })))

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "OK", status.Checks["storage"].Message)
}

func TestCompositeHealthChecker_Failure(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.AddCheck("storage", func(context.Context) error { return nil })
	c.AddCheck("cache", func(context.Context) error { return errors.New("connection refused") })
	c.AddCheck("broker", func(context.Context) error { return errors.New("no brokers") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "failed: broker, cache", status.Message)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)
	assert.True(t, status.Checks["storage"].Healthy)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestCompositeHealthChecker_RemoveCheck(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.AddCheck("cache", func(context.Context) error { return errors.New("down") })
	c.RemoveCheck("cache")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "no checks registered", status.Message)
}
