package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/segyhp/loan-tracker/internal/config"
)

func TestPingers_SkipsMissingStores(t *testing.T) {
	assert.Empty(t, Pingers(nil, nil, nil))

	rdb := OpenRedis(config.RedisConfig{Host: "localhost", Port: "6379"})
	defer rdb.Close()

	checks := Pingers(nil, rdb, nil)
	assert.Len(t, checks, 1)
	assert.Contains(t, checks, "redis")
}

func TestPingFunc(t *testing.T) {
	boom := errors.New("boom")
	var p Pinger = PingFunc(func(context.Context) error { return boom })

	assert.ErrorIs(t, p.Ping(context.Background()), boom)
}
