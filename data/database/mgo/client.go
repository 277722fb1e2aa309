// Package mgo MongoDB 版 Store
package mgo

import (
	"context"
	"math/rand"
	"time"

	"EchoChat/logger"
	"EchoChat/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3

	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Config represents the MongoDB configuration.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize int
	MaxRetry    int
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.URI == "" {
		return errs.ErrArgs.WrapMsg("mongo uri is required")
	}
	if c.Database == "" {
		return errs.ErrArgs.WrapMsg("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	return nil
}

// connect 连接 + ping，失败按退避重试
func connect(ctx context.Context, cfg *Config) (*mongo.Client, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(uint64(cfg.MaxPoolSize))

	var (
		cli *mongo.Client
		err error
	)
	for attempt := 0; attempt < cfg.MaxRetry; attempt++ {
		cli, err = connectOnce(ctx, opts)
		if err == nil {
			return cli, nil
		}
		if !shouldRetry(ctx, err) {
			break
		}
		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		// 抖动 0~20%
		sleep := backoff - time.Duration(rand.Int63n(int64(backoff/5)))/2
		logger.Warnf("[Mongo] connect attempt=%d failed: %v, retry in %s", attempt+1, err, sleep)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errs.WrapMsg(ctx.Err(), "mongo connect canceled")
		case <-timer.C:
		}
	}
	return nil, errs.WrapMsg(err, "failed to connect to MongoDB", "database", cfg.Database)
}

func connectOnce(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}

// shouldRetry 认证失败(13/18)不重试
func shouldRetry(ctx context.Context, err error) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		if cmdErr, ok := err.(mongo.CommandError); ok {
			return cmdErr.Code != 13 && cmdErr.Code != 18
		}
		return true
	}
}
