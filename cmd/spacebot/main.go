package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"spacearena/client"
	"spacearena/protocol"
)

// spacebot 无界面压测/演示客户端：若干机器人登录后自动索敌、开火
func main() {
	var (
		url      string
		user     string
		pass     string
		codec    string
		bots     int
		duration time.Duration
		register bool
		verbose  bool
	)
	flag.StringVar(&url, "url", "ws://localhost:8080/ws", "server websocket url")
	flag.StringVar(&user, "user", "bot", "username prefix; bots are named <user>1..<user>N")
	flag.StringVar(&pass, "pass", "hunter22", "password for every bot")
	flag.StringVar(&codec, "codec", "json", "wire codec: json | msgpack")
	flag.IntVar(&bots, "n", 1, "number of bots")
	flag.DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	flag.BoolVar(&register, "register", true, "register accounts before logging in")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 1; i <= bots; i++ {
		name := fmt.Sprintf("%s%d", user, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			blog := log.With("bot", name)
			stats, err := runBot(ctx, client.Options{URL: url, Codec: protocol.CodecByName(codec), Log: blog}, name, pass, register)
			if err != nil {
				blog.Errorf("bot stopped: %v", err)
				return
			}
			blog.Infof("bot finished: snapshots=%d corrections=%d shots=%d localHits=%d kills=%d",
				stats.Snapshots, stats.Corrections, stats.ShotsFired, stats.LocalHits, stats.Kills)
		}()
	}
	wg.Wait()
}

func runBot(ctx context.Context, opts client.Options, name, pass string, register bool) (client.Stats, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.Dial(dialCtx, opts)
	if err != nil {
		return client.Stats{}, err
	}
	if register {
		resp, err := c.Register(dialCtx, name, pass)
		if err != nil {
			return client.Stats{}, err
		}
		if !resp.Success {
			opts.Log.Infof("register skipped: %s", resp.Message)
		}
	}
	if _, err := c.Login(dialCtx, name, pass); err != nil {
		return client.Stats{}, err
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return c.Stats(), err
	}
	return c.Stats(), nil
}
