package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spacearena/config"
	"spacearena/geom"
	"spacearena/server"
	"spacearena/store"
)

// SpaceArena 入口：加载配置，启动存储、世界 Tick 与 HTTP + WebSocket 服务
func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "spacearena.json", "config file (optional)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Log.File, cfg.Log.Level, cfg.Log.Console); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	db, err := store.Open(store.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, DSN: cfg.DB.DSN}, server.Log)
	if err != nil {
		server.Log.Fatalf("store: %v", err)
	}
	defer db.Close()

	metrics := &server.Metrics{}
	writer := server.NewWriter(db, 1024, metrics)
	writer.Start()

	world := server.NewWorld(server.WorldOptions{
		Width:        cfg.World.Width,
		Height:       cfg.World.Height,
		Base:         geom.Vec{X: cfg.World.BaseX, Y: cfg.World.BaseY},
		SafetyRadius: cfg.World.SafetyRadius,
		Hostiles:     cfg.World.Hostiles,
		Resources:    cfg.World.Resources,
		Seed:         cfg.World.Seed,
		RespawnDelay: cfg.Sim.RespawnDelay,
	}, writer, metrics)
	room := server.NewRoom(world, server.NewAddressRegistry(), metrics, server.RoomOptions{AFKTimeout: cfg.Sim.AFKTimeout})
	clock := server.NewClock(room, cfg.TickInterval(), cfg.Sim.SaveInterval)
	clock.Start()

	gateway := server.NewGateway(room, db, db, server.GatewayOptions{
		TrustProxy:        cfg.Server.TrustProxy,
		MessagesPerSecond: cfg.Net.MessagesPerSecond,
		MessageBurst:      cfg.Net.MessageBurst,
		SendBuffer:        cfg.Net.SendBuffer,
	})
	admin := server.NewAdminHandlers(room)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.HandleWS)
	// 前后端分离：将 / 映射到静态资源目录
	mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", admin.HandleAdminConfig)
	mux.HandleFunc("/metrics", admin.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		server.Log.Infof("SpaceArena listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// 先停 Tick，再在当前协程断开所有玩家（每人留下最终存档），最后写完存档队列
	clock.Stop()
	room.CloseAll("Server shutting down")
	writer.Close()
}
