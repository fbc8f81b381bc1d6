// Command brokerd runs the message-broker runtime of spec.md §3: a
// block-transfer listener backed by a composite backend that forwards
// dispatch traffic between peers (backend.BrokerBackend) and serves
// chunk-storage commands against a local RocksDB-backed store
// (backend.DataChunkStorageBackend). Flag parsing is intentionally
// minimal, per spec.md §1's non-goals.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/jpmorganchase/swblocks-baselib-sub004/authcache"
	"github.com/jpmorganchase/swblocks-baselib-sub004/backend"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/config"
	"github.com/jpmorganchase/swblocks-baselib-sub004/server"
	"github.com/jpmorganchase/swblocks-baselib-sub004/storage"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

func main() {
	var listenAddr = flag.String("listen", ":9300", "address to listen on for block-transfer connections")
	var configPath = flag.String("config", "", "path to a YAML config file overlaying the defaults")
	var dataDir = flag.String("data-dir", "brokerd-data", "directory backing the local RocksDB chunk store")
	var requireAuth = flag.Bool("require-auth", false, "require the client-authentication handshake on every connection")
	var logLevel = flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	var cfg = config.Default()
	if *configPath != "" {
		var loaded, err = config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("load config")
		}
		cfg = loaded
	}

	var rocks, err = storage.OpenRocksStore(*dataDir)
	if err != nil {
		log.WithError(err).Fatal("open rocksdb store")
	}
	defer rocks.Close()

	var io = task.NewIOService(4)
	var pool = block.NewPool(64, 1<<20)

	var async = storage.NewAsync(io, rocks, rocks, pool, 8, nil, nil)
	var storageBackend = backend.NewDataChunkStorageBackend(async)

	var authCache = authcache.NewMemCache("bearer", io)
	authCache.ConfigureFreshnessInterval(cfg.Conversation.AckTimeout)

	var dispatcher = server.NewConnDispatcher(io, 8, 64)
	var brokerBackend = backend.NewBrokerBackend(io, authCache, dispatcher, 8)

	var composite = backend.NewCompositeBackend(brokerBackend, storageBackend)
	var srv = server.New(composite, pool, *requireAuth)

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	var ln, lerr = net.Listen("tcp", *listenAddr)
	if lerr != nil {
		log.WithError(lerr).Fatal("listen")
	}

	log.WithField("addr", ln.Addr().String()).Info("brokerd listening")
	if err := srv.Serve(ctx, ln); err != nil {
		log.WithError(err).Error("serve")
	}
}
