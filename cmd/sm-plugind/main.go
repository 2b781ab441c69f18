package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/index"
	"github.com/xapi-project/xapi-storage-script/metrics"
	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/supervisor"
	"github.com/xapi-project/xapi-storage-script/switchbus"
)

func main() {
	var root, statePath, logLevel, switchAddr string

	flag.StringVarP(&root, "root", "r", "/var/lib/sm-plugins", "plugin root: <root>/volume and <root>/datapath")
	flag.StringVarP(&statePath, "state", "s", "/var/lib/sm-plugind/state", "attached-SR index persistence directory")
	flag.StringVarP(&logLevel, "log-level", "l", "info", "log level: debug/info/warning/error/fatal")
	flag.StringVarP(&switchAddr, "listen", "a", ":8080", "message switch bind address")
	flag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithFields(log.Fields{
			"error":    err,
			"logLevel": logLevel,
		}).Warn("invalid log level, defaulting to info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		log.WithFields(log.Fields{
			"error": err,
			"root":  root,
		}).Error("plugin root directory does not exist")
		os.Exit(1)
	}

	resolver := plugin.NewResolver(root)

	idx, rpcErr := index.Open(statePath)
	if rpcErr != nil {
		log.WithFields(log.Fields{
			"error": rpcErr,
			"state": statePath,
		}).Error("failed to open attached-SR index")
		os.Exit(1)
	}

	registry := datapath.NewRegistry(resolver)
	metricsReg := metrics.New(prometheus.NewRegistry())
	sw := switchbus.New(switchAddr)

	volumeQueues := supervisor.NewVolumeQueues(resolver, idx, registry, metricsReg, sw)
	datapathQueues := supervisor.NewDatapathQueues(registry)
	super := supervisor.New(resolver, volumeQueues, datapathQueues)

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.WithField("signal", s).Info("received shutdown signal")
		cancel()
		sw.Shutdown(switchbus.DefaultShutdownTimeout)
	}()

	go func() {
		if err := sw.Run(); err != nil {
			log.WithError(err).Warn("message switch listener stopped")
		}
	}()

	log.WithFields(log.Fields{
		"root":   root,
		"state":  statePath,
		"listen": switchAddr,
	}).Info("sm-plugind starting")

	if err := super.Run(ctx); err != nil {
		log.WithError(err).Fatal("watcher stopped unexpectedly")
	}

	log.Info("sm-plugind exiting cleanly")
	os.Exit(0)
}
