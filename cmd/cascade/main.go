// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cascade runs the node-side P2P image/file distributor: it
// bootstraps a DHT-only torrent swarm, seeds or pulls this pool's global
// resources, and loads materialized images into the local container
// runtime, per §4.6-§4.8.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Backend client packages register themselves with the backend manager
	// on import.
	_ "github.com/Azure/batch-shipyard-go/lib/backend/s3backend"

	"github.com/Azure/batch-shipyard-go/cascade/clock"
	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/cascade/imagedriver"
	"github.com/Azure/batch-shipyard-go/cascade/scratch"
	cascadetorrent "github.com/Azure/batch-shipyard-go/cascade/torrent"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/lib/backend"
	"github.com/Azure/batch-shipyard-go/lib/containerruntime"
	"github.com/Azure/batch-shipyard-go/lib/metainfogen"
	"github.com/Azure/batch-shipyard-go/localdb"
	"github.com/Azure/batch-shipyard-go/metrics"
	"github.com/Azure/batch-shipyard-go/utils/configutil"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

var (
	configFile string
	cluster    string
	listenIP   string

	rootCmd = &cobra.Command{
		Short: "batch-shipyard-cascade replicates container images and files across a pool's nodes over a DHT-only torrent swarm.",
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFile, "config", "", "", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(
		&cluster, "cluster", "", "", "cluster name (e.g. prod01-zone1)")
	rootCmd.PersistentFlags().StringVarP(
		&listenIP, "ip", "", "", "ip address this node announces itself as")
}

func main() {
	rootCmd.Execute()
}

func run() {
	var config Config
	if err := configutil.Load(configFile, &config); err != nil {
		panic(err)
	}
	log.ConfigureLogger(config.ZapLogging)

	stats, closer, err := metrics.New(config.Metrics, cluster)
	if err != nil {
		log.Fatalf("failed to init metrics: %s", err)
	}
	defer closer.Close()

	go metrics.EmitVersion(stats)

	if listenIP != "" {
		config.Torrent.ListenIP = listenIP
	}

	nodeID := os.Getenv("AZ_BATCH_NODE_ID")
	if nodeID == "" {
		var err error
		nodeID, err = os.Hostname()
		if err != nil {
			log.Fatalf("failed to determine node id: %s", err)
		}
	}

	localDB, err := localdb.New(config.LocalDB)
	if err != nil {
		log.Fatalf("failed to create local db: %s", err)
	}

	backendManager, err := backend.NewManager(config.Backends, config.BackendAuth, stats)
	if err != nil {
		log.Fatalf("failed to create backend manager: %s", err)
	}
	// The operator's backend config is expected to carry a single
	// catch-all namespace (e.g. ".*") for the object store backing every
	// blob container this node touches.
	blobBackend, err := backendManager.GetClient("")
	if err != nil {
		log.Fatalf("failed to resolve blob backend: %s", err)
	}

	storage, err := storageclient.New(config.Storage, blobBackend, localDB)
	if err != nil {
		log.Fatalf("failed to create storage client: %s", err)
	}
	dataClient := data.New(storage)

	engine, err := cascadetorrent.New(config.Torrent, dataClient, config.Partition)
	if err != nil {
		log.Fatalf("failed to create torrent engine: %s", err)
	}
	defer engine.Close()

	scratchDir, err := scratch.New(config.ImageDriver.ScratchDir)
	if err != nil {
		log.Fatalf("failed to create scratch dir: %s", err)
	}

	metaInfoGen, err := metainfogen.New(config.MetaInfoGen)
	if err != nil {
		log.Fatalf("failed to create metainfo generator: %s", err)
	}

	runtimes := containerruntime.NewFactory(config.Runtime)

	driver, err := imagedriver.New(
		config.ImageDriver, config.Partition, nodeID,
		storage, engine, runtimes, metaInfoGen, scratchDir, localDB, stats)
	if err != nil {
		log.Fatalf("failed to create image driver: %s", err)
	}
	defer driver.Close()

	scheduler := clock.New(config.Scheduler, config.Partition, dataClient, driver, engine)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("cascade: shutdown signal received")
		cancel()
	}()

	go engine.BootstrapDHT(ctx)
	go driver.Run(ctx)

	log.Info("cascade: starting scheduler")
	scheduler.Run(ctx)
}
