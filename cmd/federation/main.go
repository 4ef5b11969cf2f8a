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

// Command federation runs the federation controller: discovers
// federations and pools, refreshes their cloud-side state, and drives the
// per-federation action-queue pipeline, per §4.3-§4.5 and §4.8.
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

	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/Azure/batch-shipyard-go/federation/clock"
	"github.com/Azure/batch-shipyard-go/federation/data"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/lib/backend"
	"github.com/Azure/batch-shipyard-go/localdb"
	"github.com/Azure/batch-shipyard-go/metrics"
	"github.com/Azure/batch-shipyard-go/utils/configutil"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

var (
	configFile string
	cluster    string

	rootCmd = &cobra.Command{
		Short: "batch-shipyard-federation discovers pools across federations and dispatches their queued job actions.",
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
	// blob container this controller touches.
	blobBackend, err := backendManager.GetClient("")
	if err != nil {
		log.Fatalf("failed to resolve blob backend: %s", err)
	}

	storage, err := storageclient.New(config.Storage, blobBackend, localDB)
	if err != nil {
		log.Fatalf("failed to create storage client: %s", err)
	}

	dataClient := data.New(storage)
	batch := batchclient.New(config.BatchClient, &staticTokenProvider{token: config.StaticToken})

	scheduler := clock.New(config.Scheduler, dataClient, batch, stats, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("federation: shutdown signal received")
		cancel()
	}()

	log.Info("federation: starting scheduler")
	scheduler.Run(ctx)
}
