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
package imagedriver

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// slotBlobName names the i'th numbered direct-download lease placeholder in
// the global-resources container, per §4.7 step 1.
func slotBlobName(i int) string {
	return fmt.Sprintf("slot-%d", i)
}

// acquireSlot holds one of up to ConcurrentDownloads numbered blob leases,
// cycling through slot names until one is free. It starts a 15-s renewal
// goroutine that stops when the returned release func is called or ctx is
// cancelled.
func (d *Driver) acquireSlot(ctx context.Context) (func(), error) {
	for {
		for i := 0; i < d.config.ConcurrentDownloads; i++ {
			lease, err := d.storage.Lease.AcquireLease(
				d.config.GlobalResourcesContainer, slotBlobName(i), d.config.LeaseDuration)
			if err == storageclient.ErrLeaseAlreadyHeld {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("acquire slot %d: %s", i, err)
			}
			renewCtx, cancel := context.WithCancel(ctx)
			go d.renewSlot(renewCtx, lease)
			release := func() {
				cancel()
				if err := d.storage.Lease.ReleaseLease(lease); err != nil {
					log.Warnf("cascade: release slot lease: %s", err)
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (d *Driver) renewSlot(ctx context.Context, lease *storageclient.Lease) {
	ticker := time.NewTicker(d.config.LeaseRenewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.storage.Lease.RenewLease(lease, d.config.LeaseDuration); err != nil {
				log.Warnf("cascade: renew slot lease: %s", err)
				return
			}
		}
	}
}
