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
package data

import (
	"time"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// actionMessageVisibility and maxActionMessagesPerPoll implement §4.5 step
// 2: "fetch up to 32 messages with a 1-s visibility timeout."
const (
	actionMessageVisibility  = time.Second
	actionMessageTTL         = 24 * time.Hour
	maxActionMessagesPerPoll = 32
)

func actionQueueName(fedHash string) string { return "fed-" + fedHash }

// GetActionMessages fetches up to a batch of action-queue messages for
// fedHash, per §4.5 step 2.
func (c *Client) GetActionMessages(fedHash string) ([]*storageclient.Message, error) {
	return c.storage.Queue.GetMessages(actionQueueName(fedHash), maxActionMessagesPerPoll, actionMessageVisibility)
}

// DeleteActionMessage removes a processed action-queue message, per §4.5
// step 8.
func (c *Client) DeleteActionMessage(fedHash string, m *storageclient.Message) error {
	return c.storage.Queue.DeleteMessage(actionQueueName(fedHash), m)
}

// PutActionMessage enqueues a new action-queue message for fedHash.
func (c *Client) PutActionMessage(fedHash string, body []byte) error {
	return c.storage.Queue.PutMessage(actionQueueName(fedHash), body, actionMessageVisibility, actionMessageTTL)
}
