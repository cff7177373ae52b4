// Copyright (c) 2026 K Glowing
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

package reply

import (
	"fmt"
	"strings"

	"github.com/kglowing/replybot/internal/graph"
)

// maxThreadEntryLen caps each prior message's body in the thread context,
// counted in characters, not bytes.
const maxThreadEntryLen = 1000

// buildThreadContext assembles the conversation history handed to the
// language model. Messages arrive in chronological order; the triggering
// message itself is skipped, each body is normalized and truncated to
// maxThreadEntryLen with an ellipsis marker, and every entry carries a
// header of sender name and receive date.
func buildThreadContext(thread []graph.Message, triggerID string) string {
	var entries []string
	for _, msg := range thread {
		if msg.ID == triggerID {
			continue
		}

		body := normalizeBody(msg.Body)
		if runes := []rune(body); len(runes) > maxThreadEntryLen {
			body = string(runes[:maxThreadEntryLen]) + "..."
		}

		name := msg.From.EmailAddress.Name
		if name == "" {
			name = msg.From.EmailAddress.Address
		}

		// Keep just the date part of the receive timestamp.
		date, _, _ := strings.Cut(msg.ReceivedDateTime, "T")

		entries = append(entries, fmt.Sprintf("From: %s (%s)\n%s", name, date, body))
	}

	return strings.Join(entries, "\n\n")
}
