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
	"html"
	"strings"

	"github.com/kglowing/replybot/internal/graph"
)

// normalizeBody converts a message body to plain text for the language
// model: HTML bodies get their tags stripped and entities decoded, anything
// else passes through unchanged.
func normalizeBody(body graph.Body) string {
	if strings.EqualFold(body.ContentType, "html") {
		return stripHTML(body.Content)
	}
	return body.Content
}

// stripHTML removes markup tags and decodes entities. Unterminated tags are
// dropped to the end of input.
func stripHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	for _, r := range s {
		switch {
		case inTag:
			if r == '>' {
				inTag = false
			}
		case r == '<':
			inTag = true
		default:
			b.WriteRune(r)
		}
	}

	return html.UnescapeString(b.String())
}
