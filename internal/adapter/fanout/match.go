package fanout

import (
	"fmt"
	"strings"

	"github.com/V4T54L/carepulse/internal/domain"
)

// channelMatches reports whether a subscription channel covers a publish channel.
// A trailing "*" matches any suffix, so "patient:*" covers "patient:42" and "*" covers everything.
func channelMatches(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

// filterMatches checks every filter attribute against the message. "type" and
// "entity_id" address the envelope, any other key a top-level payload field.
func filterMatches(filter map[string]string, msg domain.Message) bool {
	for k, want := range filter {
		var got string
		switch k {
		case "type":
			got = msg.Type
		case "entity_id":
			got = msg.EntityID
		default:
			v, ok := msg.Payload[k]
			if !ok {
				return false
			}
			got = fmt.Sprint(v)
		}
		if got != want {
			return false
		}
	}
	return true
}
