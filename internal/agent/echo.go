// ABOUTME: Echo agent that answers every message with a markdown reply
// ABOUTME: Runs in-process as a dispatch.Responder or against a bus as a consumer

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/webchat-gateway/internal/dispatch"
)

// Echo returns the reply for input. Requests mentioning markdown or lists get
// a canned formatted answer; everything else is echoed back in bold.
func Echo(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}

// Responder adapts Echo to dispatch.Responder for in-process use.
func Responder() dispatch.Responder {
	return dispatch.ResponderFunc(func(ctx context.Context, content, _, _, _ string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return Echo(content), nil
	})
}
