package chat

import (
	"context"
	"fmt"
	"log/slog"
)

// apologyDetailLimit caps how much of an internal error leaks into the
// user-facing apology.
const apologyDetailLimit = 120

// Reply is the outermost chat boundary: it never fails. Any error from the
// pipeline is logged and collapsed into a polite apology carrying a bounded
// slice of the error text, so the conversation survives provider outages.
func (a *Answerer) Reply(ctx context.Context, query string, history []Turn) string {
	answer, err := a.Answer(ctx, query, history)
	if err != nil {
		a.log.Error("chat failed", slog.Any("error", err))
		return Apology(err)
	}
	return answer
}

// Apology formats the user-facing failure message with the error detail
// truncated to apologyDetailLimit characters.
func Apology(err error) string {
	detail := []rune(err.Error())
	if len(detail) > apologyDetailLimit {
		detail = detail[:apologyDetailLimit]
	}
	return fmt.Sprintf("Sorry, I hit an error. Please try again. (details: %s)", string(detail))
}
