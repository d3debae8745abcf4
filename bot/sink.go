// bot/sink.go
package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/devzayn/otpbazaar_backend/models"
)

// JobProgress prompts the owning admin when the engine needs something from
// them. Implements the bulk service's progress sink. Intermediate snapshots
// for the same (number, state) pair are deduplicated so the chat is not
// flooded while the dashboard polls.
func (b *Bot) JobProgress(owner int64, snap models.ProgressSnapshot) {
	key := fmt.Sprintf("%d:%s", snap.CurrentIndex, snap.CurrentState)

	b.mu.Lock()
	if b.notified[owner] == key {
		b.mu.Unlock()
		return
	}
	b.notified[owner] = key
	b.mu.Unlock()

	var text string
	switch snap.CurrentState {
	case models.AttemptCodeRequested:
		text = fmt.Sprintf("(%d/%d) Sending code to %s...",
			snap.CurrentIndex+1, snap.Total, snap.CurrentPhone)
	case models.AttemptAwaitingCode:
		text = fmt.Sprintf("(%d/%d) Code sent to %s.\nReply with the 5-digit code, or 'skip'.",
			snap.CurrentIndex+1, snap.Total, snap.CurrentPhone)
	case models.AttemptAwaitingPassword:
		text = fmt.Sprintf("(%d/%d) %s has two-step verification.\nReply with the password, or 'skip'.",
			snap.CurrentIndex+1, snap.Total, snap.CurrentPhone)
	default:
		return
	}

	if _, err := b.tb.Send(&tele.User{ID: owner}, text, b.controlKeyboard(snap.Running)); err != nil {
		b.logger.Printf("Failed to send progress prompt to %d: %v", owner, err)
	}
}

// JobCompleted sends the final summary to the owning admin
func (b *Bot) JobCompleted(owner int64, summary models.BulkSummary) {
	b.mu.Lock()
	delete(b.notified, owner)
	b.mu.Unlock()

	if _, err := b.tb.Send(&tele.User{ID: owner}, renderSummary(summary)); err != nil {
		b.logger.Printf("Failed to send summary to %d: %v", owner, err)
	}
}
