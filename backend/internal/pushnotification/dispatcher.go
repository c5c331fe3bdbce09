package pushnotification

import (
	"context"
	"log/slog"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

// Dispatcher notifies a conversation's owner when a turn's workflow run
// finishes.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

// Start consumes bus events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type != eventbus.TypeTaskEvent {
				continue
			}
			if te, ok := event.Payload.(agenttask.TaskEvent); ok {
				d.handleTaskEvent(ctx, te)
			}
		}
	}
}

func (d *Dispatcher) handleTaskEvent(ctx context.Context, te agenttask.TaskEvent) {
	if te.Event != string(dify.EventWorkflowFinished) || te.UserID == "" {
		return
	}
	d.sender.SendToUser(ctx, te.UserID, notificationFor(te))
}

func notificationFor(te agenttask.TaskEvent) *NotificationPayload {
	p := &NotificationPayload{
		Title: "方案已生成",
		Body:  stage.Label(te.Mode, stage.KeyResult) + "已完成，点击查看",
		URL:   "/chat/" + te.ConversationID,
		Tag:   te.ConversationID,
	}
	if te.Status == stage.StatusFailed {
		p.Title = "方案生成失败"
		p.Body = "工作流执行失败，请稍后重试"
	}
	return p
}
