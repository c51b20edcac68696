package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

// NotificationService records notifications durably and fans them out to
// live transports. Persistence is part of the caller's flow; websocket and
// ntfy delivery happen in the background and never fail the caller.
type NotificationService struct {
	config *config.Config
	store  *store.Store
	hub    *Hub
}

func NewNotificationService(cfg *config.Config, st *store.Store, hub *Hub) *NotificationService {
	return &NotificationService{
		config: cfg,
		store:  st,
		hub:    hub,
	}
}

type NtfyMessage struct {
	Topic    string   `json:"topic"`
	Message  string   `json:"message"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// Notify stores the notification for its target group and dispatches it to
// any connected websocket clients plus the ntfy topic if one is configured.
func (ns *NotificationService) Notify(ctx context.Context, event models.NotificationEvent) (*models.Notification, error) {
	data := models.JSONMap(event.Data)
	if data == nil {
		data = models.JSONMap{}
	}

	notification := &models.Notification{
		Recipient:        event.TargetGroup,
		NotificationType: event.Type,
		Title:            event.Title,
		Message:          event.Message,
		IsRead:           false,
		CreatedAt:        time.Now().UTC(),
		Data:             data,
	}

	err := ns.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := ns.store.InsertReturningID(ctx, tx, `
			INSERT INTO notifications (recipient, notification_type, title, message, is_read, created_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			notification.Recipient, notification.NotificationType, notification.Title,
			notification.Message, notification.IsRead, notification.CreatedAt, notification.Data)
		if err != nil {
			return err
		}
		notification.ID = id
		return nil
	})
	if err != nil {
		return nil, fault.NewInternalError("failed to store notification", err)
	}

	go ns.hub.Broadcast(event)
	go func() {
		if err := ns.sendNtfy(event); err != nil {
			log.Printf("Failed to send ntfy notification: %v", err)
		}
	}()

	return notification, nil
}

// List returns the actor's notifications, newest first.
func (ns *NotificationService) List(ctx context.Context, actor string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	query := ns.store.Rebind(`
		SELECT id, recipient, notification_type, title, message, is_read, created_at, data
		FROM notifications WHERE recipient = ? ORDER BY created_at DESC, id DESC`)
	if err := ns.store.DB.SelectContext(ctx, &notifications, query, userGroup(actor)); err != nil {
		return nil, fault.NewInternalError("failed to list notifications", err)
	}
	return notifications, nil
}

func (ns *NotificationService) UnreadCount(ctx context.Context, actor string) (int, error) {
	var count int
	query := ns.store.Rebind(`SELECT COUNT(*) FROM notifications WHERE recipient = ? AND NOT is_read`)
	if err := ns.store.DB.GetContext(ctx, &count, query, userGroup(actor)); err != nil {
		return 0, fault.NewInternalError("failed to count unread notifications", err)
	}
	return count, nil
}

// MarkRead flags one of the actor's notifications as read. Notifications
// belonging to other recipients are reported as missing, not forbidden.
func (ns *NotificationService) MarkRead(ctx context.Context, actor string, id int64) error {
	query := ns.store.Rebind(`UPDATE notifications SET is_read = ? WHERE id = ? AND recipient = ?`)
	result, err := ns.store.DB.ExecContext(ctx, query, true, id, userGroup(actor))
	if err != nil {
		return fault.NewInternalError("failed to mark notification read", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fault.NewInternalError("failed to mark notification read", err)
	}
	if affected == 0 {
		return fault.NewClientError("notification not found", fault.ErrNotificationNotFound)
	}
	return nil
}

func (ns *NotificationService) MarkAllRead(ctx context.Context, actor string) error {
	query := ns.store.Rebind(`UPDATE notifications SET is_read = ? WHERE recipient = ? AND NOT is_read`)
	if _, err := ns.store.DB.ExecContext(ctx, query, true, userGroup(actor)); err != nil {
		return fault.NewInternalError("failed to mark notifications read", err)
	}
	return nil
}

func (ns *NotificationService) sendNtfy(event models.NotificationEvent) error {
	ntfy := ns.config.Notifications.Ntfy
	if !ntfy.Enabled {
		return nil
	}

	msg := NtfyMessage{
		Topic:    ntfy.Topic,
		Title:    event.Title,
		Message:  event.Message,
		Tags:     []string{"incoming_envelope", "feedback"},
		Priority: 3,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ntfy message: %w", err)
	}

	req, err := http.NewRequest("POST", ntfy.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if ntfy.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ntfy.Token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
