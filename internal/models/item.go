package models

import (
	"time"
)

// RetryItem is one pending booking-change request in the retry queue.
// Field names follow the portal payloads, hence the mixed JSON casing.
type RetryItem struct {
	ID              string     `json:"id"`
	TvAppID         string     `json:"tvAppId"`
	StartSlot       string     `json:"startSlot"`
	EndSlot         string     `json:"endSlot"`
	CurrentSlot     string     `json:"currentSlot"`
	Body            SubmitBody `json:"body"`
	URL             string     `json:"url"`
	Status          string     `json:"status"`
	StatusMessage   string     `json:"status_message"`
	StatusColor     string     `json:"status_color,omitempty"`
	DriverName      string     `json:"driverName,omitempty"`
	ContainerNumber string     `json:"containerNumber,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// SubmitBody is the cached form payload that gets resubmitted to the
// portal. Opaque to the queue except for the slot field used for
// date grouping.
type SubmitBody struct {
	Form map[string]string `json:"form"`
}

// SlotField is the form key holding the target slot in
// "DD.MM.YYYY HH:mm:ss" form.
const SlotField = "SlotStart"

// Slot returns the raw target slot string from the form body.
func (b SubmitBody) Slot() string {
	if b.Form == nil {
		return ""
	}
	return b.Form[SlotField]
}

// Valid reports whether the item carries everything the queue requires.
func (i *RetryItem) Valid() bool {
	return i.TvAppID != "" && i.StartSlot != "" && i.URL != "" && i.Status != ""
}

// SameRequest reports whether two items describe the same booking-change
// attempt. (tvAppId, startSlot) is the queue uniqueness key.
func (i *RetryItem) SameRequest(other *RetryItem) bool {
	return i.TvAppID == other.TvAppID && i.StartSlot == other.StartSlot
}

// ItemPatch is a partial update applied to a queue item. Nil fields are
// left untouched, mirroring a shallow object merge.
type ItemPatch struct {
	Status          *string `json:"status,omitempty"`
	StatusMessage   *string `json:"status_message,omitempty"`
	StatusColor     *string `json:"status_color,omitempty"`
	DriverName      *string `json:"driverName,omitempty"`
	ContainerNumber *string `json:"containerNumber,omitempty"`
	StartSlot       *string `json:"startSlot,omitempty"`
	EndSlot         *string `json:"endSlot,omitempty"`
	CurrentSlot     *string `json:"currentSlot,omitempty"`
}

// Apply merges the patch into the item.
func (p ItemPatch) Apply(item *RetryItem) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.StatusMessage != nil {
		item.StatusMessage = *p.StatusMessage
	}
	if p.StatusColor != nil {
		item.StatusColor = *p.StatusColor
	}
	if p.DriverName != nil {
		item.DriverName = *p.DriverName
	}
	if p.ContainerNumber != nil {
		item.ContainerNumber = *p.ContainerNumber
	}
	if p.StartSlot != nil {
		item.StartSlot = *p.StartSlot
	}
	if p.EndSlot != nil {
		item.EndSlot = *p.EndSlot
	}
	if p.CurrentSlot != nil {
		item.CurrentSlot = *p.CurrentSlot
	}
}

// StatusPatch is a convenience constructor for the common transition of
// status plus message.
func StatusPatch(status, message string) ItemPatch {
	return ItemPatch{Status: &status, StatusMessage: &message}
}

// QueueStatistics summarizes the queue for the UI and the stats endpoint.
type QueueStatistics struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	AverageElapsed time.Duration  `json:"average_elapsed"`
}

// NotificationSettings is the user preference blob stored under
// NotificationSettingsKey.
type NotificationSettings struct {
	DesktopEnabled  bool   `json:"desktopEnabled"`
	EmailEnabled    bool   `json:"emailEnabled"`
	Email           string `json:"email,omitempty"`
	TelegramEnabled bool   `json:"telegramEnabled"`
	TelegramChatID  int64  `json:"telegramChatId,omitempty"`
}
