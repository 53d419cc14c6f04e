// Package notify fans successful-rebooking notifications out to the
// configured sinks: desktop command, email and Telegram. Sinks fail
// independently; a dead SMTP server never hides the desktop popup.
package notify

import (
	"fmt"
	"strings"

	"slotwatch/internal/models"
)

const subject = "Слот перенесен"

// renderText builds the human-facing notification body shared by all
// sinks.
func renderText(n models.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Заявка %s перенесена на %s", n.TvAppID, n.BookingTime)
	if n.DriverName != "" {
		fmt.Fprintf(&b, "\nВодитель: %s", n.DriverName)
	}
	if n.ContainerNumber != "" {
		fmt.Fprintf(&b, "\nКонтейнер: %s", n.ContainerNumber)
	}
	return b.String()
}
