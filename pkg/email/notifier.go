package email

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
)

// Event identifies a lifecycle transition worth telling a party about.
type Event string

const (
	EventMatched        Event = "matched"
	EventPickedUp       Event = "picked_up"
	EventDelivered      Event = "delivered"
	EventDisputed       Event = "disputed"
	EventPickupReminder Event = "pickup_reminder"
	EventRebroadcast    Event = "rebroadcast"
	EventSignalLost     Event = "signal_lost"
	EventCarrierFlagged Event = "carrier_flagged"
)

var subjects = map[Event]string{
	EventMatched:        "A carrier accepted your delivery",
	EventPickedUp:       "Your parcel is on its way",
	EventDelivered:      "Your parcel was delivered",
	EventDisputed:       "Delivery needs attention",
	EventPickupReminder: "Reminder: parcel waiting for pickup",
	EventRebroadcast:    "Your delivery is looking for a new carrier",
	EventSignalLost:     "Carrier signal lost on an active delivery",
	EventCarrierFlagged: "Carrier flagged for review",
}

var bodyTmpl = template.Must(template.New("event").Parse(
	`<html><body>
<p>Hi {{.Name}},</p>
<p>{{.Line}}</p>
<p>Delivery reference: <strong>{{.DeliveryID}}</strong></p>
</body></html>`))

var lines = map[Event]string{
	EventMatched:        "Good news: a verified carrier accepted your delivery. Share the drop-off code with the recipient using the tracking link.",
	EventPickedUp:       "The carrier confirmed pickup with your code. You can follow the parcel on the tracking page.",
	EventDelivered:      "The recipient confirmed the handover. Settlement is in cash as agreed.",
	EventDisputed:       "Repeated code failures were recorded on this delivery. An admin will review it and contact both parties.",
	EventPickupReminder: "Your accepted delivery has not been picked up yet. It will be re-posted if pickup is not confirmed within 30 minutes of matching.",
	EventRebroadcast:    "Your delivery was returned to the open pool and other carriers can now accept it.",
	EventSignalLost:     "No position report has been received for over 10 minutes on an active delivery.",
	EventCarrierFlagged: "A carrier exceeded the dropout threshold in the last 30 days and needs a manual review.",
}

// Notifier is the dispatcher the delivery core calls on status transitions.
// Implementations must not block the transition; Dispatch is fire-and-forget.
type Notifier interface {
	Dispatch(event Event, deliveryID, recipientEmail, recipientName string)
}

// EmailNotifier sends one event mail per Dispatch call on a background
// goroutine. Send failures are logged and dropped.
type EmailNotifier struct {
	sender ServiceInterface
}

func NewEmailNotifier(sender ServiceInterface) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Dispatch(event Event, deliveryID, recipientEmail, recipientName string) {
	if recipientEmail == "" {
		return
	}

	subject, ok := subjects[event]
	if !ok {
		log.Printf("notifier: unknown event %q for delivery %s", event, deliveryID)
		return
	}

	var html strings.Builder
	err := bodyTmpl.Execute(&html, struct {
		Name, Line, DeliveryID string
	}{recipientName, lines[event], deliveryID})
	if err != nil {
		log.Printf("notifier: render %q: %v", event, err)
		return
	}
	plain := fmt.Sprintf("Hi %s, %s (delivery %s)", recipientName, lines[event], deliveryID)

	go func() {
		if err := n.sender.SendEmail(context.Background(), recipientEmail, subject, plain, html.String()); err != nil {
			log.Printf("notifier: send %q to %s: %v", event, recipientEmail, err)
		}
	}()
}

// NopNotifier discards every event. Used in tests and when SES is not
// configured.
type NopNotifier struct{}

func (NopNotifier) Dispatch(Event, string, string, string) {}
