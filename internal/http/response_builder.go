package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"
)

// Events the dashboard script listens for in HX-Trigger.
const (
	EventPeriodUpdated  = "period:updated"
	EventReceiptDeleted = "receipt:deleted"
	EventNotification   = "show-notification"
)

// NotificationType selects the toast style.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

const (
	successToast = 3 * time.Second
	problemToast = 5 * time.Second
)

// HTMXResponseBuilder collects status, headers, HX-Trigger events and body
// for one fragment response.
type HTMXResponseBuilder struct {
	status  int
	header  http.Header
	events  map[string]any
	payload []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

// Trigger adds an event to HX-Trigger. A second trigger with the same name
// replaces the first.
func (b *HTMXResponseBuilder) Trigger(name string, detail any) *HTMXResponseBuilder {
	b.events[name] = detail
	return b
}

// TriggerPeriodUpdated makes the history panels of the period reload.
func (b *HTMXResponseBuilder) TriggerPeriodUpdated(year, month int) *HTMXResponseBuilder {
	return b.Trigger(EventPeriodUpdated, map[string]int{"year": year, "month": month})
}

func (b *HTMXResponseBuilder) TriggerReceiptDeleted(key string) *HTMXResponseBuilder {
	return b.Trigger(EventReceiptDeleted, map[string]string{"key": key})
}

func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(EventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, int(successToast.Milliseconds()))
}

func (b *HTMXResponseBuilder) TriggerWarningNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationWarning, message, int(problemToast.Milliseconds()))
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, int(problemToast.Milliseconds()))
}

// Text sets a plain body without touching Content-Type.
func (b *HTMXResponseBuilder) Text(s string) *HTMXResponseBuilder {
	b.payload = []byte(s)
	return b
}

// BodyHTML sets an HTML fragment body. html is written as given.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.payload = []byte(html)
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			dst.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.payload) > 0 {
		_, _ = w.Write(b.payload)
	}
}

// ErrorResponse renders message, escaped, in an error fragment.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func RequestTooLargeError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusRequestEntityTooLarge, message)
}

// MethodNotAllowedError answers 405 with the Allow header set.
func MethodNotAllowedError(allowed string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}
