package registrations

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/pkg/response"
)

// ExportKey is the object key for an attendee export of a webinar.
func ExportKey(webinarID string, at time.Time) string {
	return path.Join("exports", webinarID, "attendees-"+at.UTC().Format("20060102T150405Z")+".csv")
}

func attendeesCSV(rows []AttendeeRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"registration_id", "name", "email", "phone", "guest", "registered_at"}); err != nil {
		return nil, err
	}
	for _, a := range rows {
		guest := "no"
		if a.Guest {
			guest = "yes"
		}
		rec := []string{a.RegistrationID.String(), a.Name, a.Email, a.Phone, guest, a.RegisteredAt.UTC().Format(time.RFC3339)}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportAttendees handles POST /webinars/:id/attendees/export. It uploads a
// CSV of paid attendees and returns a time-limited download link. Run behind
// webinars.RequireWebinarHost.
func (h *Handler) ExportAttendees(c *gin.Context) {
	if h.exports == nil {
		response.ServiceUnavailable(c, "attendee export is not configured")
		return
	}
	web, ok := webinars.FromContext(c)
	if !ok {
		response.Internal(c, "webinar not loaded")
		return
	}
	ctx := c.Request.Context()
	rows, err := h.reader.ListAttendees(ctx, web.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	data, err := attendeesCSV(rows)
	if err != nil {
		h.writeError(c, fmt.Errorf("render attendee csv: %w", err))
		return
	}
	key := ExportKey(web.ID.String(), h.now())
	if err := h.exports.UploadExport(ctx, key, "text/csv", bytes.NewReader(data), int64(len(data))); err != nil {
		h.logger.Error("upload attendee export", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to upload export")
		return
	}
	url, err := h.exports.PresignExport(ctx, key)
	if err != nil {
		h.logger.Error("presign attendee export", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to sign export url")
		return
	}
	response.Created(c, gin.H{"key": key, "url": url, "count": len(rows)})
}
