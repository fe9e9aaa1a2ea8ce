package firestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gcfs "cloud.google.com/go/firestore"

	"qrattend/internal/model"
)

// Layouts the web clients have written createdAt in when it is not a
// Firestore timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

func decodeSession(snap *gcfs.DocumentSnapshot) (model.Session, error) {
	data := snap.Data()
	if data == nil {
		return model.Session{}, fmt.Errorf("decode session %s: no data", snap.Ref.ID)
	}
	return sessionFromMap(snap.Ref.ID, data), nil
}

// sessionFromMap decodes a session document field by field. Numbers may be
// stored as strings. An unreadable createdAt becomes the zero time, which
// the window evaluator treats as a session that never opens.
func sessionFromMap(id string, data map[string]any) model.Session {
	s := model.Session{
		ID:             id,
		TeacherID:      asString(data["teacherUid"]),
		TeacherName:    asString(data["teacherName"]),
		Department:     asString(data["department"]),
		Period:         asString(data["period"]),
		Topic:          asString(data["topic_covered"]),
		Semester:       int(asFloat(data["semester"])),
		Section:        strings.ToUpper(strings.TrimSpace(asString(data["section"]))),
		GeofenceRadius: asFloat(data["geofence_radius"]),
		TimerMinutes:   int(asFloat(data["timer_minutes"])),
		QRURL:          asString(data["qr_url"]),
		CreatedAt:      asTime(data["createdAt"]),
	}
	if c, ok := data["geofence_center"].(map[string]any); ok {
		s.Center = &model.Point{Lat: asFloat(c["lat"]), Lng: asFloat(c["lng"])}
	}
	return s
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
