package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/queue"
)

// JobCreateStudent is the queue message type for one student row.
const JobCreateStudent = "student.create"

// RowError describes a spreadsheet row that was not queued.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

var headerAliases = map[string]string{
	"name":       "name",
	"email":      "email",
	"password":   "password",
	"phone":      "phone",
	"department": "department",
	"roll no":    "roll_no",
	"roll_no":    "roll_no",
	"rollno":     "roll_no",
	"usn":        "roll_no",
	"semester":   "semester",
	"section":    "section",
}

var requiredColumns = []string{"name", "email", "password", "roll_no", "semester", "section"}

// ParseStudentsXLSX reads students from the first sheet. Row 1 is a header
// naming the columns in any order. Invalid rows are reported, not fatal.
func ParseStudentsXLSX(r io.Reader) ([]StudentRequest, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: not an xlsx workbook: %v", model.ErrInvalid, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("close workbook: %v", err)
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", model.ErrInvalid)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet %s is empty", model.ErrInvalid, sheet)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[key] = i
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing columns %s", model.ErrInvalid, strings.Join(missing, ", "))
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out  []StudentRequest
		bad  []RowError
		seen = map[string]int{}
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		sem, err := strconv.Atoi(cell(row, "semester"))
		if err != nil {
			bad = append(bad, RowError{Row: rowNum, Reason: "semester is not a number"})
			continue
		}
		req := StudentRequest{
			Name:       cell(row, "name"),
			Email:      strings.ToLower(cell(row, "email")),
			Password:   cell(row, "password"),
			Phone:      cell(row, "phone"),
			Department: cell(row, "department"),
			RollNo:     strings.ToUpper(cell(row, "roll_no")),
			Semester:   sem,
			Section:    strings.ToUpper(cell(row, "section")),
		}
		if err := model.Validate(req); err != nil {
			bad = append(bad, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		if first, dup := seen[req.RollNo]; dup {
			bad = append(bad, RowError{Row: rowNum, Reason: fmt.Sprintf("roll number repeats row %d", first)})
			continue
		}
		seen[req.RollNo] = rowNum
		out = append(out, req)
	}
	return out, bad, nil
}

// Enqueue publishes one provisioning job per student.
func Enqueue(ctx context.Context, q queue.Queue, reqs []StudentRequest) (int, error) {
	for i, req := range reqs {
		msg, err := queue.NewMessage(JobCreateStudent, req)
		if err != nil {
			return i, err
		}
		if err := q.Publish(ctx, msg); err != nil {
			return i, fmt.Errorf("enqueue %s: %w", req.RollNo, err)
		}
	}
	return len(reqs), nil
}

// Worker turns queued jobs into accounts.
type Worker struct {
	prov *Provisioner
}

// NewWorker creates a worker.
func NewWorker(prov *Provisioner) *Worker {
	return &Worker{prov: prov}
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != JobCreateStudent {
		return nil
	}
	var req StudentRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		metrics.RosterJobs.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: decode job: %v", model.ErrInvalid, err)
	}
	st, err := w.prov.CreateStudent(ctx, req)
	switch {
	case err == nil:
		metrics.RosterJobs.WithLabelValues("created").Inc()
		log.Printf("provisioned student %s (%s)", st.RollNo, st.UID)
	case errors.Is(err, model.ErrDuplicate):
		metrics.RosterJobs.WithLabelValues("duplicate").Inc()
	default:
		metrics.RosterJobs.WithLabelValues("failed").Inc()
	}
	return err
}

// Run consumes q until ctx is done.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			log.Printf("roster job %s failed: %v", msg.Type, err)
		}
	}
	return nil
}
