// Package publish pushes freshly written schedules onto NATS so live
// consumers (dashboards, alerting) see each sync without polling the
// output file.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"shipment_parser/internal/output"
	"shipment_parser/internal/schedule"
)

// SubjectRoot is the subject carrying the full weekly document. Each
// weekday bucket additionally goes out on SubjectRoot.<day>.
const SubjectRoot = "shipments.schedule"

// Publisher owns one NATS connection for the duration of a run.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials the NATS server. The connection is identified as the
// shipment parser so server-side monitoring can tell runs apart.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("shipment_parser"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// PublishWeek sends the schedule: the full document (byte-identical to
// the output file) on SubjectRoot, then each bucket as a compact array
// on its per-day subject. The messages are flushed before returning.
func (p *Publisher) PublishWeek(week *schedule.Week) error {
	doc, err := output.Marshal(week)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if err := p.nc.Publish(SubjectRoot, doc); err != nil {
		return fmt.Errorf("publish schedule: %w", err)
	}

	for _, day := range schedule.Weekdays {
		bucket, err := json.Marshal(week.Day(day))
		if err != nil {
			return fmt.Errorf("marshal %s bucket: %w", day, err)
		}
		if err := p.nc.Publish(SubjectForDay(day), bucket); err != nil {
			return fmt.Errorf("publish %s bucket: %w", day, err)
		}
	}

	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// SubjectForDay returns the per-day subject, with the weekday lowered
// to keep subject tokens uniform.
func SubjectForDay(day string) string {
	return SubjectRoot + "." + strings.ToLower(day)
}

// Close drains the connection so in-flight publishes finish first.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
