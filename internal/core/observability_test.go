package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"housingcore/internal/infra/persistence/memory"
	"housingcore/pkg/domain"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "submit_application", true, 20*time.Millisecond)
	rec.Observe(ctx, "submit_application", true, 30*time.Millisecond)
	rec.Observe(ctx, "submit_application", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	stats := snap.Operations["submit_application"]
	if stats.DurationMS != 55 {
		t.Errorf("duration total = %v, want 55", stats.DurationMS)
	}
	if stats.Success != 2 || stats.Error != 1 {
		t.Errorf("counters = %d success / %d error, want 2 / 1", stats.Success, stats.Error)
	}
	if _, ok := snap.Operations[""]; ok {
		t.Error("empty operation name must not be aggregated")
	}
	if !strings.HasPrefix(rec.Name(), "housingcore_service_metrics_") {
		t.Errorf("generated name = %q", rec.Name())
	}
}

func TestJSONTracerEmitsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx := context.Background()

	_, span := tracer.Start(ctx, "book_unit")
	span.End(nil)
	_, span = tracer.Start(ctx, "book_unit")
	span.End(errors.New("no units remaining"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Errorf("statuses = %s, %s", entries[0].Status, entries[1].Status)
	}
	if entries[1].Error != "no units remaining" {
		t.Errorf("error field = %q", entries[1].Error)
	}

	dec := json.NewDecoder(&buf)
	var decoded JSONTraceEntry
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if decoded.Operation != "book_unit" {
		t.Errorf("operation = %s", decoded.Operation)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("construct recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "register_person", true, 10*time.Millisecond)
	rec.Observe(ctx, "register_person", false, 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"housingcore_service_operation_duration_seconds",
		"housingcore_service_operation_results_total",
	} {
		if !names[want] {
			t.Errorf("metric family %s not exported; have %v", want, names)
		}
	}

	// Double registration of the same collectors must fail.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Error("second registration should fail")
	}
}

func TestServiceInstrumentationRecordsOutcomes(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	store := memory.NewStore(DefaultRulesEngine())
	svc := NewService(store,
		WithMetricsRecorder(rec),
		WithTracer(tracer),
		WithClock(func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }),
	)

	_, _, err := svc.RegisterPerson(context.Background(), Person{
		Base: Base{ID: "S1000001A"}, Name: "Mei Lin",
		DateOfBirth:   time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC),
		MaritalStatus: domain.MaritalMarried, Password: "pw", Role: RoleManager,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.RegisterPerson(context.Background(), Person{Base: Base{ID: "bad"}}); err == nil {
		t.Fatal("invalid registration should fail")
	}

	snap := rec.Snapshot()
	if stats := snap.Operations["register_person"]; stats.Success != 1 || stats.Error != 1 {
		t.Errorf("recorded stats = %+v", stats)
	}
	if entries := tracer.Entries(); len(entries) != 2 {
		t.Errorf("trace entries = %d, want 2", len(entries))
	}
}
