package provider

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/vigilops/vigil/internal/logparse"
	"github.com/vigilops/vigil/internal/model"
)

const (
	// DefaultOTLPAddr is the conventional OTLP gRPC bind address.
	DefaultOTLPAddr = "127.0.0.1:4317"

	// DefaultOTLPBuffer is the default buffered record capacity between
	// pushes and the next poll cycle.
	DefaultOTLPBuffer = 50_000
)

// OTLPConfig holds parameters for the OTLP receiver provider.
type OTLPConfig struct {
	Addr       string
	BufferSize int
}

// OTLPProvider receives pushed OTLP log records over gRPC and buffers them
// until the next poll cycle drains the buffer. It bridges the push model
// of OTLP exporters to the pull model of the poller.
type OTLPProvider struct {
	collogspb.UnimplementedLogsServiceServer

	addr     string
	server   *grpc.Server
	records  chan model.LogRecord
	dropped  atomic.Int64
	stopOnce sync.Once

	mu     sync.Mutex
	staged []model.LogRecord
}

// NewOTLPProvider binds the listener and starts serving immediately so
// exporters can connect between cycles.
func NewOTLPProvider(cfg OTLPConfig) (*OTLPProvider, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultOTLPAddr
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = DefaultOTLPBuffer
	}

	p := &OTLPProvider{
		addr:    addr,
		records: make(chan model.LogRecord, buffer),
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("provider: otlp listen %s: %w", addr, err)
	}

	p.server = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(p.server, p)
	go func() {
		if err := p.server.Serve(listener); err != nil {
			log.Printf("provider: otlp server stopped: %v", err)
		}
	}()
	return p, nil
}

func (p *OTLPProvider) Name() string { return "otlp" }

// Stop shuts the gRPC server down gracefully.
func (p *OTLPProvider) Stop() {
	p.stopOnce.Do(func() {
		p.server.GracefulStop()
	})
}

// Export implements the OTLP logs service. Records are converted and
// buffered; when the buffer is full the record is dropped rather than
// blocking the exporter.
func (p *OTLPProvider) Export(_ context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	for _, resourceLogs := range req.GetResourceLogs() {
		resourceAttrs := attributesToMap(resourceLogs.GetResource().GetAttributes())
		for _, scopeLogs := range resourceLogs.GetScopeLogs() {
			for _, logRecord := range scopeLogs.GetLogRecords() {
				record := convertOTLPRecord(logRecord, resourceAttrs)
				select {
				case p.records <- record:
				default:
					if p.dropped.Add(1)%1000 == 1 {
						log.Printf("provider: otlp buffer full, dropping records (total dropped: %d)", p.dropped.Load())
					}
				}
			}
		}
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// Fetch drains the buffered records, returning those inside the window.
// Records without a usable timestamp are returned too: dropping them
// would hide errors from exporters that omit time fields. Records
// timestamped at or past the window end are pushed between the window
// capture and the drain; they are staged for the next Fetch instead of
// being lost.
func (p *OTLPProvider) Fetch(_ context.Context, window model.Window) ([]model.LogRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	drained := p.staged
	p.staged = nil
	for {
		select {
		case record := <-p.records:
			drained = append(drained, record)
			continue
		default:
		}
		break
	}

	var records []model.LogRecord
	for _, record := range drained {
		switch {
		case record.Timestamp.IsZero() || window.Contains(record.Timestamp):
			records = append(records, record)
		case !record.Timestamp.Before(window.End):
			p.staged = append(p.staged, record)
		}
	}
	return records, nil
}

func convertOTLPRecord(logRecord *logspb.LogRecord, resourceAttrs map[string]string) model.LogRecord {
	labels := make(map[string]string, len(resourceAttrs))
	for k, v := range resourceAttrs {
		labels[k] = v
	}
	for _, attr := range logRecord.GetAttributes() {
		if attr.GetKey() != "" {
			labels[attr.GetKey()] = anyValueString(attr.GetValue())
		}
	}

	severity := logRecord.GetSeverityText()
	if severity == "" {
		severity = logparse.SeverityFromOTELNumber(int(logRecord.GetSeverityNumber()))
	}

	record := model.LogRecord{
		Severity:  logparse.NormalizeSeverity(severity),
		Timestamp: otlpTimestamp(logRecord),
		Service:   serviceFromAttributes(labels),
		Revision:  labels["service.revision"],
		Labels:    labels,
		Payload:   otlpPayload(logRecord.GetBody()),
	}
	if raw, err := protojson.Marshal(logRecord); err == nil {
		record.Raw = raw
	}
	return record
}

func otlpTimestamp(logRecord *logspb.LogRecord) time.Time {
	if nanos := logRecord.GetTimeUnixNano(); nanos > 0 {
		return time.Unix(0, int64(nanos)).UTC()
	}
	if nanos := logRecord.GetObservedTimeUnixNano(); nanos > 0 {
		return time.Unix(0, int64(nanos)).UTC()
	}
	return time.Time{}
}

// otlpPayload maps a kvlist body onto the structured variant so exporters
// that attach tracebacks as body fields keep them addressable; any other
// body shape is flat text.
func otlpPayload(body *commonpb.AnyValue) model.Payload {
	if kvlist := body.GetKvlistValue(); kvlist != nil {
		fields := map[string]string{}
		for _, kv := range kvlist.GetValues() {
			fields[kv.GetKey()] = anyValueString(kv.GetValue())
		}
		return model.Payload{
			Kind:       model.PayloadStructured,
			Message:    fields["message"],
			Traceback:  fields["traceback"],
			StackTrace: fields["stack_trace"],
			Exception:  fields["exception"],
		}
	}
	return model.FlatText(anyValueString(body))
}

func serviceFromAttributes(attrs map[string]string) string {
	for _, key := range []string{"service.name", "service_name", "service", "app"} {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}

func attributesToMap(attrs []*commonpb.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		if attr.GetKey() == "" {
			continue
		}
		if v := anyValueString(attr.GetValue()); v != "" {
			out[attr.GetKey()] = v
		}
	}
	return out
}

func anyValueString(value *commonpb.AnyValue) string {
	if value == nil {
		return ""
	}
	switch v := value.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return v.StringValue
	case *commonpb.AnyValue_BoolValue:
		return fmt.Sprintf("%v", v.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return fmt.Sprintf("%d", v.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return fmt.Sprintf("%v", v.DoubleValue)
	case *commonpb.AnyValue_BytesValue:
		return string(v.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		parts := make([]string, 0, len(v.ArrayValue.GetValues()))
		for _, item := range v.ArrayValue.GetValues() {
			if s := anyValueString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}
