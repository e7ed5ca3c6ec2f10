package event

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

const (
	isoLayout      = "2006-01-02T15:04:05-07:00"
	isoLayoutMicro = "2006-01-02T15:04:05.000000-07:00"
)

// Request describes the client that submitted an event.
// A nil field is unknown and serialized as null; an empty string is kept.
type Request struct {
	UserAgent *string
	IP        *string
}

// NewRequest builds a Request from header values, treating empty values
// as unknown.
func NewRequest(userAgent, ip string) *Request {
	return &Request{UserAgent: optional(userAgent), IP: optional(ip)}
}

// Serialize returns the wire form of the request.
func (r *Request) Serialize() map[string]any {
	return map[string]any{
		"user_agent": nullable(r.UserAgent),
		"ip":         nullable(r.IP),
	}
}

func requestFromWire(d map[string]any) (*Request, error) {
	r := &Request{}
	for key, dst := range map[string]**string{"user_agent": &r.UserAgent, "ip": &r.IP} {
		switch v := d[key].(type) {
		case nil:
		case string:
			*dst = &v
		default:
			return nil, fmt.Errorf("request.%s: expected string, got %T", key, v)
		}
	}
	return r, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Metadata is the typed header carried by every event under the reserved wire key.
type Metadata struct {
	EventType           string
	UUID                uuid.UUID
	Index               int
	CreatedAt           time.Time
	MachineSerialNumber string
	Request             *Request
	Tags                []string
}

type metadataBuilder struct {
	m          *Metadata
	idSet      bool
	createdSet bool
}

// MetadataOption configures metadata creation.
type MetadataOption func(*metadataBuilder) error

// WithUUID sets the event UUID (default: a new random UUID). An explicit
// uuid.Nil is kept as is.
func WithUUID(id uuid.UUID) MetadataOption {
	return func(b *metadataBuilder) error {
		b.m.UUID = id
		b.idSet = true
		return nil
	}
}

// WithUUIDString parses the event UUID from its text form.
func WithUUIDString(s string) MetadataOption {
	return func(b *metadataBuilder) error {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("parse id %q: %w", s, err)
		}
		b.m.UUID = id
		b.idSet = true
		return nil
	}
}

// WithIndex sets the position of the event within a batch sharing one UUID.
func WithIndex(i int) MetadataOption {
	return func(b *metadataBuilder) error {
		b.m.Index = i
		return nil
	}
}

// WithCreatedAt sets the creation time (default: now, UTC).
func WithCreatedAt(t time.Time) MetadataOption {
	return func(b *metadataBuilder) error {
		b.m.CreatedAt = t
		b.createdSet = true
		return nil
	}
}

// WithCreatedAtString parses the creation time. ISO-8601 with or without an
// offset is accepted, as are the other layouts understood by dateparse.
func WithCreatedAtString(s string) MetadataOption {
	return func(b *metadataBuilder) error {
		t, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		b.m.CreatedAt = t
		b.createdSet = true
		return nil
	}
}

// WithRequest attaches the originating client request.
func WithRequest(r *Request) MetadataOption {
	return func(b *metadataBuilder) error {
		b.m.Request = r
		return nil
	}
}

// WithTags sets the event tags.
func WithTags(tags ...string) MetadataOption {
	return func(b *metadataBuilder) error {
		b.m.Tags = append([]string(nil), tags...)
		return nil
	}
}

// NewMetadata builds event metadata. The event type and the machine serial
// number are required. UUID and creation time default only when no option
// set them.
func NewMetadata(eventType, machineSerialNumber string, opts ...MetadataOption) (*Metadata, error) {
	if eventType == "" {
		return nil, ErrMissingEventType
	}
	if machineSerialNumber == "" {
		return nil, ErrMissingSerialNumber
	}
	b := &metadataBuilder{m: &Metadata{
		EventType:           eventType,
		MachineSerialNumber: machineSerialNumber,
	}}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", eventType, err)
		}
	}
	if !b.idSet {
		b.m.UUID = uuid.New()
	}
	if !b.createdSet {
		b.m.CreatedAt = time.Now().UTC()
	}
	return b.m, nil
}

// DeserializeMetadata rebuilds metadata from its wire form. Unknown keys are ignored.
func DeserializeMetadata(d map[string]any) (*Metadata, error) {
	eventType, err := optionalString(d, "type")
	if err != nil {
		return nil, err
	}
	serial, err := optionalString(d, "machine_serial_number")
	if err != nil {
		return nil, err
	}

	var opts []MetadataOption
	switch id := d["id"].(type) {
	case nil:
	case string:
		opts = append(opts, WithUUIDString(id))
	case uuid.UUID:
		opts = append(opts, WithUUID(id))
	default:
		return nil, fmt.Errorf("metadata id: unexpected type %T", id)
	}

	index, err := toInt(d["index"])
	if err != nil {
		return nil, fmt.Errorf("metadata index: %w", err)
	}
	opts = append(opts, WithIndex(index))

	switch ts := d["created_at"].(type) {
	case nil:
	case string:
		opts = append(opts, WithCreatedAtString(ts))
	case time.Time:
		opts = append(opts, WithCreatedAt(ts))
	default:
		return nil, fmt.Errorf("metadata created_at: unexpected type %T", ts)
	}

	if raw, ok := d["request"].(map[string]any); ok && len(raw) > 0 {
		r, err := requestFromWire(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRequest(r))
	}

	tags, err := toStrings(d["tags"])
	if err != nil {
		return nil, fmt.Errorf("metadata tags: %w", err)
	}
	if len(tags) > 0 {
		opts = append(opts, WithTags(tags...))
	}

	return NewMetadata(eventType, serial, opts...)
}

// Serialize returns the wire form of the metadata. request and tags are
// omitted when empty.
func (m *Metadata) Serialize() map[string]any {
	d := map[string]any{
		"created_at":            formatTimestamp(m.CreatedAt),
		"id":                    m.UUID.String(),
		"index":                 m.Index,
		"type":                  m.EventType,
		"machine_serial_number": m.MachineSerialNumber,
	}
	if m.Request != nil {
		d["request"] = m.Request.Serialize()
	}
	if len(m.Tags) > 0 {
		d["tags"] = append([]string(nil), m.Tags...)
	}
	return d
}

// HasTag reports whether tag is already present.
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTags appends the tags that are not present yet, keeping order.
func (m *Metadata) AddTags(tags ...string) {
	for _, t := range tags {
		if t != "" && !m.HasTag(t) {
			m.Tags = append(m.Tags, t)
		}
	}
}

func formatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoLayoutMicro)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}

func optionalString(d map[string]any, key string) (string, error) {
	switch v := d[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("metadata %s: expected string, got %T", key, v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid number %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), s...), nil
	case []any:
		out := make([]string, 0, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %T", i, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}
