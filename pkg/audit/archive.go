package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/authsvc/pkg/observability"
)

const (
	// DefaultArchiveBatch is the most stream entries written to one object
	DefaultArchiveBatch = 1000

	archiveContentType = "application/x-ndjson"
)

// ObjectWriter stores one archive object
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver copies new entries of the audit stream to object storage as
// newline-delimited JSON. The id of the last archived entry is kept in redis
// under "<stream>:archived", so each entry is shipped once even though the
// stream itself keeps it until trimmed.
type Archiver struct {
	client    redis.UniversalClient
	stream    string
	cursorKey string
	objects   ObjectWriter
	prefix    string
	batch     int64
	logger    *observability.Logger
	now       func() time.Time
}

// NewArchiver creates an archiver for stream writing objects under prefix
func NewArchiver(client redis.UniversalClient, stream string, objects ObjectWriter, prefix string, batch int64, logger *observability.Logger) *Archiver {
	if batch <= 0 {
		batch = DefaultArchiveBatch
	}
	return &Archiver{
		client:    client,
		stream:    stream,
		cursorKey: stream + ":archived",
		objects:   objects,
		prefix:    prefix,
		batch:     batch,
		logger:    logger,
		now:       time.Now,
	}
}

// Run archives everything appended since the last run, one object per batch.
// The cursor only advances after an object is stored.
func (a *Archiver) Run(ctx context.Context) error {
	cursor, err := a.client.Get(ctx, a.cursorKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read archive cursor: %w", err)
	}

	var archived int
	for {
		entries, err := a.next(ctx, cursor)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		first, last := entries[0].ID, entries[len(entries)-1].ID
		key := a.objectKey(first, last)
		if err := a.objects.Put(ctx, key, encodeEntries(entries), archiveContentType); err != nil {
			return fmt.Errorf("failed to archive audit entries %s..%s: %w", first, last, err)
		}
		if err := a.client.Set(ctx, a.cursorKey, last, 0).Err(); err != nil {
			return fmt.Errorf("failed to advance archive cursor: %w", err)
		}

		cursor = last
		archived += len(entries)
		if int64(len(entries)) < a.batch {
			break
		}
	}

	if archived > 0 {
		a.logger.WithField("stream", a.stream).WithField("entries", archived).Info("Archived audit events")
	}
	return nil
}

// next returns up to batch entries strictly after cursor
func (a *Archiver) next(ctx context.Context, cursor string) ([]redis.XMessage, error) {
	start := "-"
	if cursor != "" {
		start = cursor
	}
	entries, err := a.client.XRangeN(ctx, a.stream, start, "+", a.batch+1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream %s: %w", a.stream, err)
	}
	if cursor != "" && len(entries) > 0 && entries[0].ID == cursor {
		entries = entries[1:]
	}
	if int64(len(entries)) > a.batch {
		entries = entries[:a.batch]
	}
	return entries, nil
}

func (a *Archiver) objectKey(first, last string) string {
	day := a.now().UTC().Format("2006/01/02")
	if a.prefix == "" {
		return fmt.Sprintf("%s/%s_%s.jsonl", day, first, last)
	}
	return fmt.Sprintf("%s/%s/%s_%s.jsonl", a.prefix, day, first, last)
}

func encodeEntries(entries []redis.XMessage) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		event, ok := e.Values["event"].(string)
		if !ok {
			continue
		}
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
