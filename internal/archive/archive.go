// Package archive records live ticks to S3 as parquet objects in the layout
// the s3 history source reads back, so a monitored pair builds its own
// history for later analysis.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"pairwatch/config"
	"pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/source"
	"pairwatch/logger"
)

const uploadTimeout = 2 * time.Minute

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type batch struct {
	Symbol    string
	Records   []source.PriceRecord
	Timestamp time.Time
	Reason    string
}

// Stats counts archive activity since start.
type Stats struct {
	Recorded int64
	Uploaded int64
	Failed   int64
	Dropped  int64
}

// Writer buffers prices per symbol and uploads a parquet object whenever a
// buffer fills or the flush interval elapses.
type Writer struct {
	cfg     config.ArchiveConfig
	bucket  string
	prefix  string
	version string
	client  objectPutter

	ctx      context.Context
	cancel   context.CancelFunc
	loopWG   sync.WaitGroup
	workerWG sync.WaitGroup

	log *logger.Log

	mu          sync.Mutex
	buffer      map[string][]source.PriceRecord
	flushTicker *time.Ticker
	jobCh       chan batch
	running     bool

	recorded atomic.Int64
	uploaded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64

	now func() time.Time
}

// New creates an archive writer for the bucket configured under history.s3.
func New(ctx context.Context, cfg *config.Config) (*Writer, error) {
	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive disabled")
	}
	if cfg.History.S3.Bucket == "" {
		return nil, fmt.Errorf("archive requires history.s3.bucket")
	}
	client, err := source.NewS3Client(ctx, cfg.History.S3)
	if err != nil {
		return nil, err
	}
	return newWithClient(client, cfg), nil
}

func newWithClient(client objectPutter, cfg *config.Config) *Writer {
	maxBuffer := cfg.Archive.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = 1000
	}
	cfg.Archive.MaxBuffer = maxBuffer
	if cfg.Archive.Workers <= 0 {
		cfg.Archive.Workers = 2
	}
	if cfg.Archive.FlushInterval <= 0 {
		cfg.Archive.FlushInterval = 5 * time.Minute
	}

	return &Writer{
		cfg:     cfg.Archive,
		bucket:  cfg.History.S3.Bucket,
		prefix:  strings.Trim(cfg.History.S3.Prefix, "/"),
		version: cfg.App.Version,
		client:  client,
		log:     logger.GetLogger(),
		buffer:  make(map[string][]source.PriceRecord),
		now:     time.Now,
	}
}

// Start launches the flush loop and upload workers.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)
	w.jobCh = make(chan batch, 64)
	w.mu.Unlock()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":         w.bucket,
		"prefix":         w.prefix,
		"flush_interval": w.cfg.FlushInterval,
		"max_buffer":     w.cfg.MaxBuffer,
		"workers":        w.cfg.Workers,
	}).Info("starting archive writer")

	w.loopWG.Add(1)
	go w.flushLoop()

	for i := 0; i < w.cfg.Workers; i++ {
		w.workerWG.Add(1)
		go w.uploadWorker()
	}
	return nil
}

// Stop flushes every buffer and waits for pending uploads to finish.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	ticker := w.flushTicker
	w.mu.Unlock()

	cancel()
	ticker.Stop()
	w.loopWG.Wait()

	w.mu.Lock()
	w.running = false
	buffers := w.takeBuffersLocked()
	for sym, records := range buffers {
		w.jobCh <- w.makeBatch(sym, records, "shutdown")
	}
	close(w.jobCh)
	w.mu.Unlock()

	w.workerWG.Wait()
	stats := w.Stats()
	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"recorded": stats.Recorded,
		"uploaded": stats.Uploaded,
		"failed":   stats.Failed,
		"dropped":  stats.Dropped,
	}).Info("archive writer stopped")
}

// Record buffers the tick price. It never blocks: a full upload queue drops
// the batch.
func (w *Writer) Record(tick model.Tick) {
	sym := strings.ToUpper(tick.Symbol)
	ts := tick.Timestamp
	if ts.IsZero() {
		ts = w.now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.recorded.Add(1)
	w.buffer[sym] = append(w.buffer[sym], source.PriceRecord{Timestamp: ts.UnixMilli(), Close: tick.Price})
	if len(w.buffer[sym]) < w.cfg.MaxBuffer {
		return
	}
	records := w.buffer[sym]
	delete(w.buffer, sym)
	w.enqueueLocked(w.makeBatch(sym, records, "max_buffer"))
}

func (w *Writer) Stats() Stats {
	return Stats{
		Recorded: w.recorded.Load(),
		Uploaded: w.uploaded.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
	}
}

func (w *Writer) flushLoop() {
	defer w.loopWG.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.mu.Lock()
			for sym, records := range w.takeBuffersLocked() {
				w.enqueueLocked(w.makeBatch(sym, records, "interval"))
			}
			w.mu.Unlock()
		}
	}
}

func (w *Writer) takeBuffersLocked() map[string][]source.PriceRecord {
	buffers := w.buffer
	w.buffer = make(map[string][]source.PriceRecord)
	return buffers
}

func (w *Writer) enqueueLocked(b batch) {
	select {
	case w.jobCh <- b:
	default:
		w.dropped.Add(1)
		metrics.EmitArchiveObject(w.log, b.Symbol, "dropped", len(b.Records))
		w.log.WithComponent("archive_writer").WithFields(logger.Fields{
			"symbol":       b.Symbol,
			"record_count": len(b.Records),
			"reason":       b.Reason,
		}).Warn("archive upload queue full, dropping batch")
	}
}

func (w *Writer) makeBatch(sym string, records []source.PriceRecord, reason string) batch {
	ts := w.now().UTC()
	if n := len(records); n > 0 {
		ts = time.UnixMilli(records[n-1].Timestamp).UTC()
	}
	return batch{Symbol: sym, Records: records, Timestamp: ts, Reason: reason}
}

func (w *Writer) uploadWorker() {
	defer w.workerWG.Done()
	for b := range w.jobCh {
		w.processBatch(b)
	}
}

func (w *Writer) processBatch(b batch) {
	entryLog := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"symbol":       b.Symbol,
		"record_count": len(b.Records),
		"reason":       b.Reason,
	})
	if len(b.Records) == 0 {
		return
	}
	start := time.Now()

	data, err := source.EncodePriceRecords(b.Records, w.cfg.Compression)
	if err != nil {
		w.failed.Add(1)
		metrics.EmitArchiveObject(w.log, b.Symbol, "failed", len(b.Records))
		entryLog.WithError(err).Error("failed to encode archive batch")
		return
	}

	key := w.objectKey(b)
	if err := w.upload(key, data); err != nil {
		w.failed.Add(1)
		metrics.EmitArchiveObject(w.log, b.Symbol, "failed", len(b.Records))
		entryLog.WithError(err).WithField("key", key).Error("failed to upload archive batch")
		return
	}

	w.uploaded.Add(1)
	metrics.EmitArchiveObject(w.log, b.Symbol, "uploaded", len(b.Records))
	logger.LogDataFlowEntry(entryLog, "aggregator", "s3", len(b.Records), "price_records")
	logger.LogPerformanceEntry(entryLog, "archive_writer", "upload", time.Since(start), logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	})
}

// objectKey lays objects out as <prefix>/<SYMBOL>/date=<day>/<stamp>_<id>.parquet.
func (w *Writer) objectKey(b batch) string {
	filename := fmt.Sprintf("%s_%s.parquet", b.Timestamp.Format("20060102T150405"), uuid.NewString())
	return path.Join(w.prefix, b.Symbol, "date="+b.Timestamp.Format("2006-01-02"), filename)
}

func (w *Writer) upload(key string, data []byte) error {
	compression := strings.ToLower(w.cfg.Compression)
	if compression == "" {
		compression = "none"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       compression,
			"pairwatch-version": w.version,
		},
	}

	// Shutdown flushes still upload after the writer context ends.
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", w.bucket, key, err)
	}
	return nil
}
