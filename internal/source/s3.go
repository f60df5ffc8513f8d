package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/internal/analytics"
	"pairwatch/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// PriceRecord is the parquet row layout of the price archive.
type PriceRecord struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
}

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads an archive laid out as <prefix>/<symbol>/*.parquet.
type S3 struct {
	client  s3API
	bucket  string
	prefix  string
	timeout time.Duration
	log     *logger.Log
}

func NewS3(ctx context.Context, cfg config.HistoryConfig) (*S3, error) {
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("s3 history source requires a bucket")
	}
	client, err := NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return newS3WithClient(client, cfg), nil
}

// NewS3Client builds an S3 client from static credentials when they are
// configured and from the default AWS chain otherwise.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

func newS3WithClient(client s3API, cfg config.HistoryConfig) *S3 {
	return &S3{
		client:  client,
		bucket:  cfg.S3.Bucket,
		prefix:  strings.Trim(cfg.S3.Prefix, "/"),
		timeout: cfg.Timeout,
		log:     logger.GetLogger(),
	}
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Fetch(ctx context.Context, symbol string, start, end time.Time) (analytics.Series, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	prefix := path.Join(s.prefix, sym) + "/"
	log := s.log.WithComponent("s3_source").WithFields(logger.Fields{
		"bucket": s.bucket,
		"prefix": prefix,
	})
	begin := time.Now()

	keys, err := s.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var points []analytics.Point
	for _, key := range keys {
		data, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		rows, err := DecodePriceRecords(data)
		if err != nil {
			return nil, fmt.Errorf("decode s3://%s/%s: %w", s.bucket, key, err)
		}
		for _, r := range rows {
			points = append(points, analytics.Point{Time: time.UnixMilli(r.Timestamp).UTC(), Value: r.Close})
		}
		logger.LogDataFlowEntry(log, "s3", "analysis", len(rows), "price_records")
	}

	logger.LogPerformanceEntry(log, "s3_source", "fetch", time.Since(begin), logger.Fields{
		"objects": len(keys),
		"points":  len(points),
	})
	return finalize(points, start, end)
}

func (s *S3) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".parquet") {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// DecodePriceRecords reads every row of a price archive object.
func DecodePriceRecords(data []byte) ([]PriceRecord, error) {
	pr, err := reader.NewParquetReader(newMemFile(data), new(PriceRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]PriceRecord, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return nil, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}

// EncodePriceRecords renders rows as a parquet object in the archive layout.
func EncodePriceRecords(rows []PriceRecord, compression string) ([]byte, error) {
	mem := &writeBuffer{}
	pw, err := writer.NewParquetWriter(mem, new(PriceRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(compression) {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write price record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.buf.Bytes(), nil
}

type writeBuffer struct {
	buf bytes.Buffer
}

func (w *writeBuffer) Create(string) (source.ParquetFile, error) { return w, nil }
func (w *writeBuffer) Open(string) (source.ParquetFile, error)   { return w, nil }
func (w *writeBuffer) Seek(int64, int) (int64, error)            { return int64(w.buf.Len()), nil }
func (w *writeBuffer) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (w *writeBuffer) Write(b []byte) (int, error)               { return w.buf.Write(b) }
func (w *writeBuffer) Close() error                              { return nil }

// memFile serves a downloaded object to the parquet reader. Open returns an
// independent cursor over the same bytes.
type memFile struct {
	data []byte
	r    *bytes.Reader
}

func newMemFile(data []byte) *memFile {
	return &memFile{data: data, r: bytes.NewReader(data)}
}

func (m *memFile) Open(string) (source.ParquetFile, error)   { return newMemFile(m.data), nil }
func (m *memFile) Create(string) (source.ParquetFile, error) { return nil, fmt.Errorf("create not supported") }
func (m *memFile) Seek(off int64, whence int) (int64, error) { return m.r.Seek(off, whence) }
func (m *memFile) Read(b []byte) (int, error)                { return m.r.Read(b) }
func (m *memFile) Write([]byte) (int, error)                 { return 0, fmt.Errorf("write not supported") }
func (m *memFile) Close() error                              { return nil }
