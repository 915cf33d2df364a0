package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "signalflow/config"
	"signalflow/logger"
	"signalflow/models"
)

// SignalRecord is the parquet row shape of one archived signal.
type SignalRecord struct {
	RunID         string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Ticker        string `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndicatorID   string `parquet:"name=indicator_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndicatorType string `parquet:"name=indicator_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	SignalDate    string `parquet:"name=signal_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	SignalType    string `parquet:"name=signal_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Metadata      string `parquet:"name=metadata, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// Archiver writes each run's signals to a parquet file under the output
// directory and optionally mirrors it to S3.
type Archiver struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewArchiver builds an archiver. When S3 storage is enabled the client is
// constructed and credentials validated up front so a misconfigured bucket
// fails at startup rather than at the end of a run.
func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()

	a := &Archiver{config: cfg, log: log}
	if !cfg.Storage.S3.Enabled {
		return a, nil
	}

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("signal_archiver").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	a.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("signal_archiver").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("signal archiver initialized with S3 mirror")

	return a, nil
}

// Archive writes the parquet file for one run and returns its local path.
// An empty signal list still produces a file so downstream consumers can
// distinguish "no signals" from "no run".
func (a *Archiver) Archive(ctx context.Context, payload *models.RunPayload) (string, error) {
	log := a.log.WithComponent("signal_archiver").WithFields(logger.Fields{
		"run_id":  payload.RunMetadata.RunID,
		"signals": len(payload.Signals),
	})

	data, err := a.createParquetFile(payload)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.config.Scan.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := fmt.Sprintf("signals_%s_%s.parquet", payload.RunMetadata.EndDate, payload.RunMetadata.RunID)
	path := filepath.Join(a.config.Scan.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write signal archive: %w", err)
	}

	log.WithFields(logger.Fields{"path": path, "bytes": len(data)}).Info("signal archive written")
	logger.RecordStageItem("signal_archive", len(data))

	if a.s3Client != nil {
		key := a.s3Key(payload, name)
		if err := a.uploadToS3(ctx, key, data); err != nil {
			log.WithError(err).
				WithEnv("S3_BUCKET").
				WithFields(logger.Fields{"bucket": a.config.Storage.S3.Bucket, "s3_key": key}).
				Error("failed to upload signal archive to S3")
			return path, err
		}
	}

	return path, nil
}

func (a *Archiver) createParquetFile(payload *models.RunPayload) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(SignalRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.config.Storage.Archive.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, sig := range payload.Signals {
		meta := ""
		if sig.Metadata != nil {
			if b, err := json.Marshal(sig.Metadata); err == nil {
				meta = string(b)
			}
		}
		record := SignalRecord{
			RunID:         payload.RunMetadata.RunID,
			Ticker:        sig.Ticker,
			IndicatorID:   sig.IndicatorID,
			IndicatorType: sig.IndicatorType,
			SignalDate:    sig.SignalDate,
			SignalType:    sig.SignalType,
			Metadata:      meta,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (a *Archiver) s3Key(payload *models.RunPayload, name string) string {
	key := filepath.Join("signals", fmt.Sprintf("date=%s", payload.RunMetadata.EndDate), name)
	if prefix := a.config.Storage.S3.Prefix; prefix != "" {
		key = filepath.Join(prefix, key)
	}
	return filepath.ToSlash(key)
}

func (a *Archiver) uploadToS3(ctx context.Context, key string, data []byte) error {
	log := a.log.WithComponent("signal_archiver").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"data_size": len(data),
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"compression":        a.config.Storage.Archive.Compression,
			"signalflow-version": a.config.Signalflow.Version,
		},
	}

	if _, err := a.s3Client.PutObject(context.WithoutCancel(ctx), input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Storage.S3.Bucket, err)
	}

	log.Info("signal archive uploaded to S3")
	return nil
}
