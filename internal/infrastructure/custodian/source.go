package custodian

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/config"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// SourceID identifies the custodian feed in logs and results
const SourceID = "custodian"

// DefaultMaxFeedBytes bounds how much of a feed object is read
const DefaultMaxFeedBytes int64 = 64 << 20

// ErrFeedTooLarge is returned when a feed object exceeds the configured size
var ErrFeedTooLarge = errors.New("custodian feed exceeds size limit")

// ObjectGetter is the subset of the S3 client the feed needs
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ crm.DataSource = (*S3FeedSource)(nil)

// S3FeedSource reads the custodian's positions CSV drop from an S3 bucket
type S3FeedSource struct {
	client   ObjectGetter
	bucket   string
	key      string
	maxBytes int64
	logger   *zap.Logger
}

// Option configures an S3FeedSource
type Option func(*S3FeedSource)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *S3FeedSource) {
		s.logger = l
	}
}

// WithMaxFeedBytes overrides DefaultMaxFeedBytes
func WithMaxFeedBytes(n int64) Option {
	return func(s *S3FeedSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewS3FeedSource builds a feed source with an S3 client created from cfg.
// Static credentials are used when an access key is configured, otherwise
// the default AWS credential chain applies.
func NewS3FeedSource(ctx context.Context, cfg config.CustodianConfig, opts ...Option) (*S3FeedSource, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("custodian bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewS3FeedSourceWithClient(client, cfg.Bucket, cfg.Key, opts...), nil
}

// NewS3FeedSourceWithClient builds a feed source over an existing client
func NewS3FeedSourceWithClient(client ObjectGetter, bucket, key string, opts ...Option) *S3FeedSource {
	s := &S3FeedSource{
		client:   client,
		bucket:   bucket,
		key:      key,
		maxBytes: DefaultMaxFeedBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns SourceID
func (s *S3FeedSource) ID() string {
	return SourceID
}

// QueryFinancialAccounts downloads the current feed and returns the accounts
// of the given households, or every account when householdIDs is empty. A
// feed that has not been dropped yet yields an empty result.
func (s *S3FeedSource) QueryFinancialAccounts(ctx context.Context, householdIDs []string) (_ *crm.DataSourceResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "custodian", "QueryFinancialAccounts",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("custodian.bucket", s.bucket),
		telemetry.WithAttribute("custodian.key", s.key),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	log := logger.WithLogger(ctx, s.logger)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			log.Warn("custodian feed not found", zap.String("bucket", s.bucket), zap.String("key", s.key))
			return crm.NewDataSourceResult(nil), nil
		}
		return nil, fmt.Errorf("failed to fetch custodian feed: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read custodian feed: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFeedTooLarge, s.maxBytes)
	}

	feed, err := NewFeedReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse custodian feed: %w", err)
	}
	accounts, rowErrs, err := feed.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse custodian feed: %w", err)
	}
	for _, rowErr := range rowErrs {
		log.Warn("skipping custodian feed row", zap.Int("line", rowErr.Line), zap.Error(rowErr.Err))
	}

	accounts = FilterByHousehold(accounts, householdIDs)
	telemetry.SetAttributes(span, "custodian.accounts", len(accounts), "custodian.skipped_rows", len(rowErrs))
	return crm.NewDataSourceResult(accounts), nil
}
