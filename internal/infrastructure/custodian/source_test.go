package custodian

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/advisorhub/backend/internal/infrastructure/config"
)

type fakeBucket struct {
	objects map[string]string
	err     error
	calls   []string
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls = append(f.calls, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3FeedSource_QueryFinancialAccounts(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"positions/latest.csv": sampleFeed}}
	src := NewS3FeedSourceWithClient(bucket, "drop", "positions/latest.csv")

	t.Run("all households", func(t *testing.T) {
		res, err := src.QueryFinancialAccounts(context.Background(), nil)
		require.NoError(t, err)

		assert.Len(t, res.Accounts, 3)
		assert.True(t, res.TotalAUM.Equal(decimal.RequireFromString("3350.49")))
		assert.True(t, res.AUMByHousehold["HH-1"].Equal(decimal.RequireFromString("3250.50")))
		assert.True(t, res.AUMByHousehold["HH-2"].Equal(decimal.RequireFromString("99.99")))
	})

	t.Run("filtered", func(t *testing.T) {
		res, err := src.QueryFinancialAccounts(context.Background(), []string{"HH-2"})
		require.NoError(t, err)

		require.Len(t, res.Accounts, 1)
		assert.Equal(t, "FA-3", res.Accounts[0].ID)
		assert.NotContains(t, res.AUMByHousehold, "HH-1")
	})

	assert.Equal(t, "drop/positions/latest.csv", bucket.calls[0])
	assert.Equal(t, SourceID, src.ID())
}

func TestS3FeedSource_MissingFeedIsEmpty(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := NewS3FeedSourceWithClient(&fakeBucket{}, "drop", "positions/latest.csv", WithLogger(zap.New(core)))

	res, err := src.QueryFinancialAccounts(context.Background(), []string{"HH-1"})
	require.NoError(t, err)

	assert.NotNil(t, res.Accounts)
	assert.Empty(t, res.Accounts)
	assert.True(t, res.TotalAUM.IsZero())
	assert.Equal(t, 1, logs.FilterMessage("custodian feed not found").Len())
}

func TestS3FeedSource_FetchError(t *testing.T) {
	boom := errors.New("connection reset")
	src := NewS3FeedSourceWithClient(&fakeBucket{err: boom}, "drop", "k")

	_, err := src.QueryFinancialAccounts(context.Background(), nil)

	assert.ErrorIs(t, err, boom)
}

func TestS3FeedSource_BadFeed(t *testing.T) {
	src := NewS3FeedSourceWithClient(&fakeBucket{objects: map[string]string{"k": "name\nx\n"}}, "drop", "k")

	_, err := src.QueryFinancialAccounts(context.Background(), nil)

	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestS3FeedSource_MaxFeedBytes(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"k": sampleFeed}}
	size := int64(len(sampleFeed))

	t.Run("over limit", func(t *testing.T) {
		src := NewS3FeedSourceWithClient(bucket, "drop", "k", WithMaxFeedBytes(size-1))

		_, err := src.QueryFinancialAccounts(context.Background(), nil)

		assert.ErrorIs(t, err, ErrFeedTooLarge)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		src := NewS3FeedSourceWithClient(bucket, "drop", "k", WithMaxFeedBytes(size))

		res, err := src.QueryFinancialAccounts(context.Background(), nil)

		require.NoError(t, err)
		assert.Len(t, res.Accounts, 3)
	})
}

func TestS3FeedSource_LogsSkippedRows(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	feed := "account_id,balance\nFA-1,10\nFA-2,oops\n"
	src := NewS3FeedSourceWithClient(&fakeBucket{objects: map[string]string{"k": feed}}, "drop", "k", WithLogger(zap.New(core)))

	res, err := src.QueryFinancialAccounts(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, res.Accounts, 1)
	assert.Equal(t, 1, logs.FilterMessage("skipping custodian feed row").Len())
}

func TestNewS3FeedSource_RequiresBucket(t *testing.T) {
	_, err := NewS3FeedSource(context.Background(), config.CustodianConfig{})
	assert.Error(t, err)
}

func TestNewS3FeedSource_StaticCredentials(t *testing.T) {
	src, err := NewS3FeedSource(context.Background(), config.CustodianConfig{
		Bucket:          "drop",
		Key:             "positions/latest.csv",
		Endpoint:        "localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "drop", src.bucket)
	assert.Equal(t, DefaultMaxFeedBytes, src.maxBytes)
}
