package changefeed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/bus"
	"github.com/sitewatch/sitewatch/internal/changelog"
)

func record(seq uint64, pk, sk string) changelog.Record {
	return changelog.Record{
		Sequence:     seq,
		Op:           changelog.OpInsert,
		PartitionKey: pk,
		SortKey:      sk,
	}
}

func TestConsumePublishesValidRecordsInOneCall(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}
	publisher.On("Publish", mock.Anything, []string{
		"https://example.com/a",
		"https://example.com/b",
	}).Return(nil, nil).Once()

	a := New(publisher, zap.NewNop())
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "URL#example.com", "PATH#/a"),
		record(2, "URL#example.com", "PATH#/b"),
	})

	require.Empty(t, failed)
	publisher.AssertExpectations(t)
}

func TestConsumeSkipsInvalidRecordsWithoutFailingThem(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}
	publisher.On("Publish", mock.Anything, []string{"https://example.com/ok"}).
		Return(nil, nil).Once()

	a := New(publisher, zap.NewNop())
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "BAD#example.com", "PATH#/a"),  // wrong partition prefix
		record(2, "URL#12345", "PATH#/a"),        // numeric site token
		record(3, "URL#example.com", "STATUS"),   // status row, no path key
		record(4, "URL#example.com", "PATH#no-slash"),
		record(5, "URL#example.com", "PATH#/ok"),
	})

	require.Empty(t, failed)
	publisher.AssertExpectations(t)
}

func TestConsumeReportsOnlyBusRejectedRecords(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}
	publisher.On("Publish", mock.Anything, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}).Return([]string{"https://example.com/b"}, nil).Once()

	a := New(publisher, zap.NewNop())
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "URL#example.com", "PATH#/a"),
		record(2, "URL#example.com", "PATH#/b"),
		record(3, "URL#example.com", "PATH#/c"),
	})

	require.Len(t, failed, 1)
	require.Equal(t, uint64(2), failed[0].Sequence)
	publisher.AssertExpectations(t)
}

func TestConsumePublishErrorFailsEveryValidRecord(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).
		Return(nil, errors.New("broker unavailable")).Once()

	a := New(publisher, zap.NewNop())
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "URL#example.com", "PATH#/a"),
		record(2, "URL#999", "PATH#/skip-me"),
		record(3, "URL#example.com", "PATH#/b"),
	})

	// Both valid records fail; the invalid one stays skipped.
	require.Len(t, failed, 2)
	require.Equal(t, uint64(1), failed[0].Sequence)
	require.Equal(t, uint64(3), failed[1].Sequence)
	publisher.AssertExpectations(t)
}

func TestConsumeEmptyBatchMakesNoPublishCall(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}

	a := New(publisher, zap.NewNop())
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "URL#example.com", "STATUS"),
	})

	require.Empty(t, failed)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestWithSchemeRebuildsHTTPURLs(t *testing.T) {
	t.Parallel()

	publisher := &bus.MockPublisher{}
	publisher.On("Publish", mock.Anything, []string{"http://example.com/a"}).
		Return(nil, nil).Once()

	a := New(publisher, zap.NewNop(), WithScheme("http"))
	failed := a.Consume(context.Background(), []changelog.Record{
		record(1, "URL#example.com", "PATH#/a"),
	})

	require.Empty(t, failed)
	publisher.AssertExpectations(t)
}
