package storage

import (
	"context"
	"errors"
	"testing"

	"docstore/core"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamoTableName(t *testing.T) {
	adapter := NewDynamoAdapter(DynamoConfig{TablePrefix: "docstore_"}, NewIDRegistry(), testLogger())
	assert.Equal(t, "docstore_users", adapter.tableName("users"))

	bare := NewDynamoAdapter(DynamoConfig{}, NewIDRegistry(), testLogger())
	assert.Equal(t, "users", bare.tableName("users"))
}

func TestDynamoKey(t *testing.T) {
	key := dynamoKey("usr_1")
	require.Contains(t, key, "id")
	assert.Equal(t, "usr_1", aws.StringValue(key["id"].S))
}

func TestIsDynamoMissingTable(t *testing.T) {
	missing := awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found", nil)
	assert.True(t, isDynamoMissingTable(missing))

	inUse := awserr.New(dynamodb.ErrCodeResourceInUseException, "table exists", nil)
	assert.False(t, isDynamoMissingTable(inUse))

	assert.False(t, isDynamoMissingTable(errors.New("plain error")))
	assert.False(t, isDynamoMissingTable(nil))

	// Wrapped AWS errors still match.
	wrapped := awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found", nil)
	assert.True(t, isDynamoMissingTable(&ConnectionError{Err: wrapped}))
}

// requestIDs splits a write set into the ids being deleted and the ids
// being put.
func requestIDs(t *testing.T, requests []*dynamodb.WriteRequest) (deletes, puts []string) {
	t.Helper()
	for _, req := range requests {
		switch {
		case req.DeleteRequest != nil:
			deletes = append(deletes, aws.StringValue(req.DeleteRequest.Key["id"].S))
		case req.PutRequest != nil:
			puts = append(puts, aws.StringValue(req.PutRequest.Item["id"].S))
		default:
			t.Fatal("write request with neither delete nor put")
		}
	}
	return deletes, puts
}

func TestReplaceRequestsDisjointSets(t *testing.T) {
	existing := []core.Document{{"id": "usr_a"}, {"id": "usr_b"}}
	docs := []core.Document{{"id": "usr_c", "name": "Grace"}}

	requests, err := replaceRequests(existing, docs)
	require.NoError(t, err)

	deletes, puts := requestIDs(t, requests)
	assert.ElementsMatch(t, []string{"usr_a", "usr_b"}, deletes)
	assert.ElementsMatch(t, []string{"usr_c"}, puts)
}

func TestReplaceRequestsOverlappingIDsNeverDeleteAndPut(t *testing.T) {
	// Re-importing a collection over itself is the normal rollback case;
	// an id must never appear as both a delete and a put, which
	// BatchWriteItem rejects.
	existing := []core.Document{
		{"id": "usr_a", "name": "Ada"},
		{"id": "usr_b", "name": "Grace"},
		{"id": "usr_c", "name": "Edsger"},
	}
	docs := []core.Document{
		{"id": "usr_a", "name": "Ada L."},
		{"id": "usr_b", "name": "Grace"},
		{"id": "usr_d", "name": "Barbara"},
	}

	requests, err := replaceRequests(existing, docs)
	require.NoError(t, err)

	deletes, puts := requestIDs(t, requests)
	assert.ElementsMatch(t, []string{"usr_c"}, deletes)
	assert.ElementsMatch(t, []string{"usr_a", "usr_b", "usr_d"}, puts)
	for _, id := range deletes {
		assert.NotContains(t, puts, id)
	}
}

func TestReplaceRequestsIdenticalSetsAreAllPuts(t *testing.T) {
	docs := make([]core.Document, 0, 10)
	for _, suffix := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		docs = append(docs, core.Document{"id": "usr_" + suffix})
	}

	requests, err := replaceRequests(docs, docs)
	require.NoError(t, err)

	deletes, puts := requestIDs(t, requests)
	assert.Empty(t, deletes)
	assert.Len(t, puts, len(docs))
}

func TestReplaceRequestsEmptyReplacementDeletesEverything(t *testing.T) {
	existing := []core.Document{{"id": "usr_a"}, {"id": "usr_b"}}

	requests, err := replaceRequests(existing, nil)
	require.NoError(t, err)

	deletes, puts := requestIDs(t, requests)
	assert.ElementsMatch(t, []string{"usr_a", "usr_b"}, deletes)
	assert.Empty(t, puts)
}

func TestDynamoHealthCheckBeforeConnect(t *testing.T) {
	adapter := NewDynamoAdapter(DynamoConfig{Region: "us-east-1"}, NewIDRegistry(), testLogger())
	assert.ErrorIs(t, adapter.HealthCheck(context.Background()), ErrConnection)
}

func TestDynamoCloseBeforeConnect(t *testing.T) {
	adapter := NewDynamoAdapter(DynamoConfig{Region: "us-east-1"}, NewIDRegistry(), testLogger())
	assert.NoError(t, adapter.Close(context.Background()))
}
