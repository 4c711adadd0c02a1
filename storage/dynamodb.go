package storage

import (
	"context"
	"errors"
	"fmt"

	"docstore/core"
	"docstore/metrics"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"go.uber.org/zap"
)

// DynamoDB caps BatchWriteItem requests at 25 items.
const dynamoBatchLimit = 25

// DynamoConfig holds the settings needed to reach DynamoDB. Endpoint is
// optional and mainly useful against dynamodb-local.
type DynamoConfig struct {
	Region          string
	Endpoint        string
	TablePrefix     string
	AccessKeyID     string
	SecretAccessKey string
}

// DynamoAdapter is the secondary cloud backend. Each collection maps to
// one table (prefix + collection name) keyed by the id attribute. Finds
// are served by a full scan with in-memory predicate filtering; equality
// predicates are cheap enough at the document counts this layer targets,
// and it keeps the three backends behaviourally identical.
type DynamoAdapter struct {
	cfg    DynamoConfig
	logger *zap.SugaredLogger
	ids    *IDRegistry

	client *dynamodb.DynamoDB
}

// NewDynamoAdapter creates an adapter; no AWS calls happen until Connect.
func NewDynamoAdapter(cfg DynamoConfig, ids *IDRegistry, logger *zap.SugaredLogger) *DynamoAdapter {
	return &DynamoAdapter{cfg: cfg, logger: logger, ids: ids}
}

func (a *DynamoAdapter) Name() core.Backend { return core.BackendSecondary }

// Connect builds the AWS session and verifies reachability with a cheap
// ListTables call.
func (a *DynamoAdapter) Connect(ctx context.Context) error {
	awsCfg := &aws.Config{Region: aws.String(a.cfg.Region)}
	if a.cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(a.cfg.Endpoint)
	}
	if a.cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return &ConnectionError{Backend: core.BackendSecondary, Err: fmt.Errorf("failed to create AWS session: %w", err)}
	}
	client := dynamodb.New(sess)

	if _, err := client.ListTablesWithContext(ctx, &dynamodb.ListTablesInput{Limit: aws.Int64(1)}); err != nil {
		return &ConnectionError{Backend: core.BackendSecondary, Err: fmt.Errorf("failed to reach DynamoDB: %w", err)}
	}

	a.client = client
	a.logger.Infow("Connected to DynamoDB successfully",
		"region", a.cfg.Region,
		"table_prefix", a.cfg.TablePrefix)
	return nil
}

func (a *DynamoAdapter) Close(ctx context.Context) error {
	// The SDK client holds no persistent connection worth tearing down.
	a.client = nil
	return nil
}

func (a *DynamoAdapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return &ConnectionError{Backend: core.BackendSecondary, Err: errors.New("not connected")}
	}
	if _, err := a.client.ListTablesWithContext(ctx, &dynamodb.ListTablesInput{Limit: aws.Int64(1)}); err != nil {
		return &ConnectionError{Backend: core.BackendSecondary, Err: err}
	}
	return nil
}

func (a *DynamoAdapter) tableName(collection string) string {
	return a.cfg.TablePrefix + collection
}

func (a *DynamoAdapter) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "readAll").Inc()

	docs := make([]core.Document, 0)
	input := &dynamodb.ScanInput{TableName: aws.String(a.tableName(collection))}
	err := a.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			var doc core.Document
			if err := dynamodbattribute.UnmarshalMap(item, &doc); err != nil {
				a.logger.Warnw("Skipping undecodable DynamoDB item", "collection", collection, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
		return true
	})
	if err != nil {
		if isDynamoMissingTable(err) {
			// A table that was never written to holds no documents.
			return []core.Document{}, nil
		}
		metrics.OperationErrors.WithLabelValues(string(core.BackendSecondary), "readAll").Inc()
		return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	return docs, nil
}

func (a *DynamoAdapter) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "findOne").Inc()

	// Point lookup when the predicate pins the key.
	if len(predicate) == 1 {
		if id, ok := predicate[core.IDField].(string); ok {
			return a.getByID(ctx, collection, id)
		}
	}

	docs, err := a.ReadAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if predicate.Matches(doc) {
			return doc, nil
		}
	}
	return nil, ErrNotFound
}

func (a *DynamoAdapter) getByID(ctx context.Context, collection, id string) (core.Document, error) {
	out, err := a.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName(collection)),
		Key:       dynamoKey(id),
	})
	if err != nil {
		if isDynamoMissingTable(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s from %s: %w", id, collection, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var doc core.Document
	if err := dynamodbattribute.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return doc, nil
}

func (a *DynamoAdapter) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "insertOne").Inc()

	stored := doc.Clone()
	if stored == nil {
		stored = core.Document{}
	}
	if _, err := assignID(a.ids, collection, stored); err != nil {
		return nil, err
	}

	item, err := dynamodbattribute.MarshalMap(map[string]any(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	_, err = a.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName(collection)),
		Item:      item,
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendSecondary), "insertOne").Inc()
		return nil, fmt.Errorf("failed to put document into %s: %w", collection, err)
	}
	return stored, nil
}

func (a *DynamoAdapter) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "updateOne").Inc()

	existing, err := a.getByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	merged := existing.Merge(patch)
	merged[core.IDField] = id

	item, err := dynamodbattribute.MarshalMap(map[string]any(merged))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	_, err = a.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName(collection)),
		Item:      item,
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendSecondary), "updateOne").Inc()
		return nil, fmt.Errorf("failed to update document %s in %s: %w", id, collection, err)
	}
	return merged, nil
}

func (a *DynamoAdapter) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "deleteOne").Inc()

	out, err := a.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(a.tableName(collection)),
		Key:          dynamoKey(id),
		ReturnValues: aws.String(dynamodb.ReturnValueAllOld),
	})
	if err != nil {
		if isDynamoMissingTable(err) {
			return false, nil
		}
		metrics.OperationErrors.WithLabelValues(string(core.BackendSecondary), "deleteOne").Inc()
		return false, fmt.Errorf("failed to delete document %s from %s: %w", id, collection, err)
	}
	return len(out.Attributes) > 0, nil
}

func (a *DynamoAdapter) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	metrics.Operations.WithLabelValues(string(core.BackendSecondary), "replaceAll").Inc()

	existing, err := a.ReadAll(ctx, collection)
	if err != nil {
		return err
	}

	table := a.tableName(collection)
	requests, err := replaceRequests(existing, docs)
	if err != nil {
		return err
	}

	for start := 0; start < len(requests); start += dynamoBatchLimit {
		end := start + dynamoBatchLimit
		if end > len(requests) {
			end = len(requests)
		}
		batch := map[string][]*dynamodb.WriteRequest{table: requests[start:end]}
		for len(batch[table]) > 0 {
			out, err := a.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: batch})
			if err != nil {
				metrics.OperationErrors.WithLabelValues(string(core.BackendSecondary), "replaceAll").Inc()
				return fmt.Errorf("failed to batch write %s: %w", collection, err)
			}
			batch = out.UnprocessedItems
			if len(batch) == 0 {
				break
			}
		}
	}
	return nil
}

// EnsureCollection creates the table when missing. Secondary index specs
// are skipped: this adapter serves finds by scanning, so they would add
// cost without changing behaviour.
func (a *DynamoAdapter) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if a.ids != nil {
		a.ids.Register(spec.Name, spec.IDPrefix)
	}

	_, err := a.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(a.tableName(spec.Name)),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{{
			AttributeName: aws.String(core.IDField),
			AttributeType: aws.String(dynamodb.ScalarAttributeTypeS),
		}},
		KeySchema: []*dynamodb.KeySchemaElement{{
			AttributeName: aws.String(core.IDField),
			KeyType:       aws.String(dynamodb.KeyTypeHash),
		}},
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == dynamodb.ErrCodeResourceInUseException {
			return nil
		}
		return fmt.Errorf("failed to create table for %s: %w", spec.Name, err)
	}

	if len(spec.Indexes) > 0 {
		a.logger.Debugw("Ignoring index specs for DynamoDB collection; lookups use scans",
			"collection", spec.Name,
			"indexes", len(spec.Indexes))
	}
	return nil
}

// replaceRequests builds the write set that replaces existing with docs.
// Ids present on both sides get only a put: BatchWriteItem rejects a
// delete and a put for the same item in one request, and the put
// overwrites the old item anyway.
func replaceRequests(existing, docs []core.Document) ([]*dynamodb.WriteRequest, error) {
	replaced := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		replaced[doc.ID()] = struct{}{}
	}

	requests := make([]*dynamodb.WriteRequest, 0, len(existing)+len(docs))
	for _, doc := range existing {
		if _, ok := replaced[doc.ID()]; ok {
			continue
		}
		requests = append(requests, &dynamodb.WriteRequest{
			DeleteRequest: &dynamodb.DeleteRequest{Key: dynamoKey(doc.ID())},
		})
	}
	for _, doc := range docs {
		item, err := dynamodbattribute.MarshalMap(map[string]any(doc))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		requests = append(requests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: item},
		})
	}
	return requests, nil
}

func dynamoKey(id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		core.IDField: {S: aws.String(id)},
	}
}

func isDynamoMissingTable(err error) bool {
	var awsErr awserr.Error
	return errors.As(err, &awsErr) && awsErr.Code() == dynamodb.ErrCodeResourceNotFoundException
}
