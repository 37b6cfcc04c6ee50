// Package mongo provides the MongoDB transaction log. It backs the split
// deployment, where accounts live in PostgreSQL and the engine compensates
// instead of running one store transaction, and the projected read model.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

const (
	TransactionRecordsCollection = "transaction_records"
	CountersCollection           = "counters"
)

// TransactionLog implements ledger.Log for MongoDB
type TransactionLog struct {
	db     *mongo.Database
	logger *slog.Logger
}

var _ ledger.Log = (*TransactionLog)(nil)

func NewTransactionLog(logger *slog.Logger, db *mongo.Database) *TransactionLog {
	return &TransactionLog{
		db:     db,
		logger: logger,
	}
}

func (l *TransactionLog) collection() *mongo.Collection {
	return l.db.Collection(TransactionRecordsCollection)
}

// EnsureIndexes creates the history index. Safe to call on every start.
func (l *TransactionLog) EnsureIndexes(ctx context.Context) error {
	_, err := l.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "account_id", Value: 1},
			{Key: "timestamp", Value: -1},
			{Key: "sequence", Value: -1},
		},
		Options: options.Index().SetName("account_history"),
	})
	if err != nil {
		l.logger.Error("Failed to create transaction record indexes", "error", err)
		return fmt.Errorf("failed to create transaction record indexes: %w", classify(err))
	}
	return nil
}

func (l *TransactionLog) Append(ctx context.Context, record *ledger.Record) error {
	return l.AppendMany(ctx, []*ledger.Record{record})
}

// AppendMany inserts the records inside a multi-document transaction so the
// set lands together. Sequences are reserved from a counter document in the
// same transaction.
func (l *TransactionLog) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if err := ledger.ValidateBatch(records); err != nil {
		return shared.NewError(shared.KindInvalidAmount, "invalid transaction records", err)
	}

	session, err := l.db.Client().StartSession()
	if err != nil {
		l.logger.Error("Failed to start MongoDB session", "error", err)
		return fmt.Errorf("failed to start MongoDB session: %w", classify(err))
	}
	defer session.EndSession(ctx)

	sequences := make([]int64, len(records))
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		first, err := l.reserveSequences(sc, len(records))
		if err != nil {
			return nil, err
		}
		docs := make([]interface{}, len(records))
		for i, record := range records {
			sequences[i] = first + int64(i)
			docs[i] = toDocument(record, sequences[i])
		}
		return l.collection().InsertMany(sc, docs)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateRecord{RecordID: duplicateRecordID(err, records)}
		}
		l.logger.Error("Failed to append transaction records",
			"count", len(records),
			"account_id", records[0].AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to append transaction records: %w", classify(err))
	}

	for i, record := range records {
		record.Sequence = sequences[i]
	}
	return nil
}

// Mirror stores a record that was committed elsewhere, keeping its sequence.
// Replaying the same record is a no-op.
func (l *TransactionLog) Mirror(ctx context.Context, record *ledger.Record) error {
	if err := record.Validate(); err != nil {
		return shared.NewError(shared.KindInvalidAmount, "invalid transaction record", err)
	}

	doc := toDocument(record, record.Sequence)
	_, err := l.collection().ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		l.logger.Error("Failed to mirror transaction record", "record_id", doc.ID, "error", err)
		return fmt.Errorf("failed to mirror transaction record: %w", classify(err))
	}
	return nil
}

func (l *TransactionLog) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ledger.Record, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: -1},
		{Key: "sequence", Value: -1},
	})

	cursor, err := l.collection().Find(ctx, bson.M{"account_id": accountID.String()}, opts)
	if err != nil {
		l.logger.Error("Failed to list transaction records", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transaction records: %w", classify(err))
	}
	defer cursor.Close(ctx)

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		l.logger.Error("Failed to decode transaction records", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to decode transaction records: %w", classify(err))
	}

	records := make([]*ledger.Record, 0, len(docs))
	for _, doc := range docs {
		record, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (l *TransactionLog) Contains(ctx context.Context, recordID uuid.UUID) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := l.collection().FindOne(ctx, bson.M{"_id": recordID.String()}, opts).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	l.logger.Error("Failed to look up transaction record", "record_id", recordID.String(), "error", err)
	return false, fmt.Errorf("failed to look up transaction record: %w", classify(err))
}

// reserveSequences returns the first of n consecutive sequence numbers
func (l *TransactionLog) reserveSequences(ctx context.Context, n int) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := l.db.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": TransactionRecordsCollection},
		bson.M{"$inc": bson.M{"value": int64(n)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve record sequence: %w", err)
	}
	return counter.Value - int64(n) + 1, nil
}

func duplicateRecordID(err error, records []*ledger.Record) uuid.UUID {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		if idx := bwe.WriteErrors[0].Index; idx >= 0 && idx < len(records) {
			return records[idx].ID
		}
	}
	return records[0].ID
}

// classify maps driver failures onto the ledger error taxonomy
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return shared.StoreUnavailable(err)
	}
	return err
}

// recordDocument is the stored form of a ledger.Record. Identifiers are kept
// as strings so documents stay readable from the shell.
type recordDocument struct {
	ID                    string    `bson:"_id"`
	AccountID             string    `bson:"account_id"`
	Kind                  string    `bson:"kind"`
	Amount                int64     `bson:"amount"`
	CounterpartyAccountID string    `bson:"counterparty_account_id,omitempty"`
	TransferID            string    `bson:"transfer_id,omitempty"`
	LinkedRecordID        string    `bson:"linked_record_id,omitempty"`
	CorrelationID         string    `bson:"correlation_id,omitempty"`
	Sequence              int64     `bson:"sequence"`
	Timestamp             time.Time `bson:"timestamp"`
}

func toDocument(r *ledger.Record, sequence int64) recordDocument {
	return recordDocument{
		ID:                    r.ID.String(),
		AccountID:             r.AccountID.String(),
		Kind:                  string(r.Kind),
		Amount:                r.Amount,
		CounterpartyAccountID: optionalID(r.CounterpartyAccountID),
		TransferID:            optionalID(r.TransferID),
		LinkedRecordID:        optionalID(r.LinkedRecordID),
		CorrelationID:         r.CorrelationID,
		Sequence:              sequence,
		Timestamp:             r.Timestamp,
	}
}

func (d recordDocument) toRecord() (*ledger.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt transaction record id %q: %w", d.ID, err)
	}
	accountID, err := uuid.Parse(d.AccountID)
	if err != nil {
		return nil, fmt.Errorf("corrupt account id on record %s: %w", d.ID, err)
	}

	record := &ledger.Record{
		ID:            id,
		AccountID:     accountID,
		Kind:          shared.TransactionType(d.Kind),
		Amount:        d.Amount,
		CorrelationID: d.CorrelationID,
		Sequence:      d.Sequence,
		Timestamp:     d.Timestamp.UTC(),
	}
	if record.CounterpartyAccountID, err = parseOptionalID(d.CounterpartyAccountID); err != nil {
		return nil, fmt.Errorf("corrupt counterparty on record %s: %w", d.ID, err)
	}
	if record.TransferID, err = parseOptionalID(d.TransferID); err != nil {
		return nil, fmt.Errorf("corrupt transfer id on record %s: %w", d.ID, err)
	}
	if record.LinkedRecordID, err = parseOptionalID(d.LinkedRecordID); err != nil {
		return nil, fmt.Errorf("corrupt linked record on record %s: %w", d.ID, err)
	}
	return record, nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
