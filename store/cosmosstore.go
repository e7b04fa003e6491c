package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datatrails/go-verifiedledger/ledger"
)

// ledgerDoc is the on-wire shape of one ledger entry document in the
// ledgers collection, keyed by (handle, height).
type ledgerDoc struct {
	Handle    []byte `bson:"handle"`
	Height    uint64 `bson:"height"`
	Block     []byte `bson:"block"`
	MetaBlock []byte `bson:"metaBlock"`
	Receipt   []byte `bson:"receipt,omitempty"`
}

// viewLedgerDoc is the on-wire shape of one view-ledger entry document.
type viewLedgerDoc struct {
	Height    uint64 `bson:"height"`
	Block     []byte `bson:"block"`
	MetaBlock []byte `bson:"metaBlock"`
	Receipt   []byte `bson:"receipt,omitempty"`
}

// CosmosStore is a Store backed by an Azure Cosmos DB account in its Mongo
// API compatibility mode (the CLI's mongodb_cosmos store kind, §4.8). Every
// conditional write goes through mongo-driver's filtered update, which
// Cosmos DB's Mongo API evaluates server-side: the write only lands if no
// document yet exists at the new height, giving the same compare-and-swap
// guarantee as MemStore's mutex without needing one here.
type CosmosStore struct {
	ledgers *mongo.Collection
	views   *mongo.Collection
	codec   ledger.CBORCodec
}

// NewCosmosStore connects to database on client and returns a CosmosStore
// using its "ledgers" and "views" collections.
func NewCosmosStore(client *mongo.Client, database string) *CosmosStore {
	db := client.Database(database)
	return &CosmosStore{
		ledgers: db.Collection("ledgers"),
		views:   db.Collection("views"),
		codec:   ledger.NewCBORCodec(),
	}
}

func (s *CosmosStore) CreateLedger(ctx context.Context, view ledger.Digest, genesisBlock []byte) (ledger.Digest, ledger.MetaBlock, error) {
	handle := ledger.BlockHash(genesisBlock)
	mb := ledger.GenesisMetaBlock(view, handle)

	mbBytes, err := s.codec.MarshalCBOR(mb)
	if err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, err
	}

	doc := ledgerDoc{Handle: handle.Bytes(), Height: 0, Block: genesisBlock, MetaBlock: mbBytes}
	_, err = s.ledgers.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ledger.Digest{}, ledger.MetaBlock{}, ErrAlreadyExists
	}
	if err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, err
	}
	return handle, mb, nil
}

func (s *CosmosStore) AppendLedger(ctx context.Context, handle ledger.Digest, view ledger.Digest, block []byte, condTailHash ledger.Digest) (ledger.MetaBlock, error) {
	tailEntry, err := s.ReadLedgerTail(ctx, handle)
	if err != nil {
		return ledger.MetaBlock{}, err
	}
	if tailEntry.MetaBlock.Hash() != condTailHash {
		return ledger.MetaBlock{}, ErrConditionalWrite
	}

	height, err := ledger.NextHeight(tailEntry.MetaBlock.Height)
	if err != nil {
		return ledger.MetaBlock{}, err
	}
	mb := ledger.NewMetaBlock(view, condTailHash, ledger.BlockHash(block), height)
	mbBytes, err := s.codec.MarshalCBOR(mb)
	if err != nil {
		return ledger.MetaBlock{}, err
	}

	// The filter targets the new height so two concurrent appends racing on
	// the same tail cannot both succeed: only the upsert that inserts the
	// document lands, and the other matches that document and is rejected
	// (Cosmos DB's Mongo API evaluates the filter atomically).
	filter := bson.M{"handle": handle.Bytes(), "height": height}
	doc := ledgerDoc{Handle: handle.Bytes(), Height: height, Block: block, MetaBlock: mbBytes}
	res, err := s.ledgers.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return ledger.MetaBlock{}, err
	}
	if res.UpsertedCount == 0 {
		return ledger.MetaBlock{}, ErrConditionalWrite
	}
	return mb, nil
}

func (s *CosmosStore) ReadLedgerTail(ctx context.Context, handle ledger.Digest) (LedgerEntry, error) {
	opts := options.FindOne().SetSort(bson.M{"height": -1})
	var doc ledgerDoc
	err := s.ledgers.FindOne(ctx, bson.M{"handle": handle.Bytes()}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return LedgerEntry{}, ErrHandleNotFound
	}
	if err != nil {
		return LedgerEntry{}, err
	}
	return s.decodeLedgerDoc(doc)
}

func (s *CosmosStore) ReadLedgerByIndex(ctx context.Context, handle ledger.Digest, height uint64) (LedgerEntry, error) {
	var doc ledgerDoc
	err := s.ledgers.FindOne(ctx, bson.M{"handle": handle.Bytes(), "height": height}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return LedgerEntry{}, ErrIndexNotFound
	}
	if err != nil {
		return LedgerEntry{}, err
	}
	return s.decodeLedgerDoc(doc)
}

func (s *CosmosStore) AttachLedgerReceipt(ctx context.Context, handle ledger.Digest, mb ledger.MetaBlock, receipt ledger.Receipt) error {
	receiptBytes, err := s.codec.MarshalCBOR(receipt)
	if err != nil {
		return err
	}
	res, err := s.ledgers.UpdateOne(ctx,
		bson.M{"handle": handle.Bytes(), "height": mb.Height},
		bson.M{"$set": bson.M{"receipt": receiptBytes}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrIndexNotFound
	}
	return nil
}

func (s *CosmosStore) AppendViewLedger(ctx context.Context, block []byte, condTailHash ledger.Digest) (ledger.MetaBlock, ledger.Digest, error) {
	tail, tailErr := s.tailViewDoc(ctx)

	var mb ledger.MetaBlock
	var newTail ledger.Digest
	var prevHeight int64 = -1
	if errors.Is(tailErr, ErrIndexNotFound) {
		if !condTailHash.IsZero() {
			return ledger.MetaBlock{}, ledger.Digest{}, ErrConditionalWrite
		}
		mb, newTail = ledger.GenesisViewMetaBlock(ledger.BlockHash(block))
	} else if tailErr != nil {
		return ledger.MetaBlock{}, ledger.Digest{}, tailErr
	} else {
		currentTail := tail.MetaBlock.View
		if tail.MetaBlock.Height > 0 {
			currentTail = tail.MetaBlock.Hash()
		}
		if currentTail != condTailHash {
			return ledger.MetaBlock{}, ledger.Digest{}, ErrConditionalWrite
		}
		mb, newTail = ledger.NextViewMetaBlock(currentTail, ledger.BlockHash(block), tail.MetaBlock.Height+1)
		prevHeight = int64(tail.MetaBlock.Height)
	}

	mbBytes, err := s.codec.MarshalCBOR(mb)
	if err != nil {
		return ledger.MetaBlock{}, ledger.Digest{}, err
	}
	doc := viewLedgerDoc{Height: mb.Height, Block: block, MetaBlock: mbBytes}
	filter := bson.M{"height": prevHeight + 1}
	res, err := s.views.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return ledger.MetaBlock{}, ledger.Digest{}, err
	}
	if res.UpsertedCount == 0 {
		return ledger.MetaBlock{}, ledger.Digest{}, ErrConditionalWrite
	}
	return mb, newTail, nil
}

func (s *CosmosStore) ReadViewLedgerByIndex(ctx context.Context, height uint64) (ViewLedgerEntry, error) {
	var doc viewLedgerDoc
	err := s.views.FindOne(ctx, bson.M{"height": height}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ViewLedgerEntry{}, ErrIndexNotFound
	}
	if err != nil {
		return ViewLedgerEntry{}, err
	}
	return s.decodeViewLedgerDoc(doc)
}

func (s *CosmosStore) AttachViewLedgerReceipt(ctx context.Context, mb ledger.MetaBlock, receipt ledger.ViewChangeReceipt) error {
	receiptBytes, err := s.codec.MarshalCBOR(receipt)
	if err != nil {
		return err
	}
	res, err := s.views.UpdateOne(ctx,
		bson.M{"height": mb.Height},
		bson.M{"$set": bson.M{"receipt": receiptBytes}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrIndexNotFound
	}
	return nil
}

func (s *CosmosStore) tailViewDoc(ctx context.Context) (ViewLedgerEntry, error) {
	opts := options.FindOne().SetSort(bson.M{"height": -1})
	var doc viewLedgerDoc
	err := s.views.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ViewLedgerEntry{}, ErrIndexNotFound
	}
	if err != nil {
		return ViewLedgerEntry{}, err
	}
	return s.decodeViewLedgerDoc(doc)
}

func (s *CosmosStore) decodeLedgerDoc(doc ledgerDoc) (LedgerEntry, error) {
	var mb ledger.MetaBlock
	if err := s.codec.UnmarshalCBOR(doc.MetaBlock, &mb); err != nil {
		return LedgerEntry{}, err
	}
	entry := LedgerEntry{Block: doc.Block, MetaBlock: mb}
	if len(doc.Receipt) > 0 {
		var r ledger.Receipt
		if err := s.codec.UnmarshalCBOR(doc.Receipt, &r); err != nil {
			return LedgerEntry{}, err
		}
		entry.Receipt = &r
	}
	return entry, nil
}

func (s *CosmosStore) decodeViewLedgerDoc(doc viewLedgerDoc) (ViewLedgerEntry, error) {
	var mb ledger.MetaBlock
	if err := s.codec.UnmarshalCBOR(doc.MetaBlock, &mb); err != nil {
		return ViewLedgerEntry{}, err
	}
	entry := ViewLedgerEntry{Block: doc.Block, MetaBlock: mb}
	if len(doc.Receipt) > 0 {
		var r ledger.ViewChangeReceipt
		if err := s.codec.UnmarshalCBOR(doc.Receipt, &r); err != nil {
			return ViewLedgerEntry{}, err
		}
		entry.Receipt = &r
	}
	return entry, nil
}
