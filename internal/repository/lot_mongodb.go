package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"bidhub-api/internal/model"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLotRepository implements LotRepository and OrderRepository using
// MongoDB. This is the production backend: lots are documents with an
// embedded ownership array, orders live in a sibling collection.
type MongoLotRepository struct {
	client *mongo.Client
	db     *mongo.Database
	lots   *mongo.Collection
	orders *mongo.Collection
}

// NewMongoLotRepository creates a new MongoDB lot repository.
func NewMongoLotRepository(uri, database, collection string) (*MongoLotRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	lots := db.Collection(collection)
	orders := db.Collection("orders")

	// The reconcile sweep scans on (status, has_active_auto_bid).
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "has_active_auto_bid", Value: 1}}},
		{Keys: bson.D{{Key: "finished_time", Value: 1}}},
	}
	if _, err := lots.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("[MongoLotRepository] Warning: failed to create indexes: %v", err)
	}
	orderIdx := mongo.IndexModel{Keys: bson.D{{Key: "lot_id", Value: 1}}}
	if _, err := orders.Indexes().CreateOne(ctx, orderIdx); err != nil {
		log.Printf("[MongoLotRepository] Warning: failed to create order index: %v", err)
	}

	log.Printf("[MongoLotRepository] Connected to %s/%s", database, collection)
	return &MongoLotRepository{
		client: client,
		db:     db,
		lots:   lots,
		orders: orders,
	}, nil
}

// ownershipDoc is the BSON shape of one ownership record. Amounts are
// stored as decimal strings.
type ownershipDoc struct {
	UserID   string `bson:"user_id"`
	UserName string `bson:"user_name"`
	Amount   string `bson:"amount"`
	IsAuto   bool   `bson:"is_auto"`
	LimitBid string `bson:"limit_bid"`
}

// lotDoc is the BSON shape of a lot document.
type lotDoc struct {
	ID               string         `bson:"_id"`
	OwnerID          string         `bson:"owner_id"`
	Title            string         `bson:"title"`
	Description      string         `bson:"description"`
	Price            string         `bson:"price"`
	PriceBuyNow      string         `bson:"price_buy_now"`
	StartDate        time.Time      `bson:"start_date"`
	FinishedTime     time.Time      `bson:"finished_time"`
	BidHideTime      *time.Time     `bson:"bid_hide_time,omitempty"`
	Status           string         `bson:"status"`
	HasActiveAutoBid bool           `bson:"has_active_auto_bid"`
	TopOwnerships    []ownershipDoc `bson:"top_ownerships"`
	Version          int64          `bson:"version"`
	CreatedAt        time.Time      `bson:"created_at"`
	UpdatedAt        time.Time      `bson:"updated_at"`
}

type orderDoc struct {
	ID        string    `bson:"_id"`
	LotID     string    `bson:"lot_id"`
	BuyerID   string    `bson:"buyer_id"`
	Amount    string    `bson:"amount"`
	CreatedAt time.Time `bson:"created_at"`
}

func toLotDoc(lot *model.Lot) lotDoc {
	owners := make([]ownershipDoc, len(lot.TopOwnerships))
	for i, o := range lot.TopOwnerships {
		owners[i] = ownershipDoc{
			UserID:   o.UserID,
			UserName: o.UserName,
			Amount:   o.Amount.String(),
			IsAuto:   o.IsAuto,
			LimitBid: o.LimitBid.String(),
		}
	}
	doc := lotDoc{
		ID:               lot.ID,
		OwnerID:          lot.OwnerID,
		Title:            lot.Title,
		Description:      lot.Description,
		Price:            lot.Price.String(),
		PriceBuyNow:      lot.PriceBuyNow.String(),
		StartDate:        lot.StartDate,
		FinishedTime:     lot.FinishedTime,
		Status:           string(lot.Status),
		HasActiveAutoBid: lot.HasActiveAutoBid,
		TopOwnerships:    owners,
		Version:          lot.Version,
		CreatedAt:        lot.CreatedAt,
		UpdatedAt:        lot.UpdatedAt,
	}
	if !lot.BidHideTime.IsZero() {
		t := lot.BidHideTime
		doc.BidHideTime = &t
	}
	return doc
}

func fromLotDoc(doc *lotDoc) (*model.Lot, error) {
	price, err := decimal.NewFromString(doc.Price)
	if err != nil {
		return nil, fmt.Errorf("bad price %q: %w", doc.Price, err)
	}
	buyNow, err := decimal.NewFromString(doc.PriceBuyNow)
	if err != nil {
		return nil, fmt.Errorf("bad price_buy_now %q: %w", doc.PriceBuyNow, err)
	}

	owners := make([]model.Ownership, len(doc.TopOwnerships))
	for i, o := range doc.TopOwnerships {
		amount, err := decimal.NewFromString(o.Amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", o.Amount, err)
		}
		limit, err := decimal.NewFromString(o.LimitBid)
		if err != nil {
			return nil, fmt.Errorf("bad limit_bid %q: %w", o.LimitBid, err)
		}
		owners[i] = model.Ownership{
			UserID:   o.UserID,
			UserName: o.UserName,
			Amount:   amount,
			IsAuto:   o.IsAuto,
			LimitBid: limit,
		}
	}

	lot := &model.Lot{
		ID:               doc.ID,
		OwnerID:          doc.OwnerID,
		Title:            doc.Title,
		Description:      doc.Description,
		Price:            price,
		PriceBuyNow:      buyNow,
		StartDate:        doc.StartDate,
		FinishedTime:     doc.FinishedTime,
		Status:           model.LotStatus(doc.Status),
		HasActiveAutoBid: doc.HasActiveAutoBid,
		TopOwnerships:    owners,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.BidHideTime != nil {
		lot.BidHideTime = *doc.BidHideTime
	}
	return lot, nil
}

// Insert stores a new lot at version 1.
func (r *MongoLotRepository) Insert(ctx context.Context, lot *model.Lot) error {
	lot.Version = 1
	if _, err := r.lots.InsertOne(ctx, toLotDoc(lot)); err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

// FindByID retrieves a lot by id.
func (r *MongoLotRepository) FindByID(ctx context.Context, id string) (*model.Lot, error) {
	var doc lotDoc
	err := r.lots.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return fromLotDoc(&doc)
}

// List returns a page of lots matching the filter plus the total count.
func (r *MongoLotRepository) List(ctx context.Context, filter LotFilter) ([]model.Lot, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.OwnerID != "" {
		query["owner_id"] = filter.OwnerID
	}

	total, err := r.lots.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count lots: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "finished_time", Value: 1}})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * filter.Limit)).SetLimit(int64(filter.Limit))
	}

	cursor, err := r.lots.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list lots: %w", err)
	}
	defer cursor.Close(ctx)

	var lots []model.Lot
	for cursor.Next(ctx) {
		var doc lotDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode lot: %w", err)
		}
		lot, err := fromLotDoc(&doc)
		if err != nil {
			return nil, 0, err
		}
		lots = append(lots, *lot)
	}
	return lots, total, cursor.Err()
}

// FindReconcilable returns all active lots with a live proxy bid.
func (r *MongoLotRepository) FindReconcilable(ctx context.Context) ([]model.Lot, error) {
	query := bson.M{
		"status":              string(model.LotStatusActive),
		"has_active_auto_bid": true,
	}

	cursor, err := r.lots.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcilable lots: %w", err)
	}
	defer cursor.Close(ctx)

	var lots []model.Lot
	for cursor.Next(ctx) {
		var doc lotDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode lot: %w", err)
		}
		lot, err := fromLotDoc(&doc)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, cursor.Err()
}

// UpdateIfVersion conditionally replaces the lot document. The filter matches
// on both _id and the version that was read, so a concurrent writer that got
// in first makes this a no-op and the caller retries from a fresh read.
func (r *MongoLotRepository) UpdateIfVersion(ctx context.Context, lot *model.Lot) error {
	doc := toLotDoc(lot)
	doc.Version = lot.Version + 1

	filter := bson.M{"_id": lot.ID, "version": lot.Version}
	res, err := r.lots.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}

	if res.MatchedCount == 0 {
		count, err := r.lots.CountDocuments(ctx, bson.M{"_id": lot.ID})
		if err != nil {
			return fmt.Errorf("failed to check lot existence: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	lot.Version++
	return nil
}

// GetStats returns lot counts by status.
func (r *MongoLotRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"status": "connected"}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.lots.Aggregate(ctx, pipeline)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var total int64
	for cursor.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return stats, err
		}
		stats[row.ID] = row.Count
		total += row.Count
	}
	stats["total_lots"] = total

	if orders, err := r.orders.CountDocuments(ctx, bson.M{}); err == nil {
		stats["total_orders"] = orders
	}
	return stats, cursor.Err()
}

// Close disconnects from MongoDB.
func (r *MongoLotRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// InsertOrder stores a new order.
func (r *MongoLotRepository) InsertOrder(ctx context.Context, order *model.Order) error {
	doc := orderDoc{
		ID:        order.ID,
		LotID:     order.LotID,
		BuyerID:   order.BuyerID,
		Amount:    order.Amount.String(),
		CreatedAt: order.CreatedAt,
	}
	if _, err := r.orders.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// ExistsForLot reports whether any order references the lot.
func (r *MongoLotRepository) ExistsForLot(ctx context.Context, lotID string) (bool, error) {
	count, err := r.orders.CountDocuments(ctx, bson.M{"lot_id": lotID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check orders: %w", err)
	}
	return count > 0, nil
}
