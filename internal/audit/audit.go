// Package audit archives ConsistencyChecker mismatches and per-day run
// summaries to MongoDB as a diagnostics trail, adapted from the order-book
// service's mongodb client. This is an audit archive, not replay state —
// core book/trade state never round-trips through it.
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client wraps the MongoDB connection used for consistency-audit archiving.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// DaySummary is one instrument-day's archived outcome.
type DaySummary struct {
	Instrument string  `bson:"instrument"`
	Date       string  `bson:"date"`
	Rows       int     `bson:"rows"`
	Accuracy   float64 `bson:"accuracy"`
	Failed     bool    `bson:"failed"`
	Error      string  `bson:"error,omitempty"`
	RecordedAt int64   `bson:"recorded_at"`
}

// MismatchRecord is one ConsistencyChecker mismatch.
type MismatchRecord struct {
	Instrument string  `bson:"instrument"`
	Date       string  `bson:"date"`
	Side       string  `bson:"side"`
	Level      int     `bson:"level"`
	BookPrice  float64 `bson:"book_price"`
	BookVolume float64 `bson:"book_volume"`
	LimitPrice float64 `bson:"limit_price"`
	LimitVol   float64 `bson:"limit_vol"`
	RecordedAt int64   `bson:"recorded_at"`
}

// NewClient connects to addr and selects dbName.
func NewClient(addr, dbName string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(addr))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &Client{client: client, database: client.Database(dbName)}, nil
}

// InsertDaySummary archives one instrument-day's outcome.
func (c *Client) InsertDaySummary(s DaySummary) error {
	s.RecordedAt = time.Now().Unix()
	_, err := c.database.Collection("day_summaries").InsertOne(context.Background(), s)
	return err
}

// InsertMismatches archives a batch of ConsistencyChecker mismatches found
// during one instrument-day's replay.
func (c *Client) InsertMismatches(records []MismatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().Unix()
	docs := make([]interface{}, len(records))
	for i := range records {
		records[i].RecordedAt = now
		docs[i] = records[i]
	}
	_, err := c.database.Collection("mismatches").InsertMany(context.Background(), docs)
	return err
}

// Close closes the MongoDB connection.
func (c *Client) Close() error {
	return c.client.Disconnect(context.Background())
}
