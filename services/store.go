package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ananya/studentfund-go/models"
)

// Store is the persistence surface of the donation ledger. The production
// implementation is Mongo-backed; tests substitute an in-memory fake.
type Store interface {
	GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error)
	InsertDonation(ctx context.Context, d *models.Donation) error
	// SettleDonation moves the donation identified by its gateway order id
	// from CREATED into the given terminal status and, for PAID, increments
	// the campaign's raised amount by the donation's amount. Both writes
	// happen atomically or not at all.
	//
	// Returns (nil, false, nil) when no donation carries the order id,
	// (donation, false, nil) when the donation is already terminal, and
	// (donation, true, nil) when the transition was applied.
	SettleDonation(ctx context.Context, orderID, paymentID string, to models.DonationStatus) (*models.Donation, bool, error)
}

// MongoStore implements Store against the studentfund database.
type MongoStore struct {
	client *mongo.Client
	dbName string
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{client: client, dbName: dbName}
}

func (s *MongoStore) donations() *mongo.Collection {
	return s.client.Database(s.dbName).Collection("donations")
}

func (s *MongoStore) campaigns() *mongo.Collection {
	return s.client.Database(s.dbName).Collection("campaigns")
}

// EnsureIndexes creates the indexes the reconciliation path depends on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.donations().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"razorpay_order_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create donation indexes: %v", err)
	}
	return nil
}

func (s *MongoStore) GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var campaign models.Campaign
	if err := s.campaigns().FindOne(ctx, bson.M{"_id": id}).Decode(&campaign); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch campaign: %v", err)
	}
	return &campaign, nil
}

func (s *MongoStore) InsertDonation(ctx context.Context, d *models.Donation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.donations().InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to save donation: %v", err)
	}
	return nil
}

func (s *MongoStore) SettleDonation(ctx context.Context, orderID, paymentID string, to models.DonationStatus) (*models.Donation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return nil, false, fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	var (
		donation models.Donation
		applied  bool
	)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// The status filter makes the transition conditional: a donation
		// already in a terminal state never matches, so redelivered events
		// cannot double-apply.
		update := bson.M{"$set": bson.M{
			"status":     to,
			"updated_at": time.Now(),
		}}
		if paymentID != "" {
			update["$set"].(bson.M)["razorpay_payment_id"] = paymentID
		}
		err := s.donations().FindOneAndUpdate(sc,
			bson.M{"razorpay_order_id": orderID, "status": models.DonationCreated},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&donation)
		if err == mongo.ErrNoDocuments {
			// Distinguish "no such order" from "already settled".
			err = s.donations().FindOne(sc, bson.M{"razorpay_order_id": orderID}).Decode(&donation)
			if err == mongo.ErrNoDocuments {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to fetch donation: %v", err)
			}
			applied = false
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update donation: %v", err)
		}

		if to == models.DonationPaid {
			res, err := s.campaigns().UpdateOne(sc,
				bson.M{"_id": donation.CampaignID},
				bson.M{
					"$inc": bson.M{"raised_amount": donation.Amount},
					"$set": bson.M{"updated_at": time.Now()},
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to increment raised amount: %v", err)
			}
			if res.MatchedCount == 0 {
				// Abort the transaction so the donation stays CREATED and the
				// gateway redelivers once the campaign record is restored.
				return nil, fmt.Errorf("campaign %s not found for settled donation", donation.CampaignID.Hex())
			}
		}
		applied = true
		return nil, nil
	})
	if err != nil {
		return nil, false, err
	}
	if donation.ID.IsZero() {
		return nil, false, nil
	}
	if !applied {
		log.Printf("Donation for order %s already settled with status %s", orderID, donation.Status)
	}
	return &donation, applied, nil
}
