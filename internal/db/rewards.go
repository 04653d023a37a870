package rewards

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Каталог вознаграждений, управляется админкой
type RewardsDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewRewardsDB() (*RewardsDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("LOYALTY_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env LOYALTY_MONGO is not set")
	}

	options := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := client.Database("loyaltyDB")
	coll := db.Collection("rewards")

	return &RewardsDB{client, coll}, nil
}

func (r *RewardsDB) RewardGet(ctx context.Context, id uuid.UUID) (model.Reward, error) {
	var reward model.Reward
	filter := bson.M{"id": id}
	err := r.coll.FindOne(ctx, filter).Decode(&reward)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Reward{}, fmt.Errorf("reward %w", model.ErrNotFound)
		}
		return model.Reward{}, err
	}
	return reward, nil
}

// Активные вознаграждения по возрастанию стоимости
func (r *RewardsDB) RewardsActive(ctx context.Context) ([]model.Reward, error) {
	var rewards []model.Reward
	filter := bson.M{"active": true}
	opts := options.Find().SetSort(bson.D{{Key: "points_required", Value: 1}})
	result, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	for result.Next(ctx) {
		var reward model.Reward
		err := result.Decode(&reward)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, reward)
	}
	return rewards, nil
}

func (r *RewardsDB) RewardSave(ctx context.Context, reward model.Reward) error {
	// если ID пустой, значит новое вознаграждение
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
		_, err := r.coll.InsertOne(ctx, reward)
		return err
	}
	filter := bson.M{"id": reward.ID}
	_, err := r.coll.ReplaceOne(ctx, filter, reward, options.Replace().SetUpsert(true))
	return err
}
