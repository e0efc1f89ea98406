package vetted

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/textnorm"
)

type MongoStore struct {
	collection *mongo.Collection
}

type profileDoc struct {
	ID             string   `bson:"_id"`
	URL            string   `bson:"url"`
	Platform       string   `bson:"platform"`
	Username       string   `bson:"username"`
	DisplayName    string   `bson:"displayName,omitempty"`
	Bio            string   `bson:"bio,omitempty"`
	Location       string   `bson:"location,omitempty"`
	LocationKey    string   `bson:"locationKey,omitempty"`
	Country        string   `bson:"country,omitempty"`
	CountryKey     string   `bson:"countryKey,omitempty"`
	Gender         string   `bson:"gender,omitempty"`
	Age            int      `bson:"age,omitempty"`
	Niches         []string `bson:"niches,omitempty"`
	Followers      int64    `bson:"followers"`
	Following      int64    `bson:"following"`
	Posts          int64    `bson:"posts"`
	EngagementRate float64  `bson:"engagementRate"`
	Verified       bool     `bson:"verified"`
	UpdatedAt      int64    `bson:"updatedAt"`
}

func NewMongoStore(client *mongo.Client, dbName, collectionName string) *MongoStore {
	return &MongoStore{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "platform", Value: 1}, {Key: "followers", Value: -1}}},
		{Keys: bson.D{{Key: "niches", Value: 1}}},
		{Keys: bson.D{{Key: "countryKey", Value: 1}}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (s *MongoStore) Query(ctx context.Context, filter domain.VettedFilter) ([]domain.Profile, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "followers", Value: -1}, {Key: "url", Value: 1}}).
		SetLimit(int64(queryLimit(filter)))

	cursor, err := s.collection.Find(ctx, buildQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []profileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDoc(doc))
	}
	return out, nil
}

// Upsert writes profiles keyed by platform and handle. It is used to load the
// YAML seed into an empty collection.
func (s *MongoStore) Upsert(ctx context.Context, profiles []domain.Profile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Unix()
	models := make([]mongo.WriteModel, 0, len(profiles))
	for _, p := range profiles {
		doc := toDoc(prepare(p), now)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return int(res.UpsertedCount + res.ModifiedCount), nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	return s.collection.EstimatedDocumentCount(ctx)
}

func buildQuery(filter domain.VettedFilter) bson.M {
	query := bson.M{}
	if len(filter.Platforms) > 0 {
		platforms := make([]string, 0, len(filter.Platforms))
		for _, p := range filter.Platforms {
			platforms = append(platforms, string(p))
		}
		query["platform"] = bson.M{"$in": platforms}
	}
	if niches := textnorm.FoldAll(filter.Niches); len(niches) > 0 {
		query["niches"] = bson.M{"$in": niches}
	}
	if gender := strings.ToLower(strings.TrimSpace(filter.Gender)); gender != "" {
		query["gender"] = gender
	}

	followers := bson.M{}
	if filter.MinFollowers > 0 {
		followers["$gte"] = filter.MinFollowers
	}
	if filter.MaxFollowers > 0 {
		followers["$lte"] = filter.MaxFollowers
	}
	if len(followers) > 0 {
		query["followers"] = followers
	}

	if location := textnorm.Fold(filter.Country); location != "" {
		countries := append([]string{location}, textnorm.Tokens(filter.Country)...)
		query["$or"] = bson.A{
			bson.M{"countryKey": bson.M{"$in": countries}},
			bson.M{"locationKey": bson.M{"$regex": regexp.QuoteMeta(location)}},
		}
	}
	return query
}

func toDoc(p domain.Profile, updatedAt int64) profileDoc {
	handle := strings.ToLower(p.Username)
	if handle == "" {
		handle = strings.ToLower(strings.TrimRight(p.URL, "/"))
	}
	return profileDoc{
		ID:             string(p.Platform) + ":" + handle,
		URL:            p.URL,
		Platform:       string(p.Platform),
		Username:       p.Username,
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		Location:       p.Location,
		LocationKey:    textnorm.Fold(p.Location),
		Country:        p.Country,
		CountryKey:     textnorm.Fold(p.Country),
		Gender:         p.Gender,
		Age:            p.Age,
		Niches:         p.Niches,
		Followers:      p.Followers,
		Following:      p.Following,
		Posts:          p.Posts,
		EngagementRate: p.EngagementRate,
		Verified:       p.Verified,
		UpdatedAt:      updatedAt,
	}
}

func fromDoc(doc profileDoc) domain.Profile {
	return prepare(domain.Profile{
		URL:            doc.URL,
		Platform:       domain.Platform(doc.Platform),
		Username:       doc.Username,
		DisplayName:    doc.DisplayName,
		Bio:            doc.Bio,
		Location:       doc.Location,
		Country:        doc.Country,
		Gender:         doc.Gender,
		Age:            doc.Age,
		Niches:         doc.Niches,
		Followers:      doc.Followers,
		Following:      doc.Following,
		Posts:          doc.Posts,
		EngagementRate: doc.EngagementRate,
		Verified:       doc.Verified,
	})
}
