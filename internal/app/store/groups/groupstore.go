// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/groupmart/groupmart/internal/app/system/status"
	"github.com/groupmart/groupmart/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateGroupTitle = errors.New("a group with this title already exists")

	// ErrVersionConflict means the group document changed between the read
	// and the counter persist; the whole operation must be retried.
	ErrVersionConflict = errors.New("group was modified concurrently")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.TitleCI = text.Fold(g.Title)
	if g.Status == "" {
		g.Status = status.Open
	}
	g.Version = 1
	g.CreatedAt = now
	g.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, g)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroupTitle
		}
		return models.Group{}, err
	}
	return g, nil
}

// seriesFilter matches every batch of a series by folded base title: the
// base itself or the base followed by a " #N" batch suffix. ParentGroupID
// stays the only persisted link; series membership is always derived.
func seriesFilter(baseTitleCI string) bson.M {
	return bson.M{"title_ci": bson.M{
		"$regex": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(baseTitleCI) + "( #[0-9]+)?$"},
	}}
}

// ListSeries returns the non-Ended batches of the series with the given
// folded base title, ordered by creation time ascending.
func (s *Store) ListSeries(ctx context.Context, baseTitleCI string) ([]models.Group, error) {
	filter := seriesFilter(baseTitleCI)
	filter["status"] = bson.M{"$ne": status.Ended}

	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var groups []models.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CountSeries counts every batch of a series, Ended included, so batch
// numbers are never reused.
func (s *Store) CountSeries(ctx context.Context, baseTitleCI string) (int64, error) {
	return s.c.CountDocuments(ctx, seriesFilter(baseTitleCI))
}

// LatestChild returns the most recently created non-Ended batch spawned
// from the given group, or mongo.ErrNoDocuments if there is none.
func (s *Store) LatestChild(ctx context.Context, parentID primitive.ObjectID) (models.Group, error) {
	var g models.Group
	err := s.c.FindOne(ctx,
		bson.M{"parent_group_id": parentID, "status": bson.M{"$ne": status.Ended}},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	).Decode(&g)
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// ApplyCount persists a recomputed (count, status) pair. The update only
// matches when the stored version still equals expectedVersion; otherwise
// ErrVersionConflict is returned and nothing is written.
func (s *Store) ApplyCount(ctx context.Context, id primitive.ObjectID, expectedVersion, count int64, stat string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"current_count": count, "status": stat, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ForceStatus sets the status unconditionally (admin path; bypasses the
// capacity derivation).
func (s *Store) ForceStatus(ctx context.Context, id primitive.ObjectID, stat string) error {
	if !status.IsValid(stat) {
		return errors.New("unknown group status: " + stat)
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"status": stat, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetFlags updates the admin toggles. Nil pointers leave a flag unchanged.
func (s *Store) SetFlags(ctx context.Context, id primitive.ObjectID, autoRenew, isHot *bool) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if autoRenew != nil {
		set["auto_renew"] = *autoRenew
	}
	if isHot != nil {
		set["is_hot"] = *isHot
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
