package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/groupmart/groupmart/internal/app/system/status"
	"github.com/groupmart/groupmart/internal/domain/models"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T

	// seq spaces CreatedAt/JoinedAt values so creation order is
	// deterministic even when fixtures are built in the same millisecond.
	seq time.Duration
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) nextTime() time.Time {
	f.seq += 10 * time.Millisecond
	return time.Now().UTC().Add(-time.Hour).Add(f.seq)
}

// GroupSpec configures CreateGroup. Zero values get sensible defaults
// (target 5, status open).
type GroupSpec struct {
	Title       string
	Target      int64
	Current     int64
	Status      string
	AutoRenew   bool
	Parent      *primitive.ObjectID
	PriceCents  int64
	Description string
}

// CreateGroup inserts a group document directly, bypassing the store, so
// tests control every field including CreatedAt ordering.
func (f *Fixtures) CreateGroup(ctx context.Context, spec GroupSpec) models.Group {
	f.t.Helper()

	if spec.Target == 0 {
		spec.Target = 5
	}
	if spec.Status == "" {
		spec.Status = status.Derive(spec.Current, spec.Target, status.Open)
	}
	now := f.nextTime()
	g := models.Group{
		ID:            primitive.NewObjectID(),
		Title:         spec.Title,
		TitleCI:       text.Fold(spec.Title),
		Description:   spec.Description,
		PriceCents:    spec.PriceCents,
		TargetCount:   spec.Target,
		CurrentCount:  spec.Current,
		Status:        spec.Status,
		AutoRenew:     spec.AutoRenew,
		ParentGroupID: spec.Parent,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("fixture group insert: %v", err)
	}
	return g
}

// CreateParticipation inserts one ledger row. Pass a nil userID for an
// anonymous participant. JoinedAt values increase in call order.
func (f *Fixtures) CreateParticipation(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID, quantity int64) models.Participation {
	f.t.Helper()

	p := models.Participation{
		ID:       primitive.NewObjectID(),
		GroupID:  groupID,
		UserID:   userID,
		Quantity: quantity,
		Contact:  "fixture@example.com",
		JoinedAt: f.nextTime(),
	}
	if _, err := f.db.Collection("participations").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("fixture participation insert: %v", err)
	}
	return p
}

// UserID returns a fresh user id pointer for participation fixtures.
func (f *Fixtures) UserID() *primitive.ObjectID {
	id := primitive.NewObjectID()
	return &id
}
