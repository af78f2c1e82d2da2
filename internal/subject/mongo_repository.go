package subject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/arthgyan/onboarding/internal/apperr"
)

const subjectsCollection = "subjects"

// maxUpdateAttempts bounds the read-apply-swap loop of MongoRepository.Update.
const maxUpdateAttempts = 8

type subjectDocument struct {
	ID                 string     `bson:"_id"`
	Phone              string     `bson:"phoneNumber,omitempty"`
	Email              string     `bson:"email,omitempty"`
	FullName           string     `bson:"fullName"`
	PAN                string     `bson:"panNumber"`
	PANUpdatedAt       *time.Time `bson:"panUpdatedAt,omitempty"`
	Occupation         string     `bson:"occupation"`
	Income             string     `bson:"income"`
	DateOfBirth        string     `bson:"dob"`
	Pincode            string     `bson:"pincode"`
	Address            string     `bson:"address"`
	City               string     `bson:"city"`
	District           string     `bson:"district"`
	State              string     `bson:"state"`
	GoogleID           string     `bson:"googleId"`
	IsGoogleUser       bool       `bson:"isGoogleUser"`
	PINHash            []byte     `bson:"pinHash,omitempty"`
	OTP                string     `bson:"otp,omitempty"`
	OTPExpiresAt       *time.Time `bson:"otpExpiresAt,omitempty"`
	KycRequestID       string     `bson:"kycId"`
	IdentityDocumentID string     `bson:"identityDocumentId"`
	EsignID            string     `bson:"esignId"`
	InvestorProfileID  string     `bson:"investorId"`
	CreatedAt          time.Time  `bson:"createdAt"`
	UpdatedAt          time.Time  `bson:"updatedAt"`
	Revision           int64      `bson:"rev"`
}

// MongoRepository implements Repository on a MongoDB collection. Updates use
// a revision compare-and-swap so a read-modify-write never overwrites a
// concurrent writer silently.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository builds a Mongo-backed subject repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(subjectsCollection)}
}

// EnsureIndexes creates the unique phone and email indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"phoneNumber": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "identityDocumentId", Value: 1}}},
		{Keys: bson.D{{Key: "esignId", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create subject indexes: %w", err)
	}
	return nil
}

// Create inserts a new subject.
func (r *MongoRepository) Create(ctx context.Context, s Subject) error {
	_, err := r.coll.InsertOne(ctx, toDocument(s, 1))
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrAlreadyRegistered
	}
	return err
}

// FindByID fetches a subject by its identifier.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (Subject, error) {
	doc, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return Subject{}, err
	}
	return doc.toSubject(), nil
}

// FindByIdentifier fetches a subject by phone number or email.
func (r *MongoRepository) FindByIdentifier(ctx context.Context, ident Identifier) (Subject, error) {
	filter := bson.M{"phoneNumber": ident.Value}
	if ident.Kind == KindEmail {
		filter = bson.M{"email": ident.Value}
	}
	doc, err := r.findOne(ctx, filter)
	if err != nil {
		return Subject{}, err
	}
	return doc.toSubject(), nil
}

// FindByArtifact fetches the subject that requested the given identity document or esign.
func (r *MongoRepository) FindByArtifact(ctx context.Context, kind ArtifactKind, artifactID string) (Subject, error) {
	if artifactID == "" {
		return Subject{}, apperr.ErrNotFound
	}
	var filter bson.M
	switch kind {
	case ArtifactIdentityDocument:
		filter = bson.M{"identityDocumentId": artifactID}
	case ArtifactEsign:
		filter = bson.M{"esignId": artifactID}
	default:
		return Subject{}, fmt.Errorf("%w: artifact kind %q", apperr.ErrInvalidInput, kind)
	}
	doc, err := r.findOne(ctx, filter)
	if err != nil {
		return Subject{}, err
	}
	return doc.toSubject(), nil
}

// Update applies fn and replaces the document if its revision is unchanged.
// A lost race re-reads the document and applies fn again, so fn may run more
// than once; after maxUpdateAttempts lost races apperr.ErrConcurrentUpdate is
// returned and nothing is written.
func (r *MongoRepository) Update(ctx context.Context, id string, fn func(*Subject) error) (Subject, error) {
	return casUpdate(ctx, r, id, fn)
}

func (r *MongoRepository) load(ctx context.Context, id string) (subjectDocument, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) swap(ctx context.Context, id string, revision int64, next subjectDocument) (bool, error) {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id, "rev": revision}, next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, apperr.ErrAlreadyRegistered
		}
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// revisionStore is the document access casUpdate needs.
type revisionStore interface {
	load(ctx context.Context, id string) (subjectDocument, error)
	swap(ctx context.Context, id string, revision int64, next subjectDocument) (bool, error)
}

func casUpdate(ctx context.Context, store revisionStore, id string, fn func(*Subject) error) (Subject, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Subject{}, err
		}
		doc, err := store.load(ctx, id)
		if err != nil {
			return Subject{}, err
		}

		current := doc.toSubject()
		next := clone(current)
		if err := fn(&next); err != nil {
			return Subject{}, err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		swapped, err := store.swap(ctx, id, doc.Revision, toDocument(next, doc.Revision+1))
		if err != nil {
			return Subject{}, err
		}
		if swapped {
			return next, nil
		}
	}
	return Subject{}, fmt.Errorf("update subject %s: %w", id, apperr.ErrConcurrentUpdate)
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (subjectDocument, error) {
	var doc subjectDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return subjectDocument{}, apperr.ErrNotFound
		}
		return subjectDocument{}, err
	}
	return doc, nil
}

func toDocument(s Subject, revision int64) subjectDocument {
	doc := subjectDocument{
		ID:                 s.ID,
		Phone:              s.Phone,
		Email:              s.Email,
		FullName:           s.FullName,
		PAN:                s.PAN,
		PANUpdatedAt:       s.PANUpdatedAt,
		Occupation:         s.Occupation,
		Income:             s.Income,
		DateOfBirth:        s.DateOfBirth,
		Pincode:            s.Pincode,
		Address:            s.Address,
		City:               s.City,
		District:           s.District,
		State:              s.State,
		GoogleID:           s.GoogleID,
		IsGoogleUser:       s.IsGoogleUser,
		PINHash:            s.PINHash,
		KycRequestID:       s.KycRequestID,
		IdentityDocumentID: s.IdentityDocumentID,
		EsignID:            s.EsignID,
		InvestorProfileID:  s.InvestorProfileID,
		CreatedAt:          s.CreatedAt.UTC(),
		UpdatedAt:          s.UpdatedAt.UTC(),
		Revision:           revision,
	}
	if s.PendingOTP != nil {
		expires := s.PendingOTP.ExpiresAt.UTC()
		doc.OTP = s.PendingOTP.Code
		doc.OTPExpiresAt = &expires
	}
	return doc
}

func (d subjectDocument) toSubject() Subject {
	s := Subject{
		ID:                 d.ID,
		Phone:              d.Phone,
		Email:              d.Email,
		FullName:           d.FullName,
		PAN:                d.PAN,
		PANUpdatedAt:       d.PANUpdatedAt,
		Occupation:         d.Occupation,
		Income:             d.Income,
		DateOfBirth:        d.DateOfBirth,
		Pincode:            d.Pincode,
		Address:            d.Address,
		City:               d.City,
		District:           d.District,
		State:              d.State,
		GoogleID:           d.GoogleID,
		IsGoogleUser:       d.IsGoogleUser,
		PINHash:            d.PINHash,
		KycRequestID:       d.KycRequestID,
		IdentityDocumentID: d.IdentityDocumentID,
		EsignID:            d.EsignID,
		InvestorProfileID:  d.InvestorProfileID,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	if d.OTP != "" && d.OTPExpiresAt != nil {
		s.PendingOTP = &PendingOTP{Code: d.OTP, ExpiresAt: d.OTPExpiresAt.UTC()}
	}
	return s
}
