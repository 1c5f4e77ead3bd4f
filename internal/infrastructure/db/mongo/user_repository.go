package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

const usersCollection = "users"

type UserRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

func NewUserRepository(db *mongo.Database, timeout time.Duration) *UserRepository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &UserRepository{coll: db.Collection(usersCollection), timeout: timeout, now: time.Now}
}

type mongoUser struct {
	ID                string     `bson:"_id"`
	Email             string     `bson:"email"`
	FirstName         string     `bson:"first_name"`
	Surname           string     `bson:"surname"`
	PasswordHash      string     `bson:"password_hash"`
	Role              string     `bson:"role"`
	IsActive          bool       `bson:"is_active"`
	IsVerified        bool       `bson:"is_verified"`
	VerificationToken string     `bson:"verification_token,omitempty"`
	ResetToken        string     `bson:"reset_token,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
	LastLogin         *time.Time `bson:"last_login,omitempty"`
	LastLogout        *time.Time `bson:"last_logout,omitempty"`
}

func toDocument(u *domain.User) mongoUser {
	return mongoUser{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		Surname:           u.Surname,
		PasswordHash:      u.PasswordHash,
		Role:              u.Role,
		IsActive:          u.IsActive,
		IsVerified:        u.IsVerified,
		VerificationToken: u.VerificationToken,
		ResetToken:        u.ResetToken,
		CreatedAt:         u.CreatedAt.UTC(),
		UpdatedAt:         u.UpdatedAt.UTC(),
		LastLogin:         u.LastLogin,
		LastLogout:        u.LastLogout,
	}
}

func (m mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:                m.ID,
		Email:             m.Email,
		FirstName:         m.FirstName,
		Surname:           m.Surname,
		PasswordHash:      m.PasswordHash,
		Role:              m.Role,
		IsActive:          m.IsActive,
		IsVerified:        m.IsVerified,
		VerificationToken: m.VerificationToken,
		ResetToken:        m.ResetToken,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		LastLogin:         m.LastLogin,
		LastLogout:        m.LastLogout,
	}
}

// EnsureIndexes creates the unique email index and the sparse unique token
// indexes. Cleared tokens are $unset so they drop out of the sparse indexes.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("users_email_key")},
		{Keys: bson.D{{Key: "verification_token", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true).SetName("users_verification_token_key")},
		{Keys: bson.D{{Key: "reset_token", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true).SetName("users_reset_token_key")},
	})
	if err != nil {
		return wrapMongoError("ensure indexes", err)
	}
	return nil
}

func wrapMongoError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrUserNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrDuplicateEmail
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInfrastructure, err)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := toDocument(user)
	if doc.Role == "" {
		doc.Role = domain.RoleUser
	}
	now := r.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, wrapMongoError("insert user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) findOne(ctx context.Context, op string, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		return nil, wrapMongoError(op, err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find user by email", bson.M{"email": email})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find user by id", bson.M{"_id": id})
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by verification token", bson.M{"verification_token": digest})
}

func (r *UserRepository) FindByResetToken(ctx context.Context, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by reset token", bson.M{"reset_token": digest})
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := toDocument(user)
	now := r.now().UTC()
	doc.UpdatedAt = now
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapMongoError("save user", err)
	}
	return nil
}

// update applies set/unset to the document with the given id.
func (r *UserRepository) update(ctx context.Context, op, id string, set, unset bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = r.now().UTC()
	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, change)
	if err != nil {
		return wrapMongoError(op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// tokenField sets field to digest, or unsets it when digest is empty.
func tokenField(field, digest string) (bson.M, bson.M) {
	if digest == "" {
		return nil, bson.M{field: ""}
	}
	return bson.M{field: digest}, nil
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	return r.update(ctx, "set verified", id,
		bson.M{"is_verified": true, "is_active": true},
		bson.M{"verification_token": ""})
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, digest string) error {
	set, unset := tokenField("verification_token", digest)
	return r.update(ctx, "set verification token", id, set, unset)
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, digest string) error {
	set, unset := tokenField("reset_token", digest)
	return r.update(ctx, "set reset token", id, set, unset)
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	return r.update(ctx, "clear reset token", id, nil, bson.M{"reset_token": ""})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, "update password", id, bson.M{"password_hash": passwordHash}, nil)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "touch last login", id, bson.M{"last_login": at.UTC()}, nil)
}

func (r *UserRepository) TouchLastLogout(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "touch last logout", id, bson.M{"last_logout": at.UTC()}, nil)
}

// consume matches on field = digest and applies the change in one
// FindOneAndUpdate, so a digest is redeemed at most once.
func (r *UserRepository) consume(ctx context.Context, op, field, digest string, set bson.M) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	set["updated_at"] = r.now().UTC()
	change := bson.M{"$set": set, "$unset": bson.M{field: ""}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var mu mongoUser
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{field: digest}, change, opts).Decode(&mu); err != nil {
		return nil, wrapMongoError(op, err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, digest string) (*domain.User, error) {
	return r.consume(ctx, "consume verification token", "verification_token", digest,
		bson.M{"is_verified": true, "is_active": true})
}

func (r *UserRepository) ConsumeResetToken(ctx context.Context, digest, passwordHash string) (*domain.User, error) {
	return r.consume(ctx, "consume reset token", "reset_token", digest,
		bson.M{"password_hash": passwordHash})
}
