package user

import (
	"context"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/pkg/rediskey"
	"github.com/Sonarrati/Cryptra-App/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const codeCacheTTL = 12 * time.Hour

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	redis *redis.Client

	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Redis *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		redis: p.Redis,
		users: repository.ProvideStore[User](p.DB),
	}
}

// Register creates a new user with a unique referral code. Referral
// attribution is a separate step so an invalid code can never fail signup.
func (s *Service) Register(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, errutil.ValidationFailed("email is required")
	}

	if exist, err := s.users.FindOne(ctx, &User{Email: email}); err != nil {
		return nil, err
	} else if exist != nil {
		return nil, errutil.Conflict("email already registered")
	}

	u := &User{
		ID:    s.node.Generate().String(),
		Email: email,
	}

	// Referral codes are random; retry on the rare collision.
	for attempt := 0; attempt < 5; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return nil, err
		}
		u.ReferralCode = code

		if err := s.users.Create(ctx, u); err == nil {
			break
		} else if attempt == 4 {
			return nil, errutil.Internal("failed to allocate referral code", errutil.WithErr(err))
		}
	}

	s.cacheReferralCode(ctx, u)

	zap.L().Info("user registered",
		zap.String("user_id", u.ID),
		zap.String("referral_code", u.ReferralCode),
	)

	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errutil.NotFound("user not found")
	}
	return u, nil
}

// FindByReferralCode resolves a share code to its owner. Lookups are cached
// in redis; a cache miss or unavailable redis falls through to the store.
// Returns (nil, nil) for an unknown code.
func (s *Service) FindByReferralCode(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, nil
	}

	if s.redis != nil {
		if id, err := s.redis.Get(ctx, rediskey.BuildReferralCodeKey(code)).Result(); err == nil && id != "" {
			if u, err := s.users.FindOne(ctx, &User{ID: id}); err == nil && u != nil {
				return u, nil
			}
		}
	}

	u, err := s.users.FindOne(ctx, &User{ReferralCode: code})
	if err != nil {
		return nil, err
	}
	if u != nil {
		s.cacheReferralCode(ctx, u)
	}
	return u, nil
}

func (s *Service) cacheReferralCode(ctx context.Context, u *User) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, rediskey.BuildReferralCodeKey(u.ReferralCode), u.ID, codeCacheTTL).Err(); err != nil {
		zap.L().Warn("failed to cache referral code", zap.String("user_id", u.ID), zap.Error(err))
	}
}
