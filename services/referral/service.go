package referral

import (
	"context"

	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/pkg/db/option"
	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/pkg/repository"
	"github.com/Sonarrati/Cryptra-App/services/user"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// downlineChildCap bounds fan-out per node when building the downline tree.
const downlineChildCap = 100

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	users *user.Service

	edges   repository.Repository[ReferralEdge]
	records repository.Repository[CommissionRecord]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Users *user.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		users:   p.Users,
		edges:   repository.ProvideStore[ReferralEdge](p.DB),
		records: repository.ProvideStore[CommissionRecord](p.DB),
	}
}

// RecordSignup attributes a new user to their upline. A missing or unknown
// code is tolerated silently; the user simply joins with no ancestry.
// The invitee's full upline (up to 7 levels) is materialized here, once,
// and never updated afterwards.
func (s *Service) RecordSignup(ctx context.Context, inviteeID, referralCode string) error {
	if referralCode == "" {
		return nil
	}

	inviter, err := s.users.FindByReferralCode(ctx, referralCode)
	if err != nil {
		return err
	}
	if inviter == nil || inviter.ID == inviteeID {
		zap.L().Warn("invalid referral code ignored",
			zap.String("invitee_id", inviteeID),
			zap.String("referral_code", referralCode),
		)
		return nil
	}

	existing, err := s.edges.FindOne(ctx, &ReferralEdge{InviteeID: inviteeID, Level: 1})
	if err != nil {
		return err
	}
	if existing != nil {
		return errutil.Conflict("invitee already has a referral attribution")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edgesTx := s.edges.WithTrx(tx)

		if err := edgesTx.Create(ctx, &ReferralEdge{
			ID:        s.node.Generate().String(),
			InviterID: inviter.ID,
			InviteeID: inviteeID,
			Level:     1,
		}); err != nil {
			return err
		}

		// Walk the inviter's own level-1 chain to freeze the invitee's
		// ancestors at levels 2..7. The chain may end early at a root.
		frontier := inviter.ID
		for level := 2; level <= MaxLevel; level++ {
			parent, err := edgesTx.FindOne(ctx, &ReferralEdge{InviteeID: frontier, Level: 1})
			if err != nil {
				return err
			}
			if parent == nil {
				break
			}

			if err := edgesTx.Create(ctx, &ReferralEdge{
				ID:        s.node.Generate().String(),
				InviterID: parent.InviterID,
				InviteeID: inviteeID,
				Level:     level,
			}); err != nil {
				return err
			}

			frontier = parent.InviterID
		}

		zap.L().Info("referral attribution recorded",
			zap.String("inviter_id", inviter.ID),
			zap.String("invitee_id", inviteeID),
		)
		return nil
	})
}

// Upline returns the materialized ancestor edges of a user, ordered by level.
func (s *Service) Upline(ctx context.Context, userID string) ([]*ReferralEdge, error) {
	var edges []*ReferralEdge
	if err := s.db.WithContext(ctx).
		Where("invitee_id = ?", userID).
		Order("level ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// Inviter returns the direct (level-1) inviter edge, or nil at a tree root.
func (s *Service) Inviter(ctx context.Context, userID string) (*ReferralEdge, error) {
	return s.edges.FindOne(ctx, &ReferralEdge{InviteeID: userID, Level: 1})
}

// DownlineTree builds the invite tree below a user by recursively following
// level-1 edges. Depth is capped at maxLevel and fan-out per node at
// downlineChildCap to keep pathological networks bounded.
func (s *Service) DownlineTree(ctx context.Context, userID string, maxLevel int) ([]*DownlineNode, error) {
	if maxLevel <= 0 || maxLevel > MaxLevel {
		maxLevel = MaxLevel
	}
	return s.buildDownline(ctx, userID, 1, maxLevel)
}

func (s *Service) buildDownline(ctx context.Context, inviterID string, level, maxLevel int) ([]*DownlineNode, error) {
	if level > maxLevel {
		return nil, nil
	}

	var edges []*ReferralEdge
	if err := s.db.WithContext(ctx).
		Where("inviter_id = ? AND level = ?", inviterID, 1).
		Order("created_at ASC").
		Limit(downlineChildCap).
		Find(&edges).Error; err != nil {
		return nil, err
	}

	nodes := make([]*DownlineNode, 0, len(edges))
	for _, edge := range edges {
		invitee, err := s.users.Get(ctx, edge.InviteeID)
		if err != nil {
			zap.L().Warn("downline member missing", zap.String("user_id", edge.InviteeID), zap.Error(err))
			continue
		}

		children, err := s.buildDownline(ctx, edge.InviteeID, level+1, maxLevel)
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, &DownlineNode{
			UserID:        invitee.ID,
			Email:         invitee.Email,
			IsActive:      invitee.IsActive,
			LastActive:    invitee.LastActivityDate,
			TotalBalance:  invitee.TotalBalance,
			EarnedBalance: invitee.EarnedBalance,
			Level:         level,
			Downline:      children,
		})
	}

	return nodes, nil
}

// GetStats aggregates a user's referral network for the dashboard.
func (s *Service) GetStats(ctx context.Context, userID string) (*Stats, error) {
	today := dateutil.Today()

	stats := &Stats{
		LevelCounts:  make(map[int]int, MaxLevel),
		ActiveCounts: make(map[int]int, MaxLevel),
	}
	for level := 1; level <= MaxLevel; level++ {
		stats.LevelCounts[level] = 0
		stats.ActiveCounts[level] = 0
	}

	var counts []struct {
		Level int
		Count int
	}
	if err := s.db.WithContext(ctx).Model(&ReferralEdge{}).
		Select("level, COUNT(*) AS count").
		Where("inviter_id = ?", userID).
		Group("level").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.LevelCounts[c.Level] = c.Count
		stats.TotalReferrals += c.Count
	}

	var active []struct {
		Level int
		Count int
	}
	if err := s.db.WithContext(ctx).Model(&ReferralEdge{}).
		Select("referrals.level, COUNT(*) AS count").
		Joins("JOIN users ON users.id = referrals.invitee_id").
		Where("referrals.inviter_id = ? AND users.is_active = ? AND users.last_activity_date = ?", userID, true, today).
		Group("referrals.level").
		Scan(&active).Error; err != nil {
		return nil, err
	}
	for _, c := range active {
		stats.ActiveCounts[c.Level] = c.Count
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.TotalEarnings = u.TotalReferralEarnings

	var todays float64
	if err := s.db.WithContext(ctx).Model(&CommissionRecord{}).
		Select("COALESCE(SUM(commission_amount), 0)").
		Where("inviter_id = ? AND date = ?", userID, today).
		Scan(&todays).Error; err != nil {
		return nil, err
	}
	stats.TodaysEarnings = todays

	return stats, nil
}

// CommissionHistory lists a user's most recent commission payouts.
func (s *Service) CommissionHistory(ctx context.Context, userID string, limit int) ([]*CommissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	return s.records.Find(ctx, &CommissionRecord{InviterID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}
