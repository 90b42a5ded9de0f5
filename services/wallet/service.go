package wallet

import (
	"context"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/pkg/db/option"
	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/pkg/repository"
	"github.com/Sonarrati/Cryptra-App/pkg/sequence"
	"github.com/Sonarrati/Cryptra-App/services/user"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WithdrawalFeeRate is deducted from every withdrawal request.
const WithdrawalFeeRate = 0.05

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	sequence sequence.Generator

	earnings    repository.Repository[Earning]
	withdrawals repository.Repository[Withdrawal]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		sequence:    p.Sequence,
		earnings:    repository.ProvideStore[Earning](p.DB),
		withdrawals: repository.ProvideStore[Withdrawal](p.DB),
	}
}

type CreditParams struct {
	UserID      string
	Amount      float64
	Type        EarningType
	Level       int
	Description string
}

type Balance struct {
	TotalBalance  float64 `json:"total_balance"`
	EarnedBalance float64 `json:"earned_balance"`
}

// Credit applies a balance increase and appends the earning row in one
// transaction. The increments are expressed in SQL so concurrent credits to
// the same user never lose updates.
func (s *Service) Credit(ctx context.Context, p CreditParams) (*Earning, error) {
	var earning *Earning
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		earning, err = s.CreditInTx(ctx, tx, p)
		return err
	}); err != nil {
		return nil, err
	}

	return earning, nil
}

// CreditInTx is Credit running inside a caller-owned transaction, so the
// commission engine can pair a payout with its audit record atomically.
func (s *Service) CreditInTx(ctx context.Context, tx *gorm.DB, p CreditParams) (*Earning, error) {
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0 for credit")
	}
	if !p.Type.Valid() {
		return nil, errutil.BadRequest("unsupported earning type")
	}

	res := tx.WithContext(ctx).Model(&user.User{}).
		Where("id = ?", p.UserID).
		Updates(map[string]any{
			"total_balance":  gorm.Expr("total_balance + ?", p.Amount),
			"earned_balance": gorm.Expr("earned_balance + ?", p.Amount),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("user not found")
	}

	earning := &Earning{
		ID:          s.node.Generate().String(),
		UserID:      p.UserID,
		Type:        p.Type,
		Amount:      p.Amount,
		Level:       p.Level,
		Description: p.Description,
	}
	if err := s.earnings.WithTrx(tx).Create(ctx, earning); err != nil {
		return nil, err
	}

	return earning, nil
}

// Debit withdraws from the total balance. The guard lives in the UPDATE's
// WHERE clause; a concurrent debit can therefore never drive the balance
// negative.
func (s *Service) Debit(ctx context.Context, userID string, amount float64) (*Balance, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0 for debit")
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.debitInTx(ctx, tx, userID, amount)
	}); err != nil {
		return nil, err
	}

	return s.BalanceOf(ctx, userID)
}

func (s *Service) debitInTx(ctx context.Context, tx *gorm.DB, userID string, amount float64) error {
	res := tx.WithContext(ctx).Model(&user.User{}).
		Where("id = ? AND total_balance >= ?", userID, amount).
		Updates(map[string]any{
			"total_balance": gorm.Expr("total_balance - ?", amount),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&user.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errutil.NotFound("user not found")
		}
		return errutil.UnprocessableEntity("insufficient funds")
	}
	return nil
}

// Withdraw debits the requested amount, moves it to withdrawn_balance and
// records the pending payout request with its fee.
func (s *Service) Withdraw(ctx context.Context, userID, method, account string, amount float64) (*Withdrawal, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0 for withdrawal")
	}

	var reference string
	if s.sequence != nil {
		code, err := s.sequence.NextWithdrawalCode(ctx)
		if err != nil {
			zap.L().Warn("failed to allocate withdrawal reference", zap.Error(err))
		} else {
			reference = code
		}
	}

	fee := amount * WithdrawalFeeRate
	w := &Withdrawal{
		Reference:       reference,
		ID:              s.node.Generate().String(),
		UserID:          userID,
		Method:          method,
		Account:         account,
		AmountRequested: amount,
		Fee:             fee,
		NetAmount:       amount - fee,
		Status:          WithdrawalPending,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.debitInTx(ctx, tx, userID, amount); err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Model(&user.User{}).
			Where("id = ?", userID).
			Update("withdrawn_balance", gorm.Expr("withdrawn_balance + ?", amount)).Error; err != nil {
			return err
		}

		return s.withdrawals.WithTrx(tx).Create(ctx, w)
	}); err != nil {
		return nil, err
	}

	zap.L().Info("withdrawal requested",
		zap.String("user_id", userID),
		zap.Float64("amount", amount),
		zap.Float64("fee", fee),
	)

	return w, nil
}

// EarningsToday sums and counts a user's earnings for one UTC date,
// optionally filtered by type.
func (s *Service) EarningsToday(ctx context.Context, userID string, typ EarningType, date string) (float64, int64, error) {
	start, end, err := dateutil.DayRange(date)
	if err != nil {
		return 0, 0, errutil.BadRequest("invalid date", errutil.WithErr(err))
	}

	query := s.db.WithContext(ctx).Model(&Earning{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end)
	if typ != "" {
		query = query.Where("type = ?", typ)
	}

	var row struct {
		Total float64
		Count int64
	}
	if err := query.Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

// DailyEarningsExcluding totals one day's earnings while excluding derived
// types, so commissions never compound on themselves.
func (s *Service) DailyEarningsExcluding(ctx context.Context, userID, date string, excluded ...EarningType) (float64, error) {
	start, end, err := dateutil.DayRange(date)
	if err != nil {
		return 0, errutil.BadRequest("invalid date", errutil.WithErr(err))
	}

	query := s.db.WithContext(ctx).Model(&Earning{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end)
	if len(excluded) > 0 {
		query = query.Where("type NOT IN ?", excluded)
	}

	var total float64
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Earning, error) {
	if limit <= 0 {
		limit = 10
	}

	return s.earnings.Find(ctx, &Earning{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

func (s *Service) Withdrawals(ctx context.Context, userID string, limit int) ([]*Withdrawal, error) {
	if limit <= 0 {
		limit = 10
	}

	return s.withdrawals.Find(ctx, &Withdrawal{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

func (s *Service) BalanceOf(ctx context.Context, userID string) (*Balance, error) {
	var u user.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("user not found")
		}
		return nil, err
	}
	return &Balance{TotalBalance: u.TotalBalance, EarnedBalance: u.EarnedBalance}, nil
}
