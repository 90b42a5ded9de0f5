package referral

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/services/testutil"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.NewTestDB(t,
		&user.User{},
		&wallet.Earning{},
		&ReferralEdge{},
		&DailyEarningsSnapshot{},
		&CommissionRecord{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	users := user.NewService(user.ServiceParams{DB: db, Node: node})
	return NewService(ServiceParams{DB: db, Node: node, Users: users}), db
}

func seedUser(t *testing.T, db *gorm.DB, id string) *user.User {
	t.Helper()
	u := &user.User{
		ID:           id,
		Email:        id + "@example.com",
		ReferralCode: "RC" + id,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// seedChain creates users u1..un where each invites the next, with full
// ancestry materialized through RecordSignup.
func seedChain(t *testing.T, svc *Service, db *gorm.DB, n int) []*user.User {
	t.Helper()
	users := make([]*user.User, n)
	for i := 0; i < n; i++ {
		users[i] = seedUser(t, db, userID(i))
		if i > 0 {
			require.NoError(t, svc.RecordSignup(context.Background(), users[i].ID, users[i-1].ReferralCode))
		}
	}
	return users
}

func userID(i int) string {
	return string(rune('a'+i)) + "1"
}

func TestRecordSignupMaterializesUpline(t *testing.T) {
	svc, db := newTestService(t)
	users := seedChain(t, svc, db, 10)

	// The 10th user has 9 ancestors but only 7 materialized edges.
	edges, err := svc.Upline(context.Background(), users[9].ID)
	require.NoError(t, err)
	require.Len(t, edges, MaxLevel)
	for i, edge := range edges {
		require.Equal(t, i+1, edge.Level)
		require.Equal(t, users[9-(i+1)].ID, edge.InviterID)
	}

	// The 3rd user sits 2 deep, so only 2 edges exist.
	edges, err = svc.Upline(context.Background(), users[2].ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	require.Equal(t, users[1].ID, edges[0].InviterID)
	require.Equal(t, users[0].ID, edges[1].InviterID)
}

func TestRecordSignupEmptyCode(t *testing.T) {
	svc, db := newTestService(t)
	u := seedUser(t, db, "solo")

	require.NoError(t, svc.RecordSignup(context.Background(), u.ID, ""))

	edges, err := svc.Upline(context.Background(), u.ID)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestRecordSignupUnknownCode(t *testing.T) {
	svc, db := newTestService(t)
	u := seedUser(t, db, "solo")

	require.NoError(t, svc.RecordSignup(context.Background(), u.ID, "NOPE99"))

	edges, err := svc.Upline(context.Background(), u.ID)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestRecordSignupSelfReferral(t *testing.T) {
	svc, db := newTestService(t)
	u := seedUser(t, db, "selfy")

	require.NoError(t, svc.RecordSignup(context.Background(), u.ID, u.ReferralCode))

	edges, err := svc.Upline(context.Background(), u.ID)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestRecordSignupDuplicate(t *testing.T) {
	svc, db := newTestService(t)
	inviter := seedUser(t, db, "inv")
	other := seedUser(t, db, "oth")
	invitee := seedUser(t, db, "nu")

	require.NoError(t, svc.RecordSignup(context.Background(), invitee.ID, inviter.ReferralCode))

	err := svc.RecordSignup(context.Background(), invitee.ID, other.ReferralCode)
	require.Error(t, err)

	edges, err := svc.Upline(context.Background(), invitee.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, inviter.ID, edges[0].InviterID)
}

func TestInviter(t *testing.T) {
	svc, db := newTestService(t)
	users := seedChain(t, svc, db, 3)

	edge, err := svc.Inviter(context.Background(), users[2].ID)
	require.NoError(t, err)
	require.NotNil(t, edge)
	require.Equal(t, users[1].ID, edge.InviterID)

	root, err := svc.Inviter(context.Background(), users[0].ID)
	require.NoError(t, err)
	require.Nil(t, root)
}

func TestDownlineTree(t *testing.T) {
	svc, db := newTestService(t)
	root := seedUser(t, db, "root")
	kid1 := seedUser(t, db, "kid1")
	kid2 := seedUser(t, db, "kid2")
	grand := seedUser(t, db, "grand")

	require.NoError(t, svc.RecordSignup(context.Background(), kid1.ID, root.ReferralCode))
	require.NoError(t, svc.RecordSignup(context.Background(), kid2.ID, root.ReferralCode))
	require.NoError(t, svc.RecordSignup(context.Background(), grand.ID, kid1.ReferralCode))

	tree, err := svc.DownlineTree(context.Background(), root.ID, 0)
	require.NoError(t, err)
	require.Len(t, tree, 2)

	var k1 *DownlineNode
	for _, n := range tree {
		if n.UserID == kid1.ID {
			k1 = n
		}
	}
	require.NotNil(t, k1)
	require.Equal(t, 1, k1.Level)
	require.Len(t, k1.Downline, 1)
	require.Equal(t, grand.ID, k1.Downline[0].UserID)
	require.Equal(t, 2, k1.Downline[0].Level)
}

func TestDownlineTreeDepthCap(t *testing.T) {
	svc, db := newTestService(t)
	seedChain(t, svc, db, 4)

	tree, err := svc.DownlineTree(context.Background(), userID(0), 2)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Downline, 1)
	require.Empty(t, tree[0].Downline[0].Downline)
}

func TestGetStats(t *testing.T) {
	svc, db := newTestService(t)
	users := seedChain(t, svc, db, 3)

	today := dateutil.Today()
	require.NoError(t, db.Model(&user.User{}).Where("id = ?", users[1].ID).
		Updates(map[string]any{"is_active": true, "last_activity_date": today}).Error)

	stats, err := svc.GetStats(context.Background(), users[0].ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalReferrals)
	require.Equal(t, 1, stats.LevelCounts[1])
	require.Equal(t, 1, stats.LevelCounts[2])
	require.Equal(t, 1, stats.ActiveCounts[1])
	require.Equal(t, 0, stats.ActiveCounts[2])
}
