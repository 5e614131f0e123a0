package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidcard/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testAnnouncement(url string) *model.Announcement {
	return &model.Announcement{
		Title:       "机房改造中标公告",
		URL:         url,
		Content:     "正文",
		PublishDate: "2026-08-20",
		Source:      "ccgp-bxsearch",
		BuyerName:   "浙江警察学院",
		ScrapedAt:   time.Now().UTC(),
	}
}

// --- Announcements ---

func TestSQLite_InsertAnnouncement_OncePerURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, created, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/a.htm"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, id1, int64(0))

	// Second insert with the same URL is ignored and returns the
	// original row id.
	id2, created, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/a.htm"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	anns, err := st.ListAnnouncements(ctx, AnnouncementFilter{})
	require.NoError(t, err)
	assert.Len(t, anns, 1)
}

func TestSQLite_GetAnnouncementIDByURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := st.GetAnnouncementIDByURL(ctx, "https://www.ccgp.gov.cn/missing.htm")
	require.NoError(t, err)
	assert.False(t, ok)

	id, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/b.htm"))
	require.NoError(t, err)

	got, ok, err := st.GetAnnouncementIDByURL(ctx, "https://www.ccgp.gov.cn/b.htm")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestSQLite_ListAnnouncements_SourceFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testAnnouncement("https://www.ccgp.gov.cn/1.htm")
	_, _, err := st.InsertAnnouncement(ctx, a)
	require.NoError(t, err)

	b := testAnnouncement("https://www.ccgp.gov.cn/2.htm")
	b.Source = "other"
	_, _, err = st.InsertAnnouncement(ctx, b)
	require.NoError(t, err)

	anns, err := st.ListAnnouncements(ctx, AnnouncementFilter{Source: "ccgp-bxsearch"})
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "https://www.ccgp.gov.cn/1.htm", anns[0].URL)
	assert.Equal(t, "浙江警察学院", anns[0].BuyerName)
}

// --- Card merge ---

func TestSQLite_MergeMention_CreatesCard(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	annID, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/c.htm"))
	require.NoError(t, err)

	cardID, created, err := st.MergeMention(ctx, MentionInput{
		AnnouncementID: annID,
		Company:        "浙江警察学院",
		ContactName:    "张三",
		Role:           model.RoleBuyer,
		Phones:         []string{"13812345678"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	cards, err := st.QueryCards(ctx, CardQuery{Company: "浙江警察学院"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, cardID, cards[0].ID)
	assert.Equal(t, "张三", cards[0].ContactName)
	assert.Equal(t, []string{"13812345678"}, cards[0].Phones)
	assert.Equal(t, 1, cards[0].Announcements)
}

// The phone/email sets only grow: merging a second mention for the same
// (company, contact) unions the sets instead of replacing them.
func TestSQLite_MergeMention_UnionIsMonotonic(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ann1, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/m1.htm"))
	require.NoError(t, err)
	ann2, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/m2.htm"))
	require.NoError(t, err)

	id1, created, err := st.MergeMention(ctx, MentionInput{
		AnnouncementID: ann1,
		Company:        "浙江警察学院",
		ContactName:    "张三",
		Role:           model.RoleBuyer,
		Phones:         []string{"13812345678"},
		Emails:         []string{"Zhang@School.CN"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := st.MergeMention(ctx, MentionInput{
		AnnouncementID: ann2,
		Company:        "浙江警察学院",
		ContactName:    "张三",
		Role:           model.RoleBuyer,
		Phones:         []string{"0571-88888888", "13812345678"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	cards, err := st.QueryCards(ctx, CardQuery{Company: "浙江警察学院"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	// Sorted union; emails lowercased.
	assert.Equal(t, []string{"0571-88888888", "13812345678"}, cards[0].Phones)
	assert.Equal(t, []string{"zhang@school.cn"}, cards[0].Emails)
	assert.Equal(t, 2, cards[0].Announcements)
}

func TestSQLite_MergeMention_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	annID, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/i.htm"))
	require.NoError(t, err)

	in := MentionInput{
		AnnouncementID: annID,
		Company:        "某公司",
		ContactName:    "李四",
		Role:           model.RoleAgent,
		Phones:         []string{"13912345678"},
	}
	for i := 0; i < 3; i++ {
		_, _, err := st.MergeMention(ctx, in)
		require.NoError(t, err)
	}

	cards, err := st.QueryCards(ctx, CardQuery{Company: "某公司"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 1, cards[0].Announcements)

	mentions, err := st.ListCardMentions(ctx, cards[0].ID)
	require.NoError(t, err)
	assert.Len(t, mentions, 1, "re-merging the same mention must not add provenance rows")
}

// The same person can appear in the same announcement under different
// roles; each role is its own provenance edge.
func TestSQLite_MergeMention_DistinctRoles(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	annID, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/r.htm"))
	require.NoError(t, err)

	in := MentionInput{AnnouncementID: annID, Company: "某公司", ContactName: "李四", Role: model.RoleAgent}
	_, _, err = st.MergeMention(ctx, in)
	require.NoError(t, err)

	in.Role = model.RoleContact
	_, _, err = st.MergeMention(ctx, in)
	require.NoError(t, err)

	cards, err := st.QueryCards(ctx, CardQuery{Company: "某公司"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 1, cards[0].Announcements, "distinct announcement count is role-independent")

	mentions, err := st.ListCardMentions(ctx, cards[0].ID)
	require.NoError(t, err)
	assert.Len(t, mentions, 2)
}

func TestSQLite_MergeMention_RequiresIdentity(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, _, err := st.MergeMention(context.Background(), MentionInput{AnnouncementID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company or contact name")
}

func TestSQLite_QueryCards_LikeAndOrdering(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ann1, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/q1.htm"))
	require.NoError(t, err)
	ann2, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/q2.htm"))
	require.NoError(t, err)

	// 张三 appears in two announcements, 李四 in one.
	for _, annID := range []int64{ann1, ann2} {
		_, _, err := st.MergeMention(ctx, MentionInput{
			AnnouncementID: annID, Company: "浙江警察学院", ContactName: "张三", Role: model.RoleBuyer,
		})
		require.NoError(t, err)
	}
	_, _, err = st.MergeMention(ctx, MentionInput{
		AnnouncementID: ann1, Company: "浙江大学", ContactName: "李四", Role: model.RoleBuyer,
	})
	require.NoError(t, err)

	cards, err := st.QueryCards(ctx, CardQuery{Company: "浙江", Like: true})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "张三", cards[0].ContactName, "most-mentioned card first")
	assert.Equal(t, "李四", cards[1].ContactName)

	// Exact match does not substring-match.
	cards, err = st.QueryCards(ctx, CardQuery{Company: "浙江"})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestSQLite_ListCardMentions_CarriesAnnouncementFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	annID, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/p.htm"))
	require.NoError(t, err)

	cardID, _, err := st.MergeMention(ctx, MentionInput{
		AnnouncementID: annID, Company: "浙江警察学院", ContactName: "张三", Role: model.RoleBuyer,
	})
	require.NoError(t, err)

	mentions, err := st.ListCardMentions(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, model.RoleBuyer, mentions[0].Role)
	assert.Equal(t, "机房改造中标公告", mentions[0].Title)
	assert.Equal(t, "https://www.ccgp.gov.cn/p.htm", mentions[0].URL)
	assert.Equal(t, "2026-08-20", mentions[0].PublishDate)
}

// --- Runs ---

func TestSQLite_RunLedger(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, `{"keyword":"机房"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	summary := &model.RunSummary{
		StubsSeen:        5,
		NewAnnouncements: 3,
		Keywords:         map[string]model.KeywordStatus{"机房": model.KeywordThrottled},
	}
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, summary))

	err = st.FinishRun(ctx, "no-such-run", model.RunStatusFailed, nil)
	require.Error(t, err)
}

// --- Stats ---

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	annID, _, err := st.InsertAnnouncement(ctx, testAnnouncement("https://www.ccgp.gov.cn/s.htm"))
	require.NoError(t, err)
	_, _, err = st.MergeMention(ctx, MentionInput{
		AnnouncementID: annID, Company: "浙江警察学院", ContactName: "张三", Role: model.RoleBuyer,
	})
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Announcements)
	assert.Equal(t, int64(1), stats.Cards)
	assert.Equal(t, int64(1), stats.Mentions)
	assert.Equal(t, int64(1), stats.BySource["ccgp-bxsearch"])
	require.Len(t, stats.TopCompanies, 1)
	assert.Equal(t, "浙江警察学院", stats.TopCompanies[0].Company)
}
