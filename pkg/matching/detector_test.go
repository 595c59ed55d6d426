package matching

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestDetector(config DetectorConfig) *Detector {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewDetector(logger, config)
}

func str(s string) *string { return &s }
func intp(i int) *int      { return &i }

func TestDetect_SharedEmail(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
		{ID: "m2", FullName: "Jun Cruz", FirstName: str("Jun"), LastName: str("Cruz"), Email: str("juan@example.com")},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	group := report.Groups[0]
	assert.ElementsMatch(t, []string{"m1", "m2"}, group.MemberIDs)
	assert.GreaterOrEqual(t, group.Score, emailMatchFloor)
	require.Len(t, group.Pairs, 1)
	assert.Contains(t, group.Pairs[0].MatchedFields, "email")
}

func TestDetect_NameAndBatch(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Maria Santos", FirstName: str("Maria"), LastName: str("Santos"), BatchYear: intp(1990)},
		{ID: "m2", FullName: "Maria Santos", FirstName: str("Maria"), LastName: str("Santos"), BatchYear: intp(1990)},
		{ID: "m3", FullName: "Pedro Reyes", FirstName: str("Pedro"), LastName: str("Reyes"), BatchYear: intp(1990)},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, report.Groups[0].MemberIDs)
}

func TestDetect_BatchDisagreementVetoesLookalikes(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	// Same surname block, similar names, but twenty years apart.
	members := []*models.Member{
		{ID: "m1", FullName: "Maria Santos", FirstName: str("Maria"), LastName: str("Santos"), BatchYear: intp(1990)},
		{ID: "m2", FullName: "Margarita Santos", FirstName: str("Margarita"), LastName: str("Santos"), BatchYear: intp(2010)},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	assert.Greater(t, report.PairsCompared, 0, "the pair should be compared, just not matched")
	assert.Empty(t, report.Groups)
}

func TestDetect_TransitiveGrouping(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Jon Cruz", FirstName: str("Jon"), LastName: str("Cruz"), Email: str("juan@example.com")},
		{ID: "m2", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com"), BatchYear: intp(1995)},
		{ID: "m3", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), BatchYear: intp(1995), MobileNumber: str("+639171234567")},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, report.Groups[0].MemberIDs)
}

func TestDetect_NicknameMatchesFirstName(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Nickname: str("Johnny"), BatchYear: intp(1995)},
		{ID: "m2", FullName: "Johnny Cruz", FirstName: str("Johnny"), LastName: str("Cruz"), BatchYear: intp(1995)},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, report.Groups[0].MemberIDs)
}

func TestDetect_MissingBatchStillMatchesOnPhone(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Jose Garcia", FirstName: str("Jose"), LastName: str("Garcia"), BatchYear: intp(1988), MobileNumber: str("+639181112222")},
		{ID: "m2", FullName: "Jose Garcia", FirstName: str("Jose"), LastName: str("Garcia"), MobileNumber: str("+639181112222")},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	require.Len(t, report.Groups[0].Pairs, 1)
	assert.Contains(t, report.Groups[0].Pairs[0].MatchedFields, "phone")
}

func TestDetect_PrimarySelection(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("most complete record wins", func(t *testing.T) {
		members := []*models.Member{
			{ID: "m1", FullName: "Ana Lim", FirstName: str("Ana"), LastName: str("Lim"), Email: str("ana@example.com"), CompletenessScore: 0.3, CreatedAt: older},
			{ID: "m2", FullName: "Ana Lim", FirstName: str("Ana"), LastName: str("Lim"), Email: str("ana@example.com"), CompletenessScore: 0.8, CreatedAt: newer},
		}

		report, err := d.Detect(context.Background(), members)
		require.NoError(t, err)
		require.Len(t, report.Groups, 1)
		assert.Equal(t, "m2", report.Groups[0].PrimaryID)
	})

	t.Run("completeness tie falls back to oldest", func(t *testing.T) {
		members := []*models.Member{
			{ID: "m1", FullName: "Ana Lim", FirstName: str("Ana"), LastName: str("Lim"), Email: str("ana@example.com"), CompletenessScore: 0.5, CreatedAt: newer},
			{ID: "m2", FullName: "Ana Lim", FirstName: str("Ana"), LastName: str("Lim"), Email: str("ana@example.com"), CompletenessScore: 0.5, CreatedAt: older},
		}

		report, err := d.Detect(context.Background(), members)
		require.NoError(t, err)
		require.Len(t, report.Groups, 1)
		assert.Equal(t, "m2", report.Groups[0].PrimaryID)
	})
}

func TestDetect_ComparisonBudget(t *testing.T) {
	config := DefaultConfig()
	config.MaxComparisons = 1
	d := newTestDetector(config)

	members := []*models.Member{
		{ID: "m1", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
		{ID: "m2", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
		{ID: "m3", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
	}

	report, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	assert.True(t, report.Truncated)
	assert.Equal(t, 1, report.PairsCompared)
}

func TestDetect_CanceledContextReturnsPartialReport(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
		{ID: "m2", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Detect(ctx, members)
	require.NoError(t, err, "a context bound degrades the scan, it does not fail it")
	assert.True(t, report.Truncated)
	assert.Equal(t, 0, report.PairsCompared)
	assert.Empty(t, report.Groups)
}

func TestDetect_Deterministic(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	members := []*models.Member{
		{ID: "m1", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com"), CompletenessScore: 0.4},
		{ID: "m2", FullName: "Juan Cruz", FirstName: str("Juan"), LastName: str("Cruz"), Email: str("juan@example.com"), CompletenessScore: 0.6},
		{ID: "m3", FullName: "Maria Santos", FirstName: str("Maria"), LastName: str("Santos"), BatchYear: intp(1990)},
		{ID: "m4", FullName: "Maria Santos", FirstName: str("Maria"), LastName: str("Santos"), BatchYear: intp(1990)},
		{ID: "m5", FullName: "Pedro Reyes", FirstName: str("Pedro"), LastName: str("Reyes")},
	}

	first, err := d.Detect(context.Background(), members)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := d.Detect(context.Background(), members)
		require.NoError(t, err)
		assert.Equal(t, first.Groups, again.Groups)
	}
}

func TestDetect_FewerThanTwoMembers(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	report, err := d.Detect(context.Background(), []*models.Member{
		{ID: "m1", FullName: "Juan Cruz"},
	})
	require.NoError(t, err)

	assert.Empty(t, report.Groups)
	assert.Equal(t, 0, report.PairsCompared)
}

func TestCompare_EmailFloorOverridesWeakFields(t *testing.T) {
	d := newTestDetector(DefaultConfig())

	a := &models.Member{ID: "m1", FullName: "Ana Reyes", Email: str("shared@example.com")}
	b := &models.Member{ID: "m2", FullName: "Bea Tan", Email: str("shared@example.com")}

	score, matched := d.Compare(a, b)
	assert.GreaterOrEqual(t, score, emailMatchFloor)
	assert.Contains(t, matched, "email")
}
