// Package matching implements duplicate detection over member records:
// candidate generation through blocking, pairwise field scoring, and
// grouping of matched pairs into duplicate groups.
package matching

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// pairWeights govern how much each field contributes to a pair score.
// Only fields populated on both records take part.
var pairWeights = map[string]float64{
	"name":    0.50,
	"phone":   0.25,
	"batch":   0.15,
	"chapter": 0.10,
}

// emailMatchFloor is the minimum score for a pair sharing an email
// address. A shared address is near-proof of identity on its own.
const emailMatchFloor = 0.95

// DetectorConfig contains configuration for the duplicate detector
type DetectorConfig struct {
	SimilarityThreshold float64 // Pair score at or above which two members are duplicates (default: 0.8)
	WorkerCount         int     // Concurrent scoring workers (default: 4)
	MaxComparisons      int     // Comparison budget per run; 0 means unlimited
}

// DefaultConfig returns default detector configuration
func DefaultConfig() DetectorConfig {
	return DetectorConfig{
		SimilarityThreshold: 0.8,
		WorkerCount:         4,
		MaxComparisons:      200000,
	}
}

// Detector finds duplicate members in a batch of records.
type Detector struct {
	logger ectologger.Logger
	scorer *Scorer
	config DetectorConfig
}

// NewDetector creates a new duplicate detector
func NewDetector(logger ectologger.Logger, config DetectorConfig) *Detector {
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.8
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	return &Detector{
		logger: logger,
		scorer: NewScorer(),
		config: config,
	}
}

// Pair is one scored comparison between two members.
type Pair struct {
	MemberAID     string   `json:"member_a_id"`
	MemberBID     string   `json:"member_b_id"`
	Score         float64  `json:"score"`
	MatchedFields []string `json:"matched_fields"`
}

// Group is one connected set of members judged to be the same person.
type Group struct {
	// PrimaryID is the member the group should resolve to: the most
	// complete record, oldest record on ties.
	PrimaryID string
	MemberIDs []string
	// Score is the strongest pair score inside the group.
	Score float64
	Pairs []Pair
}

// Report is the outcome of one detection run.
type Report struct {
	MembersScanned int
	PairsCompared  int
	// Truncated reports that the comparison budget ran out before every
	// candidate pair was scored.
	Truncated bool
	Groups    []Group
}

// Detect scans members for duplicates. Results are deterministic for a
// given input: blocking, scoring, and grouping all run in a fixed order
// regardless of worker interleaving.
func (d *Detector) Detect(ctx context.Context, members []*models.Member) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Detector.Detect")
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"member_count": len(members),
	})

	report := &Report{MembersScanned: len(members)}
	if len(members) < 2 {
		return report, nil
	}

	pairs := d.candidatePairs(members)
	if d.config.MaxComparisons > 0 && len(pairs) > d.config.MaxComparisons {
		pairs = pairs[:d.config.MaxComparisons]
		report.Truncated = true
		log.WithFields(map[string]any{"budget": d.config.MaxComparisons}).Warn("Comparison budget exhausted, detection truncated")
	}

	scored := make([]Pair, len(pairs))
	var compared atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.WorkerCount)

	chunk := len(pairs)/d.config.WorkerCount + 1
	for start := 0; start < len(pairs); start += chunk {
		end := min(start+chunk, len(pairs))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				a, b := members[pairs[i][0]], members[pairs[i][1]]
				score, fields := d.Compare(a, b)
				scored[i] = Pair{MemberAID: a.ID, MemberBID: b.ID, Score: score, MatchedFields: fields}
				compared.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// A context bound is a budget, not a failure: group whatever was
		// scored before the deadline.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		report.Truncated = true
		log.Warn("Detection deadline reached, returning groups found so far")
	}
	report.PairsCompared = int(compared.Load())

	report.Groups = d.groupMatches(members, pairs, scored)

	log.WithFields(map[string]any{
		"pairs_compared": report.PairsCompared,
		"groups_found":   len(report.Groups),
	}).Info("Duplicate detection completed")

	return report, nil
}

// Compare scores one pair of members. The second return lists the fields
// that matched outright.
func (d *Detector) Compare(a, b *models.Member) (float64, []string) {
	scores := make(map[string]float64, len(pairWeights))
	var matched []string

	nameScore := d.compareNames(a, b)
	if nameScore >= 0 {
		scores["name"] = nameScore
		if nameScore >= 0.9 {
			matched = append(matched, "name")
		}
	}

	if phoneScore, comparable := comparePhones(a, b); comparable {
		scores["phone"] = phoneScore
		if phoneScore == 1.0 {
			matched = append(matched, "phone")
		}
	}

	if a.BatchYear != nil && b.BatchYear != nil {
		if *a.BatchYear == *b.BatchYear {
			scores["batch"] = 1.0
			matched = append(matched, "batch")
		} else {
			scores["batch"] = 0.0
		}
	}

	if a.ChapterName != nil && b.ChapterName != nil {
		chapterScore := d.scorer.ExactMatch(*a.ChapterName, *b.ChapterName, false)
		if chapterScore == 0 {
			// Chapters are short hand-typed names; forgive small typos.
			if d.scorer.Levenshtein(*a.ChapterName, *b.ChapterName) >= 0.85 {
				chapterScore = 1.0
			}
		}
		scores["chapter"] = chapterScore
		if chapterScore == 1.0 {
			matched = append(matched, "chapter")
		}
	}

	score := d.scorer.WeightedScore(scores, pairWeights)

	if a.Email != nil && b.Email != nil && *a.Email == *b.Email {
		matched = append([]string{"email"}, matched...)
		if score < emailMatchFloor {
			score = emailMatchFloor
		}
	}

	return score, matched
}

// compareNames scores the best pairing of the members' name forms. A
// record's nickname counts as an alternate first name, so "Johnny Cruz"
// matches a "Juan Cruz" nicknamed Johnny. Returns -1 when either side
// has no usable name.
func (d *Detector) compareNames(a, b *models.Member) float64 {
	aForms := nameForms(a)
	bForms := nameForms(b)
	if len(aForms) == 0 || len(bForms) == 0 {
		return -1
	}

	best := 0.0
	for _, af := range aForms {
		for _, bf := range bForms {
			if s := d.scorer.NameSimilarity(af, bf); s > best {
				best = s
			}
		}
	}
	return best
}

// nameForms returns the comparison keys for a member's name.
func nameForms(m *models.Member) []string {
	var forms []string
	if key := normalizers.MatchableName(m.FullName); key != "" {
		forms = append(forms, key)
	}
	if m.Nickname != nil && m.LastName != nil {
		if key := normalizers.MatchableName(*m.Nickname + " " + *m.LastName); key != "" {
			forms = append(forms, key)
		}
	}
	return forms
}

// comparePhones reports whether the members share any phone number. The
// comparison only applies when both sides have at least one number.
func comparePhones(a, b *models.Member) (float64, bool) {
	aNumbers := memberPhones(a)
	bNumbers := memberPhones(b)
	if len(aNumbers) == 0 || len(bNumbers) == 0 {
		return 0, false
	}
	for _, an := range aNumbers {
		for _, bn := range bNumbers {
			if an == bn {
				return 1.0, true
			}
		}
	}
	return 0.0, true
}

func memberPhones(m *models.Member) []string {
	var numbers []string
	if m.MobileNumber != nil {
		numbers = append(numbers, *m.MobileNumber)
	}
	if m.LandlineNumber != nil {
		numbers = append(numbers, *m.LandlineNumber)
	}
	return numbers
}

// candidatePairs generates the index pairs worth scoring. Members are
// blocked by email and by last-name Soundex plus first initial, so the
// run never goes quadratic over the whole directory while spelling
// variants of one surname still land in the same block.
func (d *Detector) candidatePairs(members []*models.Member) [][2]int {
	blocks := make(map[string][]int)
	for i, m := range members {
		for _, key := range d.blockKeys(m) {
			blocks[key] = append(blocks[key], i)
		}
	}

	keys := make([]string, 0, len(blocks))
	for key := range blocks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[[2]int]bool)
	var pairs [][2]int
	for _, key := range keys {
		block := blocks[key]
		for x := 0; x < len(block); x++ {
			for y := x + 1; y < len(block); y++ {
				pair := [2]int{block[x], block[y]}
				if pair[0] > pair[1] {
					pair[0], pair[1] = pair[1], pair[0]
				}
				if !seen[pair] {
					seen[pair] = true
					pairs = append(pairs, pair)
				}
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

// blockKeys returns the blocking keys a member belongs to.
func (d *Detector) blockKeys(m *models.Member) []string {
	var keys []string
	if m.Email != nil {
		keys = append(keys, "email:"+*m.Email)
	}

	last := ""
	if m.LastName != nil {
		last = *m.LastName
	} else if m.FullName != "" {
		last = m.FullName
	}
	if last != "" {
		initial := ""
		if m.FirstName != nil && *m.FirstName != "" {
			initial = string([]rune(*m.FirstName)[0])
		}
		keys = append(keys, "name:"+d.scorer.Soundex(last)+":"+initial)
	}
	return keys
}

// groupMatches unions matched pairs into connected groups and picks each
// group's primary member.
func (d *Detector) groupMatches(members []*models.Member, pairs [][2]int, scored []Pair) []Group {
	parent := make([]int, len(members))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	matchedPairs := make(map[int][]Pair)
	for i, pair := range scored {
		if pair.Score < d.config.SimilarityThreshold {
			continue
		}
		ra, rb := find(pairs[i][0]), find(pairs[i][1])
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	componentMembers := make(map[int][]int)
	for i := range members {
		root := find(i)
		componentMembers[root] = append(componentMembers[root], i)
	}
	for i, pair := range scored {
		if pair.Score < d.config.SimilarityThreshold {
			continue
		}
		root := find(pairs[i][0])
		matchedPairs[root] = append(matchedPairs[root], pair)
	}

	roots := make([]int, 0, len(componentMembers))
	for root, idxs := range componentMembers {
		if len(idxs) > 1 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		idxs := componentMembers[root]
		group := Group{Pairs: matchedPairs[root]}
		for _, idx := range idxs {
			group.MemberIDs = append(group.MemberIDs, members[idx].ID)
		}
		sort.Strings(group.MemberIDs)
		for _, pair := range group.Pairs {
			if pair.Score > group.Score {
				group.Score = pair.Score
			}
		}
		group.PrimaryID = selectPrimary(members, idxs)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].PrimaryID < groups[j].PrimaryID
	})
	return groups
}

// selectPrimary picks the group's surviving record: the most complete
// one, then the oldest, then the smallest id so ties stay stable.
func selectPrimary(members []*models.Member, idxs []int) string {
	best := members[idxs[0]]
	for _, idx := range idxs[1:] {
		m := members[idx]
		switch {
		case m.CompletenessScore > best.CompletenessScore:
			best = m
		case m.CompletenessScore == best.CompletenessScore:
			if m.CreatedAt.Before(best.CreatedAt) {
				best = m
			} else if m.CreatedAt.Equal(best.CreatedAt) && m.ID < best.ID {
				best = m
			}
		}
	}
	return best.ID
}
