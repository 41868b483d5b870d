package orchestrator

import (
	"context"
	"testing"
	"time"

	gocheck "gopkg.in/check.v1"

	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/objectstore/memstore"
)

// Table-driven gocheck suite for BuildQueue's ordering invariant (spec.md
// §8 invariant 7: "queue sorted by descending popcount"), in the shape
// the teacher's own queue-like suites use: one Suite type, one entry
// point registered with testing via Test(t), table of cases walked in a
// single suite method.
func TestGocheckSuite(t *testing.T) { gocheck.TestingT(t) }

type QueueOrderingSuite struct{}

var _ = gocheck.Suite(&QueueOrderingSuite{})

func (s *QueueOrderingSuite) TestOrderingAcrossDifficultyMixes(c *gocheck.C) {
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		challenges []ledger.QueuedChallenge
		wantOrder  []string
	}{
		{
			challenges: []ledger.QueuedChallenge{
				challenge("a", "0x0f", now.Add(time.Hour)),
				challenge("b", "0xff", now.Add(time.Hour)),
				challenge("c", "0x01", now.Add(time.Hour)),
			},
			wantOrder: []string{"b", "a", "c"},
		},
		{
			challenges: []ledger.QueuedChallenge{
				challenge("x", "0x00", now.Add(time.Hour)),
				challenge("y", "0xff", now.Add(time.Hour)),
			},
			wantOrder: []string{"y", "x"},
		},
		{
			challenges: []ledger.QueuedChallenge{
				challenge("solo", "0x7f", now.Add(time.Hour)),
			},
			wantOrder: []string{"solo"},
		},
	}

	for _, tc := range cases {
		solutions := ledger.NewSolutionsStore(memstore.New())
		items, err := BuildQueue(ctx, solutions, []string{"addr1"}, tc.challenges)
		c.Assert(err, gocheck.IsNil)
		c.Assert(items, gocheck.HasLen, len(tc.wantOrder))
		for i, id := range tc.wantOrder {
			c.Check(items[i].Challenge.ChallengeID, gocheck.Equals, id)
		}
	}
}
