package validate

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitrep-cli/internal/model"
)

func row(state string, s, c, p, h, d string) model.Row {
	return model.Row{
		State:     state,
		Suspected: model.ParseCount(s),
		Confirmed: model.ParseCount(c),
		Probable:  model.ParseCount(p),
		HCW:       model.ParseCount(h),
		Deaths:    model.ParseCount(d),
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Raise, p)

	p, err = ParsePolicy("lower")
	require.NoError(t, err)
	assert.Equal(t, Lower, p)

	_, err = ParsePolicy("average")
	assert.Error(t, err)
}

func TestValidate_ValidRowsUnchanged(t *testing.T) {
	in := []model.Row{
		row("Edo", "10", "5", "2", "1", "1"),
		row("Ondo", "7", "", "", "", ""),
		row("Total", "17", "5", "2", "1", "1"),
	}
	rep := New(Raise).Validate(in)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Violations)
	assert.Equal(t, in, rep.Rows)
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	in := []model.Row{row("Edo", "3", "5", "", "", "1")}
	_ = New(Raise).Validate(in)
	assert.Equal(t, model.Int(3), in[0].Suspected)
}

func TestValidate_Repairs(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		in         model.Row
		want       model.Row
		violations []string
	}{
		{
			name:       "raise suspected",
			policy:     Raise,
			in:         row("Edo", "3", "5", "", "", "1"),
			want:       row("Edo", "5", "5", "", "", "1"),
			violations: []string{"row 1 (Edo) Suspected: Suspected (3) < Confirmed (5)"},
		},
		{
			name:   "raise cascades through confirmed",
			policy: Raise,
			in:     row("Edo", "5", "3", "", "", "7"),
			want:   row("Edo", "7", "7", "", "", "7"),
			violations: []string{
				"row 1 (Edo) Confirmed: Confirmed (3) < Deaths (7)",
			},
		},
		{
			name:       "lower confirmed",
			policy:     Lower,
			in:         row("Edo", "3", "5", "", "", "1"),
			want:       row("Edo", "3", "3", "", "", "1"),
			violations: []string{"row 1 (Edo) Suspected: Suspected (3) < Confirmed (5)"},
		},
		{
			name:   "lower cascades through deaths",
			policy: Lower,
			in:     row("Edo", "3", "5", "", "", "4"),
			want:   row("Edo", "3", "3", "", "", "3"),
			violations: []string{
				"row 1 (Edo) Suspected: Suspected (3) < Confirmed (5)",
			},
		},
		{
			name:   "negative clamps to zero",
			policy: Raise,
			in:     row("Kogi", "4", "-2", "", "", "0"),
			want:   row("Kogi", "4", "0", "", "", "0"),
			violations: []string{
				"row 1 (Kogi) Confirmed: negative value -2",
			},
		},
		{
			name:   "unparseable reads as zero",
			policy: Raise,
			in:     row("Kogi", "4", "l2", "", "x", "1"),
			want:   row("Kogi", "4", "1", "", "0", "1"),
			violations: []string{
				`row 1 (Kogi) Confirmed: non-numeric value "l2"`,
				`row 1 (Kogi) HCW: non-numeric value "x"`,
				"row 1 (Kogi) Confirmed: Confirmed (0) < Deaths (1)",
			},
		},
		{
			name:   "blank suspected is raised",
			policy: Raise,
			in:     row("Kogi", "", "2", "", "", ""),
			want:   row("Kogi", "2", "2", "", "", ""),
			violations: []string{
				"row 1 (Kogi) Suspected: Suspected (0) < Confirmed (2)",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := New(tt.policy).Validate([]model.Row{tt.in})
			assert.False(t, rep.Valid)
			require.Len(t, rep.Rows, 1)
			assert.Equal(t, tt.want, rep.Rows[0])
			assert.Equal(t, tt.violations, rep.Messages())
		})
	}
}

func TestValidate_SkipsTotalAndBlankState(t *testing.T) {
	in := []model.Row{
		row("", "1", "9", "", "", ""),
		row("Total", "1", "9", "", "", "20"),
	}
	rep := New(Raise).Validate(in)
	assert.True(t, rep.Valid)
	assert.Equal(t, in, rep.Rows)
}

func TestValidate_Empty(t *testing.T) {
	rep := New(Raise).Validate(nil)
	assert.True(t, rep.Valid)
	assert.NotNil(t, rep.Rows)
	assert.Empty(t, rep.Rows)
}

// Random row sets: the repaired rows always hold the invariants, and the
// report is invalid exactly when some input row broke one.
func TestValidate_InvariantsHoldForRandomRows(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, policy := range []Policy{Raise, Lower} {
		for iter := 0; iter < 500; iter++ {
			n := 1 + rng.IntN(12)
			in := make([]model.Row, n)
			broken := false
			for i := range in {
				s, c, d := rng.IntN(50), rng.IntN(50), rng.IntN(50)
				in[i] = model.Row{
					State:     "State" + strconv.Itoa(i),
					Suspected: model.Int(s),
					Confirmed: model.Int(c),
					Probable:  model.Int(rng.IntN(5)),
					HCW:       model.Int(rng.IntN(5)),
					Deaths:    model.Int(d),
				}
				if rng.IntN(10) == 0 {
					in[i].Deaths = model.ParseCount("?")
					broken = true
				}
				if s < c || c < in[i].Deaths.OrZero() {
					broken = true
				}
			}

			rep := New(policy).Validate(in)
			require.Len(t, rep.Rows, n)
			assert.Equal(t, !broken, rep.Valid, "policy %s iter %d", policy, iter)
			for _, r := range rep.Rows {
				s, c, d := r.Suspected.OrZero(), r.Confirmed.OrZero(), r.Deaths.OrZero()
				assert.GreaterOrEqual(t, s, c, "policy %s iter %d %s", policy, iter, r.State)
				assert.GreaterOrEqual(t, c, d, "policy %s iter %d %s", policy, iter, r.State)
				assert.GreaterOrEqual(t, d, 0)
			}
		}
	}
}
