package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// TestSelectStrategy tests the full decision table
func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		in       SelectionInput
		expected domain.Strategy
	}{
		// explicit choices are returned unchanged
		{"explicit api large no git", SelectionInput{domain.StrategyAPI, false, domain.Subtree, 5000}, domain.StrategyAPI},
		{"explicit api whole repo with git", SelectionInput{domain.StrategyAPI, true, domain.WholeRepository, 0}, domain.StrategyAPI},
		{"explicit zip small", SelectionInput{domain.StrategyZip, true, domain.SingleFile, 1}, domain.StrategyZip},
		{"explicit git without git", SelectionInput{domain.StrategyGit, false, domain.Subtree, 3}, domain.StrategyGit},

		// auto with git
		{"git whole repo", SelectionInput{domain.StrategyAuto, true, domain.WholeRepository, 0}, domain.StrategyGit},
		{"git single file", SelectionInput{domain.StrategyAuto, true, domain.SingleFile, 1}, domain.StrategyAPI},
		{"git subtree 100", SelectionInput{domain.StrategyAuto, true, domain.Subtree, 100}, domain.StrategyAPI},
		{"git subtree 101", SelectionInput{domain.StrategyAuto, true, domain.Subtree, 101}, domain.StrategyGit},

		// auto without git
		{"no git single file", SelectionInput{domain.StrategyAuto, false, domain.SingleFile, 1}, domain.StrategyAPI},
		{"no git empty subtree", SelectionInput{domain.StrategyAuto, false, domain.Subtree, 0}, domain.StrategyAPI},
		{"no git 99", SelectionInput{domain.StrategyAuto, false, domain.Subtree, 99}, domain.StrategyAPI},
		{"no git 100", SelectionInput{domain.StrategyAuto, false, domain.Subtree, 100}, domain.StrategyAPI},
		{"no git 101", SelectionInput{domain.StrategyAuto, false, domain.Subtree, 101}, domain.StrategyZip},
		{"no git 150", SelectionInput{domain.StrategyAuto, false, domain.Subtree, 150}, domain.StrategyZip},
		{"no git whole repo small", SelectionInput{domain.StrategyAuto, false, domain.WholeRepository, 12}, domain.StrategyAPI},
		{"no git whole repo large", SelectionInput{domain.StrategyAuto, false, domain.WholeRepository, 101}, domain.StrategyZip},

		{"empty means auto", SelectionInput{"", false, domain.Subtree, 101}, domain.StrategyZip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectStrategy(tt.in)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.IsConcrete())
		})
	}
}

// TestSelectStrategy_AutoNeverPicksUnavailableGit tests that auto without git never yields git
func TestSelectStrategy_AutoNeverPicksUnavailableGit(t *testing.T) {
	for _, kind := range []domain.RefKind{domain.SingleFile, domain.Subtree, domain.WholeRepository} {
		for count := 0; count <= 300; count++ {
			got := SelectStrategy(SelectionInput{Requested: domain.StrategyAuto, Kind: kind, Count: count})
			require.NotEqual(t, domain.StrategyGit, got, "kind=%s count=%d", kind, count)
		}
	}
}

func TestNeedsCount(t *testing.T) {
	tests := []struct {
		name      string
		requested domain.Strategy
		git       bool
		kind      domain.RefKind
		expected  bool
	}{
		{"explicit", domain.StrategyZip, false, domain.Subtree, false},
		{"single file", domain.StrategyAuto, false, domain.SingleFile, false},
		{"whole repo with git", domain.StrategyAuto, true, domain.WholeRepository, false},
		{"whole repo without git", domain.StrategyAuto, false, domain.WholeRepository, true},
		{"subtree with git", domain.StrategyAuto, true, domain.Subtree, true},
		{"subtree without git", domain.StrategyAuto, false, domain.Subtree, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsCount(tt.requested, tt.git, tt.kind))
		})
	}
}

func TestValidateAvailability(t *testing.T) {
	assert.NoError(t, ValidateAvailability(domain.StrategyAPI, false, ""))
	assert.NoError(t, ValidateAvailability(domain.StrategyZip, false, ""))
	assert.NoError(t, ValidateAvailability(domain.StrategyGit, true, ""))

	err := ValidateAvailability(domain.StrategyGit, false, "git 2.20.1 is older than 2.25.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStrategyUnavailable)
	assert.Contains(t, err.Error(), "older than")

	err = ValidateAvailability(domain.StrategyGit, false, "")
	assert.Contains(t, err.Error(), "not found")

	var verr *domain.ValidationError
	assert.ErrorAs(t, ValidateAvailability(domain.StrategyAuto, true, ""), &verr)
}
