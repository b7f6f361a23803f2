package app

import (
	"fmt"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// ZipThreshold is the largest item count still fetched file by file when git is missing
const ZipThreshold = 100

// SelectionInput is everything the strategy decision depends on
type SelectionInput struct {
	Requested    domain.Strategy
	GitAvailable bool
	Kind         domain.RefKind
	Count        int
}

// SelectStrategy resolves a requested strategy to a concrete one.
// It performs no I/O.
//
//	requested  git   kind        count  result
//	explicit   any   any         any    requested
//	auto       yes   whole repo  any    git
//	auto       yes   path        >100   git
//	auto       yes   path        <=100  api
//	auto       no    any         <=100  api
//	auto       no    any         >100   zip
func SelectStrategy(in SelectionInput) domain.Strategy {
	if in.Requested != domain.StrategyAuto && in.Requested != "" {
		return in.Requested
	}

	if in.GitAvailable {
		if in.Kind == domain.WholeRepository || in.Count > ZipThreshold {
			return domain.StrategyGit
		}
		return domain.StrategyAPI
	}

	if in.Count > ZipThreshold {
		return domain.StrategyZip
	}
	return domain.StrategyAPI
}

// NeedsCount reports whether SelectStrategy depends on the item count, so the
// caller can skip listing the tree when it does not
func NeedsCount(requested domain.Strategy, gitAvailable bool, kind domain.RefKind) bool {
	if requested != domain.StrategyAuto && requested != "" {
		return false
	}
	if kind == domain.SingleFile {
		return false
	}
	return !(gitAvailable && kind == domain.WholeRepository)
}

// ValidateAvailability fails when an explicitly requested strategy needs a tool that is missing
func ValidateAvailability(strategy domain.Strategy, gitAvailable bool, gitReason string) error {
	if strategy == domain.StrategyGit && !gitAvailable {
		reason := gitReason
		if reason == "" {
			reason = "git executable not found"
		}
		return &domain.StrategyUnavailableError{Strategy: strategy, Reason: reason}
	}
	if !strategy.IsConcrete() {
		return domain.NewValidationError("strategy", fmt.Sprintf("%q is not an executable strategy", strategy))
	}
	return nil
}
