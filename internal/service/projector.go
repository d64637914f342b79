package service

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

const (
	defaultMaxNodes   = 200000
	defaultMaxResults = 10000
	boundTolerance    = 1e-9
)

// Allocation is one vector of additional points per category together with the resulting percentage.
type Allocation struct {
	Points     []int   `json:"points"`
	Percentage float64 `json:"percentage"`
}

// ProjectionResult holds every accepted allocation in depth-first discovery order.
type ProjectionResult struct {
	Allocations  []Allocation `json:"allocations"`
	NodesVisited int          `json:"nodes_visited"`
	Truncated    bool         `json:"truncated"`
	Undefined    bool         `json:"undefined"`
}

// ProjectorConfig bounds the search.
type ProjectorConfig struct {
	MaxNodes   int
	MaxResults int
}

// Projector searches for point allocations over a course's remaining assignment slots that reach a
// desired overall percentage.
type Projector struct {
	maxNodes   int
	maxResults int
	logger     *zap.Logger
}

// NewProjector constructs a Projector. Non-positive limits fall back to defaults.
func NewProjector(cfg ProjectorConfig, logger *zap.Logger) *Projector {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = defaultMaxNodes
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{maxNodes: cfg.MaxNodes, maxResults: cfg.MaxResults, logger: logger}
}

type projectionNode struct {
	sols  []int
	start int
}

// Project enumerates allocations of remaining one-point slots, remaining[i] per category, whose
// weighted score meets desired. An accepted node is not expanded further, and increments never move
// to a lower category index than the last one, so each multiset of increments is visited once.
// The course is read only.
func (p *Projector) Project(ctx context.Context, course *models.Course, desired float64, remaining []int) (*ProjectionResult, error) {
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is required")
	}
	n := len(course.Categories)
	if len(remaining) != n {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("remaining has %d entries, course has %d categories", len(remaining), n))
	}
	if math.IsNaN(desired) || math.IsInf(desired, 0) {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "desired percentage must be a finite number")
	}

	weights := make([]float64, n)
	earned := make([]float64, n)
	denominators := make([]float64, n)
	for i, category := range course.Categories {
		if remaining[i] < 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("remaining[%d] must not be negative", i))
		}
		weights[i] = category.Weight
		earned[i] = definedOrZero(category.Points.Earned)
		denominators[i] = definedOrZero(category.Points.Possible) + float64(remaining[i])
	}

	result := &ProjectionResult{Allocations: []Allocation{}}
	for i := range weights {
		if weights[i] != 0 && denominators[i] == 0 {
			result.Undefined = true
			return result, nil
		}
	}

	// Slots are worth one point each and sols[i]+remaining[i] is constant along a branch, so each
	// category's denominator is fixed and the score is linear in sols.
	score := func(sols []int) float64 {
		total := 0.0
		for i, w := range weights {
			if w == 0 {
				continue
			}
			total += (earned[i] + float64(sols[i])) / denominators[i] * w
		}
		return total * 100
	}
	headroom := func(sols []int, start int) float64 {
		total := 0.0
		for i := start; i < n; i++ {
			if weights[i] == 0 {
				continue
			}
			total += float64(remaining[i]-sols[i]) / denominators[i] * weights[i]
		}
		return total * 100
	}

	viable := func(node projectionNode) bool {
		return score(node.sols)+headroom(node.sols, node.start) >= desired-boundTolerance
	}

	stack := []projectionNode{{sols: make([]int, n), start: 0}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			result.Truncated = true
			return result, appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "what-if search interrupted")
		}
		if result.NodesVisited >= p.maxNodes {
			result.Truncated = true
			break
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		result.NodesVisited++

		current := score(node.sols)
		if current >= desired {
			result.Allocations = append(result.Allocations, Allocation{Points: node.sols, Percentage: current})
			if len(result.Allocations) >= p.maxResults {
				for _, pending := range stack {
					if viable(pending) {
						result.Truncated = true
						break
					}
				}
				break
			}
			continue
		}
		if !viable(node) {
			continue
		}

		for i := n - 1; i >= node.start; i-- {
			if remaining[i]-node.sols[i] < 1 {
				continue
			}
			child := make([]int, n)
			copy(child, node.sols)
			child[i]++
			stack = append(stack, projectionNode{sols: child, start: i})
		}
	}

	if result.Truncated {
		p.logger.Debug("what-if search truncated",
			zap.Int("nodes", result.NodesVisited),
			zap.Int("results", len(result.Allocations)))
	}
	return result, nil
}

// MinimalAllocations returns the allocations that add the fewest points in total, in input order.
func MinimalAllocations(allocations []Allocation) []Allocation {
	best := math.MaxInt
	for _, a := range allocations {
		if sum := sumPoints(a.Points); sum < best {
			best = sum
		}
	}
	out := make([]Allocation, 0)
	for _, a := range allocations {
		if sumPoints(a.Points) == best {
			out = append(out, a)
		}
	}
	return out
}

func sumPoints(points []int) int {
	total := 0
	for _, v := range points {
		total += v
	}
	return total
}

func definedOrZero(s models.Score) float64 {
	if !s.Defined() {
		return 0
	}
	return s.Float()
}
