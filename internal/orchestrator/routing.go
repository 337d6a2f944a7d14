package orchestrator

import (
	"os"
	"strconv"
	"strings"

	"corpusd/internal/lister"
)

// Mode selects which recognizer backend a run uses. The decision is sticky
// for the whole run once made.
type Mode string

const (
	ModeLocalGPU  Mode = "local_gpu"
	ModeRemoteAPI Mode = "remote_api"
)

// smallBatchThreshold is the candidate count at or below which a run
// defaults to the remote API regardless of cost, favoring latency over a
// local-GPU cold start.
const smallBatchThreshold = 5

// RoutingDecision is the sticky cost/recognizer-backend choice for a run.
type RoutingDecision struct {
	Mode             Mode
	EstimatedCostUSD float64
	BudgetExhausted  bool
}

// DecideRouting picks local-GPU or remote-API for the whole run. A batch of
// smallBatchThreshold candidates or fewer goes to the remote API untrimmed.
// Without a GPU, a batch that would exceed max_cost_per_run is trimmed (in
// discovery order) to fit the budget; the candidates cut are left out of
// the returned slice, so the run does not touch them.
func DecideRouting(candidates []lister.SourceMeta, ratePerMin, maxCostPerRun float64, gpuCount int) (RoutingDecision, []lister.SourceMeta) {
	totalCost := estimateCostUSD(candidates, ratePerMin)

	if len(candidates) <= smallBatchThreshold {
		return RoutingDecision{Mode: ModeRemoteAPI, EstimatedCostUSD: totalCost}, candidates
	}

	if gpuCount > 0 && maxCostPerRun > 0 && totalCost > maxCostPerRun {
		return RoutingDecision{Mode: ModeLocalGPU, EstimatedCostUSD: totalCost}, candidates
	}

	if gpuCount <= 0 {
		trimmed, trimmedCost := trimToBudget(candidates, ratePerMin, maxCostPerRun)
		return RoutingDecision{
			Mode:             ModeRemoteAPI,
			EstimatedCostUSD: trimmedCost,
			BudgetExhausted:  len(trimmed) < len(candidates),
		}, trimmed
	}

	return RoutingDecision{Mode: ModeLocalGPU, EstimatedCostUSD: totalCost}, candidates
}

func estimateCostUSD(candidates []lister.SourceMeta, ratePerMin float64) float64 {
	var total float64
	for _, c := range candidates {
		total += float64(c.DurationS) / 60 * ratePerMin
	}
	return total
}

// trimToBudget keeps candidates in order until adding the next one would
// exceed maxCostPerRun. A non-positive budget means unlimited.
func trimToBudget(candidates []lister.SourceMeta, ratePerMin, maxCostPerRun float64) ([]lister.SourceMeta, float64) {
	if maxCostPerRun <= 0 {
		return candidates, estimateCostUSD(candidates, ratePerMin)
	}

	var running float64
	kept := make([]lister.SourceMeta, 0, len(candidates))
	for _, c := range candidates {
		itemCost := float64(c.DurationS) / 60 * ratePerMin
		if running+itemCost > maxCostPerRun && len(kept) > 0 {
			break
		}
		running += itemCost
		kept = append(kept, c)
	}
	return kept, running
}

// DetectGPUCount reports the number of locally available GPUs for ASR pool
// sizing, read from CORPUSD_GPU_COUNT since GPU discovery itself is a
// deployment concern outside this module's scope.
func DetectGPUCount() int {
	value := strings.TrimSpace(os.Getenv("CORPUSD_GPU_COUNT"))
	if value == "" {
		return 0
	}
	count, err := strconv.Atoi(value)
	if err != nil || count < 0 {
		return 0
	}
	return count
}
