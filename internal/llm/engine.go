package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nlavee/auto-candidate/pkg/models"
)

// Engine layers the pipeline's prompt operations over a Provider. Every
// method is one LLM round trip; parsing of structured responses happens here
// so callers only see domain types.
type Engine struct {
	provider Provider
}

// NewEngine wraps a provider.
func NewEngine(provider Provider) *Engine {
	return &Engine{provider: provider}
}

// Provider returns the underlying provider.
func (e *Engine) Provider() Provider { return e.provider }

// CreateTaskBreakdown decomposes a challenge into a plan of independent
// tasks. The response is parsed as JSON; tasks without an id are rejected.
func (e *Engine) CreateTaskBreakdown(ctx context.Context, challengePrompt, codebaseContext string) (*models.Plan, error) {
	prompt := fmt.Sprintf(breakdownPromptTmpl, challengePrompt, codebaseContext)
	response, err := e.provider.Generate(ctx, prompt, breakdownSystem)
	if err != nil {
		return nil, fmt.Errorf("task breakdown: %w", err)
	}
	return parsePlan(response)
}

// ExecuteTask generates the implementation for a single task as file blocks.
func (e *Engine) ExecuteTask(ctx context.Context, task models.Task, codebaseContext, planOverview, taskSpec string) (string, error) {
	prompt := fmt.Sprintf(executePromptTmpl,
		task.ID, task.Title, task.Description,
		planOverview, taskSpec, codebaseContext,
		fileBlockInstructions)
	response, err := e.provider.Generate(ctx, prompt, executeSystem)
	if err != nil {
		return "", fmt.Errorf("execute task %s: %w", task.ID, err)
	}
	return response, nil
}

// FixCode generates corrected files for a failing build as file blocks.
func (e *Engine) FixCode(ctx context.Context, errorLog, originalTask, codebaseContext string) (string, error) {
	prompt := fmt.Sprintf(fixPromptTmpl, originalTask, errorLog, codebaseContext, fileBlockInstructions)
	response, err := e.provider.Generate(ctx, prompt, fixSystem)
	if err != nil {
		return "", fmt.Errorf("fix code: %w", err)
	}
	return response, nil
}

// VerifySolution reviews the final solution and returns a markdown report
// ending in a PASS or FAIL verdict.
func (e *Engine) VerifySolution(ctx context.Context, originalTask, codebaseContext, testOutput string) (string, error) {
	prompt := fmt.Sprintf(verifyPromptTmpl, originalTask, testOutput, codebaseContext)
	response, err := e.provider.Generate(ctx, prompt, verifySystem)
	if err != nil {
		return "", fmt.Errorf("verify solution: %w", err)
	}
	return response, nil
}

// CreateMasterPlanDoc writes the MASTER_PLAN.md content for a plan.
func (e *Engine) CreateMasterPlanDoc(ctx context.Context, plan *models.Plan, codebaseContext string) (string, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("master plan doc: marshal plan: %w", err)
	}
	prompt := fmt.Sprintf(masterPlanPromptTmpl, string(planJSON), codebaseContext)
	response, err := e.provider.Generate(ctx, prompt, masterPlanSystem)
	if err != nil {
		return "", fmt.Errorf("master plan doc: %w", err)
	}
	return stripFence(response), nil
}

// CreateTaskSpecDoc writes the per-task specification document.
func (e *Engine) CreateTaskSpecDoc(ctx context.Context, task models.Task, masterPlan, codebaseContext string) (string, error) {
	prompt := fmt.Sprintf(taskSpecPromptTmpl, task.ID, task.Title, task.Description, masterPlan, codebaseContext)
	response, err := e.provider.Generate(ctx, prompt, taskSpecSystem)
	if err != nil {
		return "", fmt.Errorf("task spec doc %s: %w", task.ID, err)
	}
	return stripFence(response), nil
}

// ReviewAndRefinePlan checks the plan for contradictions. It returns the
// original plan unchanged when the reviewer answers OK, or the corrected
// plan when the reviewer rewrites it. A review response that parses as
// neither is logged and the original plan kept.
func (e *Engine) ReviewAndRefinePlan(ctx context.Context, plan *models.Plan, masterPlan string, taskSpecs map[string]string) (*models.Plan, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("review plan: marshal plan: %w", err)
	}

	var specs strings.Builder
	for _, task := range plan.Tasks {
		if spec, ok := taskSpecs[task.ID]; ok {
			fmt.Fprintf(&specs, "--- %s ---\n%s\n\n", task.ID, spec)
		}
	}

	prompt := fmt.Sprintf(reviewPromptTmpl, string(planJSON), masterPlan, specs.String())
	response, err := e.provider.Generate(ctx, prompt, reviewSystem)
	if err != nil {
		return nil, fmt.Errorf("review plan: %w", err)
	}

	trimmed := strings.TrimSpace(response)
	if strings.EqualFold(strings.Trim(trimmed, "\"'. "), "OK") {
		return plan, nil
	}

	refined, err := parsePlan(response)
	if err != nil {
		log.Printf("[llm] plan review response was neither OK nor a valid plan, keeping original: %v", err)
		return plan, nil
	}
	log.Printf("[llm] plan review produced a refined plan with %d tasks", len(refined.Tasks))
	return refined, nil
}

// ResolveConflict asks for a full resolved version of a conflicted file.
// The response is raw file content, not file blocks.
func (e *Engine) ResolveConflict(ctx context.Context, filePath, conflictContent, planContext string) (string, error) {
	prompt := fmt.Sprintf(conflictPromptTmpl, filePath, planContext, conflictContent)
	response, err := e.provider.Generate(ctx, prompt, conflictSystem)
	if err != nil {
		return "", fmt.Errorf("resolve conflict %s: %w", filePath, err)
	}
	return stripFence(response), nil
}

// parsePlan extracts and validates a task breakdown from model output.
func parsePlan(response string) (*models.Plan, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("parse plan: breakdown contains no tasks")
	}
	seen := make(map[string]bool, len(plan.Tasks))
	for i, task := range plan.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return nil, fmt.Errorf("parse plan: task %d has no id", i)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("parse plan: duplicate task id %q", task.ID)
		}
		seen[task.ID] = true
	}
	return &plan, nil
}

// stripFence removes a single wrapping markdown code fence if the whole
// response is fenced. Models sometimes fence documents despite instructions.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimSuffix(trimmed, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		return strings.TrimSpace(body[idx+1:])
	}
	return trimmed
}
