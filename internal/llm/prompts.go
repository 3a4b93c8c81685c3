package llm

// Prompt templates for the engine operations. Code-producing prompts all
// demand the same file-block output syntax so the patch applier can consume
// any of them.

const fileBlockInstructions = `Output complete file contents using EXACTLY this syntax for every file you create or modify:

<<<FILE: relative/path/to/file.py>>>
(full file content)
<<<END_FILE>>>

Rules:
- Paths are relative to the repository root. Never use absolute paths or "..".
- Always output the ENTIRE file, not a diff or fragment.
- Do not wrap the blocks in markdown fences.`

const breakdownSystem = `You are a senior software architect. You decompose coding challenges into small independent tasks that can be implemented in parallel by separate engineers who cannot communicate with each other.`

const breakdownPromptTmpl = `Analyze the coding challenge and the current codebase, then produce a task breakdown.

CHALLENGE:
%s

CODEBASE:
%s

Respond with a single JSON object and nothing else:
{
  "plan_overview": "one paragraph describing the overall solution",
  "tasks": [
    {
      "id": "task-1",
      "title": "short title",
      "description": "what to implement and how",
      "input_context": ["paths the implementer should read first"],
      "target_files": ["path/one.py"],
      "dependencies": []
    }
  ]
}

Each task must be independently implementable: two tasks must never modify the same file. Keep the task count small (2-6 tasks).`

const executeSystem = `You are an expert software engineer implementing one task of a larger plan. You work in an isolated copy of the repository, so only the files you output will change.`

const executePromptTmpl = `Implement the following task.

TASK %s: %s
%s

PLAN OVERVIEW:
%s

TASK SPECIFICATION:
%s

CODEBASE:
%s

%s`

const fixSystem = `You are an expert software engineer fixing a failing build. Make the smallest change that resolves the errors without breaking existing behavior.`

const fixPromptTmpl = `Tests or checks failed. Fix the code.

ORIGINAL GOAL:
%s

ERROR LOG:
%s

CODEBASE:
%s

Output corrected files only for what needs to change.

%s`

const verifySystem = `You are a meticulous code reviewer verifying a submitted solution against its original requirements.`

const verifyPromptTmpl = `Review the solution below against the original requirements.

REQUIREMENTS:
%s

TEST OUTPUT:
%s

CODEBASE:
%s

Write a markdown report with these sections: Requirements Compliance (item by item), Code Quality, Test Results, and a final Verdict line that is exactly "Verdict: PASS" or "Verdict: FAIL".`

const masterPlanSystem = `You are a senior software architect writing implementation documentation for an engineering team.`

const masterPlanPromptTmpl = `Write a detailed MASTER_PLAN.md for the task breakdown below. Cover the architecture, the role of each task, shared conventions (naming, error handling, data shapes), and how the pieces integrate.

TASK BREAKDOWN:
%s

CODEBASE:
%s

Respond with the markdown document only.`

const taskSpecSystem = `You are a senior software architect writing a detailed task specification for one engineer.`

const taskSpecPromptTmpl = `Write a detailed implementation specification for this single task. The engineer will see only this document, the master plan, and the codebase.

TASK %s: %s
%s

MASTER PLAN:
%s

CODEBASE:
%s

Respond with the markdown document only. Include exact file paths, function signatures, and edge cases to handle.`

const reviewSystem = `You are a senior software architect reviewing a plan for internal consistency before execution begins.`

const reviewPromptTmpl = `Review the plan for contradictions: tasks that modify the same file, interface mismatches between tasks, or missing glue work.

TASK BREAKDOWN (JSON):
%s

MASTER PLAN:
%s

TASK SPECIFICATIONS:
%s

If the plan is consistent, respond with exactly "OK". Otherwise respond with a corrected task breakdown JSON object in the same schema, and nothing else.`

const conflictSystem = `You are an expert software engineer resolving a git merge conflict. Both sides implement parts of the same plan; the resolution must preserve the intent of both.`

const conflictPromptTmpl = `Resolve the merge conflict in %s.

PLAN CONTEXT:
%s

FILE CONTENT WITH CONFLICT MARKERS:
%s

Respond with the complete resolved file content and nothing else. Do not include conflict markers, markdown fences, or explanations.`
