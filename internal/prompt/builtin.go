package prompt

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"agent.md": agentTemplate,
	"qa.md":    qaTemplate,
}

const agentTemplate = `# Stage: {{stage_id}}

You are the {{stage_id}} agent of a {{project_type}} project, {{phase}} phase ({{progress}}% complete).
{{#if request}}

## Request
{{request}}
{{/if}}
{{#if previous_attempt}}

## Previous Attempt
This stage ran before and was sent back:
{{previous_attempt}}
{{/if}}
{{#if prior_stage_summary}}

## Upstream Handoffs
{{prior_stage_summary}}
{{/if}}
{{#if decisions}}

## Decisions So Far
{{decisions}}
{{/if}}
{{#if outputs}}

## Artifacts
{{outputs}}
{{/if}}
{{#if open_blockers}}

## Open Blockers
{{open_blockers}}
{{/if}}
{{#if unmet_criteria}}

## Unmet Criteria
{{unmet_criteria}}
{{/if}}
{{#if notes}}

## Notes
{{notes}}
{{/if}}
{{#if backlog}}

## Backlog
{{backlog}}
{{/if}}
{{#if git_commits}}

## Recent Commits
{{git_commits}}
{{/if}}
{{#if git_status}}

## Uncommitted Changes
{{git_status}}
{{/if}}

## When Done
Record a handoff with a summary, the artifacts you produced, and any blockers:

    agentline stage complete {{stage_id}} --summary "..." --output <path> --valid
`

const qaTemplate = `# QA: {{stage_id}}

You are the {{stage_id}} agent of a {{project_type}} project. Review the work of the
{{phase}} phase and score it from 0 to 100. The phase ends only when the score
reaches {{required_score}}.
{{#if request}}

## Request
{{request}}
{{/if}}
{{#if previous_attempt}}

## Previous Attempt
{{previous_attempt}}
{{/if}}
{{#if prior_stage_summary}}

## Work Under Review
{{prior_stage_summary}}
{{/if}}
{{#if outputs}}

## Artifacts
{{outputs}}
{{/if}}
{{#if open_blockers}}

## Open Blockers
{{open_blockers}}
{{/if}}
{{#if unmet_criteria}}

## Unmet Criteria
{{unmet_criteria}}
{{/if}}
{{#if notes}}

## Notes
{{notes}}
{{/if}}

## When Done
List every acceptance criterion as met or unmet and attach the reports you ran:

    agentline stage complete {{stage_id}} --score <0-100> --summary "..." \
        --criteria-met "..." --criteria-unmet "..." --report security --valid
`
