// Package agentcore defines the shared contract every restoration agent and
// the orchestrator build on: roles, the streamed message shape, the analysis
// context the agents collaborate through, and the final result envelope.
package agentcore

// Role identifies one of the five fixed restoration roles. The roster is
// closed: no agent runs under any other role and no role is optional.
type Role string

const (
	RoleScanner       Role = "scanner"
	RoleLinguist      Role = "linguist"
	RoleHistorian     Role = "historian"
	RoleValidator     Role = "validator"
	RoleRepairAdvisor Role = "repair_advisor"
)

// StageBPriority breaks timestamp ties among the three Stage-B roles during
// the merge. Lower sorts first.
var StageBPriority = map[Role]int{
	RoleLinguist:  0,
	RoleHistorian: 1,
	RoleValidator: 2,
}

func (r Role) String() string { return string(r) }
