package gemchat

import (
	"log"
	"strings"

	"github.com/mmoreau/gemchat/tools"
)

// Approval_Callback decides whether a sensitive tool may run. It is invoked
// synchronously before execution; returning false records a denial result for
// the model instead of running the tool.
type Approval_Callback func(tool_name string, tool_args map[string]interface{}) bool

// Approve_Tool checks if a tool requires user approval and consults the
// agent's callback when it does. Tools whose description does not carry the
// approval marker always run.
func (agent *Agent) Approve_Tool(tool_name string, tool_args map[string]interface{}) bool {
	decl, found := agent.Registry.Resolve(tool_name)
	if !found {
		// Unknown tools fall through to the executor, which reports them.
		return true
	}
	if !strings.Contains(decl.Description, tools.ApprovalMarker) {
		return true
	}
	if agent.approval == nil {
		log.Printf("Auto-approving tool: %s", tool_name)
		return true
	}
	return agent.approval(tool_name, tool_args)
}
