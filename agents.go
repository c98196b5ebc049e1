package gemchat

import (
	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
	"github.com/mmoreau/gemchat/tools"
)

// Model is a hosted chat model. Implementations translate the abstract
// request plus conversation history into the provider's wire format.
type Model interface {
	Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error)
	Stream_Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error)
}

// Agent pairs a model with a tool registry and an approval policy. It is the
// session layer's only handle on the model and the tools.
type Agent struct {
	Model    Model
	Registry *tools.Registry

	executor *tools.Executor
	approval Approval_Callback
}

// Create_Agent builds an agent over the given model and registry. approval
// may be nil, in which case sensitive tools are auto-approved with a log line.
func Create_Agent(model Model, registry *tools.Registry, approval Approval_Callback) *Agent {
	return &Agent{
		Model:    model,
		Registry: registry,
		executor: tools.New_Executor(registry),
		approval: approval,
	}
}

func (agent *Agent) Run(request models.Model_Request, conversationHistory []stores.Message) (models.Model_Response, error) {
	return agent.Model.Model_Request(request, agent.Registry.Declarations(), conversationHistory)
}

func (agent *Agent) Run_Stream(request models.Model_Request, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error) {
	return agent.Model.Stream_Model_Request(request, agent.Registry.Declarations(), conversationHistory)
}

// Execute_Tool validates and runs one tool call. Failures come back as
// structured results, never as Go errors.
func (agent *Agent) Execute_Tool(call models.FunctionCall) models.Tool_Result {
	return agent.executor.Execute(call)
}
