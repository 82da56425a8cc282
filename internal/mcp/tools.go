// ABOUTME: MCP tool definitions and registration for the MindAid server
// ABOUTME: One tool per client operation: accounts, diagnosis, and counseling
package mcp

import (
	"github.com/harper/mindaid/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Services are the core services the tools call into
type Services struct {
	Users     *core.UserService
	Diagnosis *core.DiagnosisService
	Counselor *core.Counselor
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

var userIDProp = stringProp("MindAid user id")

// ServerName is the MCP implementation name reported to clients
const ServerName = "MindAid"

// NewServer creates an MCP server with every MindAid tool registered
func NewServer(version string, services Services, logger *zap.Logger) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(ServerName, version, mcpserver.WithToolCapabilities(false))
	RegisterTools(server, services, logger)
	return server
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, services Services, logger *zap.Logger) *Handlers {
	handlers := NewHandlers(services, logger)

	// 1. register_user
	server.AddTool(mcp.Tool{
		Name:        "register_user",
		Description: "Create a MindAid account. Returns the new user's profile including the user_id to pass to every other tool.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"email":      stringProp("Email address, unique per account"),
				"password":   stringProp("Password, 8 to 72 characters"),
				"first_name": stringProp("First name"),
				"last_name":  stringProp("Last name"),
				"user_id":    stringProp("Optional user id; generated when omitted"),
			},
			Required: []string{"email", "password", "first_name"},
		},
	}, handlers.RegisterUser)

	// 2. get_user_profile
	server.AddTool(mcp.Tool{
		Name:        "get_user_profile",
		Description: "Get a user's profile, latest assessment result, and diagnosis history.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProp,
			},
			Required: []string{"user_id"},
		},
	}, handlers.GetUserProfile)

	// 3. start_diagnosis
	server.AddTool(mcp.Tool{
		Name:        "start_diagnosis",
		Description: "Start (or restart) an assessment from the user's own description of how they feel. Classifies the narrative and returns the first questionnaire question.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":        userIDProp,
				"narrative_text": stringProp("The user's answers to the intake prompts, in their own words"),
			},
			Required: []string{"user_id", "narrative_text"},
		},
	}, handlers.StartDiagnosis)

	// 4. answer_question
	server.AddTool(mcp.Tool{
		Name:        "answer_question",
		Description: "Answer the current questionnaire question. Answers must follow question order. Returns the next question, or the score once every question is answered.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":     userIDProp,
				"question_id": stringProp("Id of the question being answered"),
				"answer_value": map[string]interface{}{
					"type":        []string{"string", "number"},
					"description": "Answer as a number in the question's range or one of its labels (for example yes/no)",
				},
			},
			Required: []string{"user_id", "question_id", "answer_value"},
		},
	}, handlers.AnswerQuestion)

	// 5. finalize_diagnosis
	server.AddTool(mcp.Tool{
		Name:        "finalize_diagnosis",
		Description: "Complete a scored assessment and save it to the user's diagnosis history.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProp,
			},
			Required: []string{"user_id"},
		},
	}, handlers.FinalizeDiagnosis)

	// 6. diagnosis_status
	server.AddTool(mcp.Tool{
		Name:        "diagnosis_status",
		Description: "Show where the user is in the assessment. With no assessment in progress, returns the intake prompts to ask.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProp,
			},
			Required: []string{"user_id"},
		},
	}, handlers.DiagnosisStatus)

	// 7. counsel
	server.AddTool(mcp.Tool{
		Name:        "counsel",
		Description: "Send a message to the counselor and get a reply grounded in counseling reference material and the conversation so far.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":           userIDProp,
				"message":           stringProp("The user's message"),
				"idempotency_token": stringProp("Optional token; retrying with the same token never duplicates a turn"),
			},
			Required: []string{"user_id", "message"},
		},
	}, handlers.Counsel)

	// 8. conversation_history
	server.AddTool(mcp.Tool{
		Name:        "conversation_history",
		Description: "List the remembered counseling turns, oldest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProp,
			},
			Required: []string{"user_id"},
		},
	}, handlers.ConversationHistory)

	// 9. reset_conversation
	server.AddTool(mcp.Tool{
		Name:        "reset_conversation",
		Description: "Forget the counseling conversation. Diagnosis history is kept.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProp,
			},
			Required: []string{"user_id"},
		},
	}, handlers.ResetConversation)

	return handlers
}
