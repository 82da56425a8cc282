// ABOUTME: MCP tool handler implementations for the MindAid server
// ABOUTME: Handlers only marshal arguments and results; failures become structured error results
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	users     *core.UserService
	diagnosis *core.DiagnosisService
	counselor *core.Counselor
	logger    *zap.Logger
}

// NewHandlers creates handlers over the given services
func NewHandlers(services Services, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		users:     services.Users,
		diagnosis: services.Diagnosis,
		counselor: services.Counselor,
		logger:    logger,
	}
}

// ErrorResult is the body of a failed tool call
type ErrorResult struct {
	Error     string           `json:"error"`
	Kind      models.ErrorKind `json:"kind"`
	Retryable bool             `json:"retryable"`
}

// profileView is the client-facing user record; the credential hash is
// excluded by the model's json tags
type profileView struct {
	*models.User
	Name string `json:"name"`
}

type historyView struct {
	UserID string        `json:"user_id"`
	Turns  []models.Turn `json:"turns"`
}

// RegisterUser handles the register_user tool
func (h *Handlers) RegisterUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := request.RequireString("email")
	if err != nil {
		return argError("email argument is required and must be a string"), nil
	}
	password, err := request.RequireString("password")
	if err != nil {
		return argError("password argument is required and must be a string"), nil
	}
	firstName, err := request.RequireString("first_name")
	if err != nil {
		return argError("first_name argument is required and must be a string"), nil
	}

	user, err := h.users.Register(ctx, core.RegisterRequest{
		UserID:    request.GetString("user_id", ""),
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  request.GetString("last_name", ""),
	})
	if err != nil {
		return h.failure("register_user", "", err), nil
	}
	return jsonResult(profileView{User: user, Name: user.FullName()})
}

// GetUserProfile handles the get_user_profile tool
func (h *Handlers) GetUserProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}

	user, err := h.users.Profile(ctx, userID)
	if err != nil {
		return h.failure("get_user_profile", userID, err), nil
	}
	return jsonResult(profileView{User: user, Name: user.FullName()})
}

// StartDiagnosis handles the start_diagnosis tool
func (h *Handlers) StartDiagnosis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}
	narrative, err := request.RequireString("narrative_text")
	if err != nil {
		return argError("narrative_text argument is required and must be a string"), nil
	}

	view, err := h.diagnosis.StartIntake(ctx, userID, narrative)
	if err != nil {
		return h.failure("start_diagnosis", userID, err), nil
	}
	return jsonResult(view)
}

// AnswerQuestion handles the answer_question tool
func (h *Handlers) AnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}
	questionID, err := request.RequireString("question_id")
	if err != nil {
		return argError("question_id argument is required and must be a string"), nil
	}
	value, ok := answerValue(request.GetArguments()["answer_value"])
	if !ok {
		return argError("answer_value argument is required and must be a string or number"), nil
	}

	view, err := h.diagnosis.SubmitAnswer(ctx, userID, questionID, value)
	if err != nil {
		return h.failure("answer_question", userID, err), nil
	}
	return jsonResult(view)
}

// FinalizeDiagnosis handles the finalize_diagnosis tool
func (h *Handlers) FinalizeDiagnosis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}

	view, err := h.diagnosis.Finalize(ctx, userID)
	if err != nil {
		return h.failure("finalize_diagnosis", userID, err), nil
	}
	return jsonResult(view)
}

// DiagnosisStatus handles the diagnosis_status tool
func (h *Handlers) DiagnosisStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}

	view, err := h.diagnosis.Status(ctx, userID)
	if err != nil {
		return h.failure("diagnosis_status", userID, err), nil
	}
	return jsonResult(view)
}

// Counsel handles the counsel tool
func (h *Handlers) Counsel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return argError("message argument is required and must be a string"), nil
	}

	start := time.Now()
	reply, err := h.counselor.Respond(ctx, userID, message, request.GetString("idempotency_token", ""))
	if err != nil {
		return h.failure("counsel", userID, err), nil
	}
	h.logger.Debug("counsel tool completed", logging.UserField(userID), zap.Duration("elapsed", time.Since(start)))
	return jsonResult(reply)
}

// ConversationHistory handles the conversation_history tool
func (h *Handlers) ConversationHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}

	turns, err := h.counselor.History(ctx, userID)
	if err != nil {
		return h.failure("conversation_history", userID, err), nil
	}
	return jsonResult(historyView{UserID: userID, Turns: turns})
}

// ResetConversation handles the reset_conversation tool
func (h *Handlers) ResetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return argError("user_id argument is required and must be a string"), nil
	}

	if err := h.counselor.Reset(ctx, userID); err != nil {
		return h.failure("reset_conversation", userID, err), nil
	}
	return jsonResult(map[string]interface{}{"success": true, "user_id": userID})
}

// failure logs err at a level matching its kind and converts it to a
// structured error result
func (h *Handlers) failure(tool, userID string, err error) *mcp.CallToolResult {
	kind := models.KindOf(err)
	fields := []zap.Field{zap.String("tool", tool), zap.String("kind", string(kind)), zap.Error(err)}
	if userID != "" {
		fields = append(fields, logging.UserField(userID))
	}
	switch kind {
	case models.KindValidation, models.KindState, models.KindNotFound:
		h.logger.Debug("tool call rejected", fields...)
	default:
		h.logger.Error("tool call failed", fields...)
	}
	return errorResult(err)
}

func errorResult(err error) *mcp.CallToolResult {
	body, mErr := json.Marshal(ErrorResult{
		Error:     err.Error(),
		Kind:      models.KindOf(err),
		Retryable: models.IsRetryable(err),
	})
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(body))
}

func argError(msg string) *mcp.CallToolResult {
	return errorResult(fmt.Errorf("%w: %s", models.ErrInputValidation, msg))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// answerValue accepts the JSON forms a client may send: a label or digit
// string, or a number
func answerValue(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
