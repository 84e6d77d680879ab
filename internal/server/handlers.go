package server

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/dishdazzle/assistant/internal/assist"
	"github.com/dishdazzle/assistant/internal/fingerprint"
	"github.com/dishdazzle/assistant/internal/openrouter"
	"github.com/dishdazzle/assistant/internal/retry"
	"github.com/dishdazzle/assistant/internal/store"
	"github.com/dishdazzle/assistant/pkg/apierr"
)

type suggestionsRequest struct {
	Ingredients []string `json:"ingredients"`
	Model       string   `json:"model,omitempty"`
}

type substitutionsRequest struct {
	Ingredient string `json:"ingredient"`
	Model      string `json:"model,omitempty"`
}

type assistRequest struct {
	Question string                `json:"question"`
	Recipe   *assist.RecipeContext `json:"recipe,omitempty"`
	Model    string                `json:"model,omitempty"`
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

type chatResponse struct {
	ConversationID string         `json:"conversation_id"`
	Reply          *assist.Result `json:"reply"`
}

func (s *Server) handleSuggestions(ctx *fasthttp.RequestCtx) {
	var req suggestionsRequest
	if !decode(ctx, &req) {
		return
	}
	res, err := s.gateway.Do(ctx, &assist.Query{
		Kind:        fingerprint.KindSuggestions,
		Model:       req.Model,
		Ingredients: req.Ingredients,
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, res)
}

func (s *Server) handleSubstitutions(ctx *fasthttp.RequestCtx) {
	var req substitutionsRequest
	if !decode(ctx, &req) {
		return
	}
	res, err := s.gateway.Do(ctx, &assist.Query{
		Kind:   fingerprint.KindSubstitutions,
		Model:  req.Model,
		Prompt: req.Ingredient,
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, res)
}

func (s *Server) handleAssist(ctx *fasthttp.RequestCtx) {
	var req assistRequest
	if !decode(ctx, &req) {
		return
	}
	res, err := s.gateway.Do(ctx, &assist.Query{
		Kind:   fingerprint.KindAssist,
		Model:  req.Model,
		Prompt: req.Question,
		Recipe: req.Recipe,
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, res)
}

// handleChat replays the stored conversation to the model and persists
// both the user turn and the reply.
func (s *Server) handleChat(ctx *fasthttp.RequestCtx) {
	var req chatRequest
	if !decode(ctx, &req) {
		return
	}
	if req.Message == "" {
		apierr.WriteMalformed(ctx, "message is required")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	var conversation []openrouter.Message
	history, err := s.store.ChatHistory(ctx, convID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	for _, m := range history {
		conversation = append(conversation, openrouter.Message{Role: m.Role, Content: m.Content})
	}
	conversation = append(conversation, openrouter.Message{Role: "user", Content: req.Message})

	res, err := s.gateway.Do(ctx, &assist.Query{
		Kind:         fingerprint.KindChat,
		Model:        req.Model,
		Conversation: conversation,
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}

	if err := s.store.AppendChat(ctx, convID, "user", req.Message); err != nil {
		s.log.WarnContext(ctx, "chat_persist_failed", "conversation_id", convID, "error", err)
	} else if err := s.store.AppendChat(ctx, convID, "assistant", res.Raw); err != nil {
		s.log.WarnContext(ctx, "chat_persist_failed", "conversation_id", convID, "error", err)
	}

	writeJSON(ctx, chatResponse{ConversationID: convID, Reply: res})
}

func (s *Server) handleChatHistory(ctx *fasthttp.RequestCtx) {
	convID := ctx.UserValue("conversation_id").(string)
	msgs, err := s.store.ChatHistory(ctx, convID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	writeJSON(ctx, map[string]any{"conversation_id": convID, "messages": msgs})
}

func (s *Server) handleClearChat(ctx *fasthttp.RequestCtx) {
	convID := ctx.UserValue("conversation_id").(string)
	if err := s.store.ClearChat(ctx, convID); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleListRecipes(ctx *fasthttp.RequestCtx) {
	var (
		recipes []store.Recipe
		err     error
	)
	if q := string(ctx.QueryArgs().Peek("q")); q != "" {
		recipes, err = s.store.SearchRecipes(ctx, q)
	} else {
		recipes, err = s.store.ListRecipes(ctx)
	}
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if recipes == nil {
		recipes = []store.Recipe{}
	}
	writeJSON(ctx, map[string]any{"recipes": recipes})
}

func (s *Server) handleAddRecipe(ctx *fasthttp.RequestCtx) {
	var r store.Recipe
	if !decode(ctx, &r) {
		return
	}
	if r.Name == "" {
		apierr.WriteMalformed(ctx, "recipe name is required")
		return
	}
	id, err := s.store.AddRecipe(ctx, &r)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	saved, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusCreated)
	writeJSON(ctx, saved)
}

func (s *Server) handleGetRecipe(ctx *fasthttp.RequestCtx) {
	id, ok := recipeID(ctx)
	if !ok {
		return
	}
	r, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, r)
}

func (s *Server) handleUpdateRecipe(ctx *fasthttp.RequestCtx) {
	id, ok := recipeID(ctx)
	if !ok {
		return
	}
	var r store.Recipe
	if !decode(ctx, &r) {
		return
	}
	if r.Name == "" {
		apierr.WriteMalformed(ctx, "recipe name is required")
		return
	}
	r.ID = id
	if err := s.store.UpdateRecipe(ctx, &r); err != nil {
		s.writeError(ctx, err)
		return
	}
	saved, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, saved)
}

func (s *Server) handleDeleteRecipe(ctx *fasthttp.RequestCtx) {
	id, ok := recipeID(ctx)
	if !ok {
		return
	}
	if err := s.store.DeleteRecipe(ctx, id); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleFavorite(ctx *fasthttp.RequestCtx) {
	id, ok := recipeID(ctx)
	if !ok {
		return
	}
	added, err := s.store.Favorite(ctx, id)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"recipe_id": id, "favorite": true, "added": added})
}

func (s *Server) handleUnfavorite(ctx *fasthttp.RequestCtx) {
	id, ok := recipeID(ctx)
	if !ok {
		return
	}
	removed, err := s.store.Unfavorite(ctx, id)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"recipe_id": id, "favorite": false, "removed": removed})
}

func (s *Server) handleListFavorites(ctx *fasthttp.RequestCtx) {
	favs, err := s.store.ListFavorites(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if favs == nil {
		favs = []store.Recipe{}
	}
	writeJSON(ctx, map[string]any{"recipes": favs})
}

func (s *Server) handleGetPantry(ctx *fasthttp.RequestCtx) {
	items, err := s.store.Pantry(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"ingredients": items})
}

func (s *Server) handleSetPantry(ctx *fasthttp.RequestCtx) {
	var req struct {
		Ingredients []string `json:"ingredients"`
	}
	if !decode(ctx, &req) {
		return
	}
	if err := s.store.SetPantry(ctx, req.Ingredients); err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"ingredients": req.Ingredients})
}

func (s *Server) handleGetGroceryList(ctx *fasthttp.RequestCtx) {
	items, err := s.store.GroceryList(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"items": items})
}

func (s *Server) handleSetGroceryList(ctx *fasthttp.RequestCtx) {
	var req struct {
		Items []string `json:"items"`
	}
	if !decode(ctx, &req) {
		return
	}
	if err := s.store.SetGroceryList(ctx, req.Items); err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"items": req.Items})
}

// decode unmarshals the request body into v, answering 400 on failure.
func decode(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		apierr.WriteMalformed(ctx, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func recipeID(ctx *fasthttp.RequestCtx) (int64, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apierr.WriteMalformed(ctx, "invalid recipe id")
		return 0, false
	}
	return id, true
}

// writeError maps an internal error to the wire error envelope.
func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) {
	var ve *assist.ValidationError
	if errors.As(err, &ve) {
		apierr.WriteMalformed(ctx, ve.Error())
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		apierr.Write(ctx, fasthttp.StatusNotFound, "not found", apierr.TypeInvalidRequest, "not_found")
		return
	}
	if errors.Is(err, assist.ErrRateLimited) {
		apierr.WriteRateLimited(ctx, "request budget exceeded, slow down")
		return
	}
	if errors.Is(err, retry.ErrExhausted) {
		apierr.WriteExhausted(ctx, "the assistant is temporarily unavailable, try again shortly")
		return
	}

	var sc retry.StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatus(); {
		case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
			apierr.WriteUnauthorized(ctx, "upstream rejected the configured API key")
		case code == fasthttp.StatusTooManyRequests:
			apierr.WriteRateLimited(ctx, "upstream rate limit hit, try again shortly")
		case code >= 400 && code < 500:
			apierr.WriteMalformed(ctx, err.Error())
		default:
			apierr.Write(ctx, fasthttp.StatusBadGateway, "upstream error", apierr.TypeUpstreamError, apierr.CodeInternalError)
		}
		return
	}

	switch retry.Classify(err) {
	case "timeout", "network":
		apierr.WriteUnreachable(ctx, "could not reach the assistant service")
	default:
		s.log.ErrorContext(ctx, "request_failed", "error", err)
		apierr.WriteInternal(ctx, "internal server error")
	}
}
