// Package redteam implements the adversarial session engine: durable
// per-runner sessions with per-endpoint chat histories, manual single
// prompt rounds, and automated attack modules iterating under stop
// conditions.
package redteam

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/datastore"
	"github.com/straylight-ai/crucible/prompt"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

// Engine drives one red-team session across a runner's endpoints. It
// owns prompt preparation, parallel dispatch and chat persistence.
type Engine struct {
	session    *types.Session
	db         datastore.Store
	store      *artifact.Store
	reg        *registry.Registry
	connectors []*connector.Connector
	logger     *slog.Logger
	token      *types.CancellationToken
}

// NewEngine binds an engine to a loaded session.
func NewEngine(session *types.Session, db datastore.Store, store *artifact.Store, reg *registry.Registry, connectors []*connector.Connector, logger *slog.Logger, token *types.CancellationToken) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if token == nil {
		token = types.NewCancellationToken()
	}
	return &Engine{
		session: session, db: db, store: store, reg: reg,
		connectors: connectors, logger: logger, token: token,
	}
}

// Session returns the bound session.
func (e *Engine) Session() *types.Session { return e.session }

// LoadOrCreateSession returns the runner's session, creating it with
// one chat table per endpoint on first use.
func LoadOrCreateSession(ctx context.Context, db datastore.Store, runnerID string, endpoints []string) (*types.Session, error) {
	existing, err := db.ReadSession(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := time.Now()
	session := &types.Session{
		SessionID:          runnerID,
		Endpoints:          endpoints,
		CreatedEpoch:       now.Unix(),
		CreatedDatetime:    now.Format("2006-01-02 15:04:05"),
		CSNumOfPrevPrompts: types.DefaultNumOfPrevPrompts,
		ChatIDs:            map[string]string{},
	}
	for _, ep := range endpoints {
		table, err := db.CreateChatTable(ctx, ep)
		if err != nil {
			return nil, err
		}
		session.ChatIDs[ep] = table
	}
	if err := db.SaveSession(ctx, *session); err != nil {
		return nil, err
	}
	return session, nil
}

// Preparation names the optional rewriting steps applied to a user
// prompt before dispatch: context strategy first, then template.
type Preparation struct {
	ContextStrategy    string
	CSNumOfPrevPrompts int
	PromptTemplate     string
}

// preparationFor merges explicit preparation with session defaults.
func (e *Engine) preparationFor(p Preparation) Preparation {
	if p.ContextStrategy == "" {
		p.ContextStrategy = e.session.ContextStrategy
	}
	if p.CSNumOfPrevPrompts <= 0 {
		p.CSNumOfPrevPrompts = e.session.CSNumOfPrevPrompts
	}
	if p.CSNumOfPrevPrompts <= 0 {
		p.CSNumOfPrevPrompts = types.DefaultNumOfPrevPrompts
	}
	if p.PromptTemplate == "" {
		p.PromptTemplate = e.session.PromptTemplate
	}
	return p
}

// preparePrompt builds the final prompt for one endpoint: context
// strategy over the endpoint's recent history, then the prompt
// template.
func (e *Engine) preparePrompt(ctx context.Context, endpointID, userPrompt string, p Preparation) (string, error) {
	prepared := userPrompt
	if p.ContextStrategy != "" {
		entry, err := e.reg.Load(registry.KindContextStrategy, p.ContextStrategy)
		if err != nil {
			return "", err
		}
		factory, ok := entry.Factory.(ContextStrategyFactory)
		if !ok {
			return "", types.NewError(types.PLUGIN_LOAD_FAILED,
				fmt.Sprintf("context strategy %s has factory type %T", p.ContextStrategy, entry.Factory))
		}
		strategy, err := factory(entry.Params)
		if err != nil {
			return "", err
		}
		table, ok := e.session.ChatIDs[endpointID]
		if !ok {
			return "", types.NewError(types.PIPELINE_FATAL, "session has no chat table for endpoint "+endpointID)
		}
		history, err := e.db.ReadChatRecords(ctx, table, p.CSNumOfPrevPrompts)
		if err != nil {
			return "", err
		}
		prepared = strategy.AddContext(prepared, history)
	}
	if p.PromptTemplate != "" {
		pt, err := e.store.ReadPromptTemplate(p.PromptTemplate)
		if err != nil {
			return "", err
		}
		tmpl, err := prompt.Parse(p.PromptTemplate, pt.Template)
		if err != nil {
			return "", err
		}
		prepared, err = tmpl.Render(prepared)
		if err != nil {
			return "", err
		}
	}
	return prepared, nil
}

// SendPromptToAllLLM prepares the prompt per endpoint, dispatches to
// every connector in parallel, appends one ChatRecord per endpoint and
// returns the records sorted by endpoint id. A failing endpoint fails
// the whole round.
func (e *Engine) SendPromptToAllLLM(ctx context.Context, userPrompt string, p Preparation) ([]types.ChatRecord, error) {
	p = e.preparationFor(p)

	g, ctx := errgroup.WithContext(ctx)
	records := make([]types.ChatRecord, len(e.connectors))
	for i, conn := range e.connectors {
		i, conn := i, conn
		g.Go(func() error {
			prepared, err := e.preparePrompt(ctx, conn.ID(), userPrompt, p)
			if err != nil {
				return err
			}
			pred, err := conn.GetResponse(ctx, prepared)
			if err != nil {
				return fmt.Errorf("endpoint %s: %w", conn.ID(), err)
			}
			rec := types.ChatRecord{
				ChatRecordID:    uuid.NewString(),
				ConnectionID:    conn.ID(),
				ContextStrategy: p.ContextStrategy,
				PromptTemplate:  p.PromptTemplate,
				Prompt:          userPrompt,
				PreparedPrompt:  prepared,
				Predicted:       pred.Text,
				Duration:        pred.Duration,
				PromptTime:      time.Now(),
			}
			table := e.session.ChatIDs[conn.ID()]
			if err := e.db.AppendChatRecord(ctx, table, rec); err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ConnectionID < records[j].ConnectionID })
	return records, nil
}

// Token exposes the shared cancellation token to attack modules.
func (e *Engine) Token() *types.CancellationToken { return e.token }

// Chats returns the full history for one endpoint.
func (e *Engine) Chats(ctx context.Context, endpointID string) ([]types.ChatRecord, error) {
	table, ok := e.session.ChatIDs[endpointID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "chat table", ID: endpointID}
	}
	return e.db.ReadChatRecords(ctx, table, 0)
}
