package hive

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// StatusEventLimit is how many recent events Status returns.
const StatusEventLimit = 10

// Status is the roster, its subscriptions and the latest events.
type Status struct {
	Agents []store.HiveAgentData        `json:"agents"`
	Subs   []store.HiveSubscriptionData `json:"subs"`
	Last10 []store.HiveEventData        `json:"last10"`
}

// kickoff is published by Start, in order.
var kickoff = []struct{ from, to, msg string }{
	{AgentWaibonOS, AgentWaibeAI, "เริ่มประชุม Hive"},
	{AgentWaibeAI, AgentZetaAI, "รับทราบ"},
	{AgentZetaAI, AgentWaibonOS, "พร้อมทำงาน"},
}

// Start upserts the roster with its subscriptions, publishes the kickoff
// events and returns the resulting status.
func (o *Orchestrator) Start(ctx context.Context) (*Status, error) {
	agents, subs := bootstrap.HiveRoster()
	if err := o.store.UpsertAgents(ctx, agents); err != nil {
		return nil, fmt.Errorf("upsert hive agents: %w", err)
	}
	if err := o.store.UpsertSubscriptions(ctx, subs); err != nil {
		return nil, fmt.Errorf("upsert hive subscriptions: %w", err)
	}

	events := make([]store.HiveEventData, 0, len(kickoff))
	for _, k := range kickoff {
		events = append(events, store.HiveEventData{
			Topic:     o.opts.Topic,
			FromAgent: k.from,
			ToAgent:   k.to,
			Payload:   payload(map[string]string{"msg": k.msg}),
		})
	}
	if err := o.store.AppendEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("publish hive kickoff: %w", err)
	}
	return o.Status(ctx)
}

// Status runs its three queries concurrently.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agents, err := o.store.ListAgents(gctx)
		if err != nil {
			return fmt.Errorf("list hive agents: %w", err)
		}
		sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
		st.Agents = agents
		return nil
	})
	g.Go(func() error {
		subs, err := o.store.ListSubscriptions(gctx)
		if err != nil {
			return fmt.Errorf("list hive subscriptions: %w", err)
		}
		st.Subs = subs
		return nil
	})
	g.Go(func() error {
		events, err := o.store.RecentEvents(gctx, StatusEventLimit)
		if err != nil {
			return fmt.Errorf("list hive events: %w", err)
		}
		st.Last10 = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if st.Agents == nil {
		st.Agents = []store.HiveAgentData{}
	}
	if st.Subs == nil {
		st.Subs = []store.HiveSubscriptionData{}
	}
	if st.Last10 == nil {
		st.Last10 = []store.HiveEventData{}
	}
	return st, nil
}
