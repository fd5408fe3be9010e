package bootstrap

import "github.com/thammarongsak/waibon-safe-room/internal/store"

// HiveTopic is the topic every hive agent subscribes to.
const HiveTopic = "hive.chat"

// HiveRoster builds hive_agents and hive_subscriptions rows from the embedded seeds.
func HiveRoster() ([]store.HiveAgentData, []store.HiveSubscriptionData) {
	seeds := Defaults()
	agents := make([]store.HiveAgentData, 0, len(seeds.Hive))
	subs := make([]store.HiveSubscriptionData, 0, len(seeds.Hive))
	for _, p := range seeds.Hive {
		agents = append(agents, store.HiveAgentData{
			Name:         p.Name,
			Capabilities: []byte(store.EncodeJSON(p.Flags)),
			Persona:      []byte(store.EncodeJSON(map[string]string{"role": p.Traits.Role, "style": p.Traits.Style})),
		})
		subs = append(subs, store.HiveSubscriptionData{AgentName: p.Name, Topic: HiveTopic})
	}
	return agents, subs
}
